// Package redact implements the one-way secret-masking transform applied
// last in the tool-output pipeline. Redact is idempotent and monotonic:
// re-redacting already-redacted text is a no-op, and no enabled pattern
// ever matches the output.
package redact

import (
	"fmt"
	"math"
	"regexp"
)

// rule pairs a compiled pattern with the placeholder kind substituted
// for every match.
type rule struct {
	kind    string
	pattern *regexp.Regexp
}

var rules = []rule{
	{"AWS_ACCESS_KEY", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"GITHUB_TOKEN", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"STRIPE_SECRET", regexp.MustCompile(`\b(sk|rk)_(live|test)_[A-Za-z0-9]{16,}\b`)},
	{"JWT", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
	{"SLACK_TOKEN", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"PRIVATE_KEY", regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH |)PRIVATE KEY-----`)},
	{"BEARER_TOKEN", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{20,}`)},
	{"PASSWORD_IN_URL", regexp.MustCompile(`\b\w+://[^\s/:@]+:[^\s/@]+@`)},
	{"AUTH_HEADER", regexp.MustCompile(`(?mi)^(Authorization:).*$`)},
	{"PASSWORD_ASSIGNMENT", regexp.MustCompile(`(?i)\bpassword\s*=\s*\S+`)},
	{"API_KEY_ASSIGNMENT", regexp.MustCompile(`(?i)\bapi[_-]?key\s*=\s*\S+`)},
}

// alreadyRedacted matches our own placeholder so Redact is idempotent
// even when a placeholder happens to look like high-entropy base64.
var alreadyRedacted = regexp.MustCompile(`\[REDACTED:[A-Z_]+\]`)

// entropyCandidate matches base64-like runs of 20+ characters considered
// for Shannon-entropy scanning.
var entropyCandidate = regexp.MustCompile(`[A-Za-z0-9+/_=-]{20,}`)

// EntropyThreshold is the minimum Shannon entropy (bits/char) for a
// base64-like run to be treated as a likely secret.
const EntropyThreshold = 4.2

// Redact replaces every match of a recognized secret pattern with
// [REDACTED:<kind>], then scans remaining high-entropy base64-like runs.
// Byte offsets into the original text are never exposed in the result.
func Redact(text string) string {
	out := text
	for _, r := range rules {
		if r.kind == "AUTH_HEADER" {
			// Preserve the "Authorization:" label, redact the remainder
			// per the generalized policy recommended in the open
			// questions: "redact until newline or recognized
			// delimiter", safer than the legacy whitespace-inclusive
			// behavior.
			out = r.pattern.ReplaceAllString(out, "Authorization: [REDACTED:AUTH_HEADER]")
			continue
		}
		out = r.pattern.ReplaceAllStringFunc(out, func(string) string {
			return fmt.Sprintf("[REDACTED:%s]", r.kind)
		})
	}

	out = redactHighEntropyRuns(out)
	return out
}

func redactHighEntropyRuns(text string) string {
	return entropyCandidate.ReplaceAllStringFunc(text, func(s string) string {
		if alreadyRedacted.MatchString(s) {
			return s
		}
		if shannonEntropy(s) >= EntropyThreshold {
			return "[REDACTED:HIGH_ENTROPY]"
		}
		return s
	})
}

// shannonEntropy computes the Shannon entropy of s in bits per
// character, used to flag likely secrets among base64-like runs that
// don't match a named pattern.
func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// IsClean reports whether text contains no substring matching any
// enabled secret pattern — used by tests to assert the monotonic
// guarantee.
func IsClean(text string) bool {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return false
		}
	}
	return !containsUnredactedHighEntropy(text)
}

func containsUnredactedHighEntropy(text string) bool {
	for _, m := range entropyCandidate.FindAllString(text, -1) {
		if alreadyRedacted.MatchString(m) {
			continue
		}
		if shannonEntropy(m) >= EntropyThreshold {
			return true
		}
	}
	return false
}
