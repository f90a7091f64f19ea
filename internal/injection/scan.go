// Package injection scans text for suspected prompt injection: role
// confusion, instruction override, exfiltration requests, and
// code-fence-plus-destructive-command combinations. Scanning is
// stateless and O(n) in text length with a small constant, per spec.
package injection

import (
	"regexp"
	"strings"
)

// Rule is one weighted pattern in the rule table.
type Rule struct {
	ID     string
	Weight float64
	match  func(text string) bool
}

// Scan is the result of scanning one piece of text.
type Scan struct {
	Suspicious bool
	MatchedIDs []string
	Confidence float64 // in [0, 1]
}

// Threshold is the weight sum at or above which text is flagged
// suspicious.
const Threshold = 1.0

var rules = []Rule{
	{
		ID:     "ignore-previous-instructions",
		Weight: 0.9,
		match:  regexpMatcher(`(?i)\bignore\s+(all\s+)?(the\s+)?(previous|prior|above)\s+instructions\b`),
	},
	{
		ID:     "reveal-system-prompt",
		Weight: 0.8,
		match:  regexpMatcher(`(?i)\b(reveal|print|show|dump|repeat)\s+(your\s+|the\s+)?(system\s+prompt|instructions)\b`),
	},
	{
		ID:     "role-confusion-prefix",
		Weight: 0.6,
		match:  roleConfusionPrefix,
	},
	{
		ID:     "exec-fence-rm-rf",
		Weight: 1.0,
		match:  execFenceDestructive,
	},
	{
		ID:     "credential-exfiltration",
		Weight: 0.9,
		match:  regexpMatcher(`(?i)\bsend\s+(it|this|that|them|the\s+\w+)\s+to\s+https?://`),
	},
	{
		ID:     "act-as-override",
		Weight: 0.5,
		match:  regexpMatcher(`(?i)\byou\s+are\s+now\s+(in\s+)?(developer|dan|unrestricted|jailbreak)\s*mode\b`),
	},
}

func regexpMatcher(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

var rolePrefixPattern = regexp.MustCompile(`(?mi)^\s*(system|assistant)\s*:`)

// roleConfusionPrefix flags a line starting with "system:" or
// "assistant:" — a classic tool-output role-confusion attempt.
func roleConfusionPrefix(text string) bool {
	return rolePrefixPattern.MatchString(text)
}

var codeFencePattern = regexp.MustCompile("```[a-zA-Z]*\\n[\\s\\S]*?```")
var rmRfPattern = regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`)

// execFenceDestructive flags an executable-code fence whose body
// contains an rm -rf-style destructive command.
func execFenceDestructive(text string) bool {
	for _, fence := range codeFencePattern.FindAllString(text, -1) {
		if rmRfPattern.MatchString(fence) {
			return true
		}
	}
	return false
}

// scanText runs every rule once over text and accumulates matches. It is
// the shared core of ScanInput and ScanToolOutput (the two call sites
// are distinguished only for documentation purposes — the rule set is
// the same).
func scanText(text string) Scan {
	var matched []string
	var weight float64
	for _, r := range rules {
		if r.match(text) {
			matched = append(matched, r.ID)
			weight += r.Weight
		}
	}

	confidence := weight / Threshold
	if confidence > 1 {
		confidence = 1
	}
	suspicious := weight >= Threshold

	if !suspicious {
		// Invariant: if suspicion is false the rule set is empty.
		matched = nil
		confidence = 0
	}

	return Scan{Suspicious: suspicious, MatchedIDs: matched, Confidence: confidence}
}

// ScanInput scans user or tool input before it reaches the LLM.
func ScanInput(text string) Scan {
	return scanText(text)
}

// ScanToolOutput scans tool output before it reaches memory or the LLM.
func ScanToolOutput(text string) Scan {
	return scanText(text)
}

// WarningPrefix is prepended to tool output flagged suspicious, per the
// dispatch algorithm step 6.
const WarningPrefix = "[WARNING: possible injection] "

// WithWarning prefixes text with WarningPrefix if not already present.
func WithWarning(text string) string {
	if strings.HasPrefix(text, WarningPrefix) {
		return text
	}
	return WarningPrefix + text
}
