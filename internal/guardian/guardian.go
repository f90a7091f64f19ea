// Package guardian implements the Safety Guardian: the single decision
// point for "may this action proceed?". It evaluates denied-path and
// denied-command rules, per-tool rate limiting, the configured
// ApprovalMode, and a per-session approve-all-similar cache, in that
// order, and owns the iteration-budget counter and execution log.
package guardian

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
	"github.com/nextlevelbuilder/goclaw-core/internal/audit"
	"github.com/nextlevelbuilder/goclaw-core/internal/workspace"
)

var log = slog.With("component", "guardian")

// Policy is the static, operator-configured portion of a Guardian's
// decision procedure.
type Policy struct {
	Mode             action.ApprovalMode
	DeniedPaths      []string // canonical path prefixes
	DeniedCommands   []string // substrings matched against ShellCommand.Command
	RateLimitPerTool float64  // tokens per 60s window; 0 disables limiting
	RateLimitBurst   int
	MaxIterations    int
}

// IterationLimitExceeded is returned by NoteIteration once the
// configured ceiling is reached.
type IterationLimitExceeded struct {
	Limit int
}

func (e *IterationLimitExceeded) Error() string {
	return fmt.Sprintf("guardian: iteration limit of %d exceeded", e.Limit)
}

// AuditFailure wraps an audit-append error that must block the action
// it was meant to record — the system is fail-closed on audit.
type AuditFailure struct {
	Err error
}

func (e *AuditFailure) Error() string { return fmt.Sprintf("guardian: audit failure: %v", e.Err) }
func (e *AuditFailure) Unwrap() error { return e.Err }

// Sink is the subset of the audit chain the Guardian depends on, kept
// narrow so tests can supply a fake without constructing a real Chain.
type Sink interface {
	Append(kind audit.Kind, payload []byte) (seq uint64, self audit.Hash, err error)
}

// approvalKey identifies an action for the approve-all-similar cache,
// normalized so that e.g. two file writes to the same workspace
// subtree match regardless of the exact byte count written.
type approvalKey string

// Guardian is a single agent's Safety Guardian. It is never shared
// between agents: each AgentContext owns exactly one.
type Guardian struct {
	policy             Policy
	deniedPathPrefixes []string // policy.DeniedPaths, canonicalized once at construction
	sink               Sink

	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	approvedSimilar map[approvalKey]bool
	approveAllFlag  bool
	iterationCount  int
}

// New constructs a Guardian bound to the given policy and audit sink.
func New(policy Policy, sink Sink) *Guardian {
	prefixes := make([]string, len(policy.DeniedPaths))
	for i, p := range policy.DeniedPaths {
		prefixes[i] = workspace.CanonicalPrefix(p)
	}
	return &Guardian{
		policy:             policy,
		deniedPathPrefixes: prefixes,
		sink:               sink,
		limiters:           make(map[string]*rate.Limiter),
		approvedSimilar:    make(map[approvalKey]bool),
	}
}

// Reconfigure swaps the process-wide approval mode, the only part of a
// Guardian's policy that changes after construction (§5 "mutable only
// via explicit reconfigure"). Denied paths/commands and rate limits stay
// fixed for the Guardian's lifetime.
func (g *Guardian) Reconfigure(mode action.ApprovalMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.policy.Mode = mode
	log.Info("guardian reconfigured", "mode", mode.String())
}

// CreateActionRequest is a pure constructor enforcing the risk
// monotonicity invariant via action.New.
func (g *Guardian) CreateActionRequest(tool string, risk action.RiskLevel, description string, details action.Details) (*action.Request, error) {
	return action.New(tool, risk, description, details)
}

// CheckPermission runs the decision procedure in evaluation order;
// the first matching rule wins. The returned Result is always valid —
// this step never fails outright, though side effects logged via
// LogExecution can.
func (g *Guardian) CheckPermission(req *action.Request) action.Result {
	if ruleID, reason, denied := g.checkDeniedRules(req); denied {
		log.Debug("permission denied", "tool", req.Tool, "rule_id", ruleID, "reason", reason)
		return action.Denied(ruleID, reason)
	}

	if g.policy.RateLimitPerTool > 0 && !g.allowRate(req.Tool) {
		log.Debug("permission denied", "tool", req.Tool, "rule_id", "rate_limited")
		return action.Denied("rate_limited", "rate limit exceeded for tool "+req.Tool)
	}

	if g.approveAllFlag && g.approvedSimilar[similarityKey(req)] {
		return action.Allowed()
	}

	return g.evaluateMode(req)
}

func (g *Guardian) checkDeniedRules(req *action.Request) (ruleID, reason string, denied bool) {
	if path, ok := pathFromDetails(req.Details); ok {
		canonical := workspace.CanonicalPrefix(path)
		for _, prefix := range g.deniedPathPrefixes {
			if strings.HasPrefix(canonical, prefix) {
				return "denied_paths", "path matches denied prefix " + prefix, true
			}
		}
	}
	if cmd, ok := req.Details.(action.ShellCommand); ok {
		for _, substr := range g.policy.DeniedCommands {
			if strings.Contains(cmd.Command, substr) {
				return "denied_commands", "command matches denied substring " + substr, true
			}
		}
	}
	return "", "", false
}

func pathFromDetails(d action.Details) (string, bool) {
	switch v := d.(type) {
	case action.FileRead:
		return v.Path, true
	case action.FileWrite:
		return v.Path, true
	}
	return "", false
}

func (g *Guardian) allowRate(tool string) bool {
	g.mu.Lock()
	limiter, ok := g.limiters[tool]
	if !ok {
		// RateLimitPerTool tokens per 60s window.
		limiter = rate.NewLimiter(rate.Limit(g.policy.RateLimitPerTool/60.0), g.rateBurst())
		g.limiters[tool] = limiter
	}
	g.mu.Unlock()
	return limiter.Allow()
}

func (g *Guardian) rateBurst() int {
	if g.policy.RateLimitBurst > 0 {
		return g.policy.RateLimitBurst
	}
	return 1
}

func (g *Guardian) evaluateMode(req *action.Request) action.Result {
	g.mu.Lock()
	mode := g.policy.Mode
	g.mu.Unlock()

	switch mode {
	case action.Safe:
		if req.Risk == action.ReadOnly {
			return action.Allowed()
		}
		if req.Risk == action.Destructive {
			return action.Denied("destructive_denied", "destructive actions denied outright under safe mode")
		}
		return action.RequiresApproval(req)

	case action.Cautious:
		if req.Risk == action.ReadOnly {
			return action.Allowed()
		}
		if req.Risk == action.Write {
			if path, ok := pathFromDetails(req.Details); ok && isInWorkspacePath(path) {
				return action.Allowed()
			}
			return action.RequiresApproval(req)
		}
		if req.Risk == action.Destructive {
			return action.Denied("destructive_denied", "destructive actions denied under cautious mode")
		}
		return action.RequiresApproval(req)

	case action.Auto:
		if req.Risk == action.Destructive {
			return action.RequiresApproval(req)
		}
		return action.Allowed()

	case action.Yolo:
		return action.Allowed()

	default:
		return action.Denied("unknown_mode", "unknown approval mode")
	}
}

// isInWorkspacePath reports whether a path has already been resolved
// to lie inside the workspace root. Callers are expected to pass paths
// through workspace.Resolve before constructing the ActionRequest; the
// Guardian only re-checks the cheap textual marker left by that step.
func isInWorkspacePath(path string) bool {
	return !strings.HasPrefix(path, "..") && !strings.Contains(path, "/../")
}

// RecordApproval stores a user decision for the approve-all-similar
// cache. Subsequent identical actions short-circuit to Allowed in
// CheckPermission once approveAll is set true for the session.
func (g *Guardian) RecordApproval(req *action.Request, approveAll bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if approveAll {
		g.approveAllFlag = true
	}
	g.approvedSimilar[similarityKey(req)] = true
}

// similarityKey normalizes a request for the approve-all-similar cache
// using the "path-prefix-v1" scheme: tool name plus, for path-bearing
// details, the path's parent directory rather than the exact path, so
// that repeated writes within one directory match as "similar".
func similarityKey(req *action.Request) approvalKey {
	if path, ok := pathFromDetails(req.Details); ok {
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			path = path[:idx]
		}
		return approvalKey(req.Tool + "|" + path)
	}
	if cmd, ok := req.Details.(action.ShellCommand); ok {
		fields := strings.Fields(cmd.Command)
		if len(fields) > 0 {
			return approvalKey(req.Tool + "|" + fields[0])
		}
	}
	return approvalKey(req.Tool)
}

// LogExecution appends an execution record to the audit sink, including
// BLAKE3 hashes of the call's args and output rather than the raw bytes
// themselves — the audit entry proves which exact args/output produced
// a result without making the log itself a copy of potentially
// sensitive tool payloads. A failure here is fatal to the action under
// the fail-closed-on-audit policy: callers must treat a non-nil error
// as "the action did not happen" regardless of whether the underlying
// tool actually ran.
func (g *Guardian) LogExecution(tool string, args, output []byte, success bool, duration time.Duration) error {
	payload := fmt.Sprintf("tool=%s args_hash=%s output_hash=%s success=%t duration_ms=%d",
		tool, hashHex(args), hashHex(output), success, duration.Milliseconds())
	if _, _, err := g.sink.Append(audit.KindToolExec, []byte(payload)); err != nil {
		return &AuditFailure{Err: err}
	}
	return nil
}

// hashHex returns the hex-encoded BLAKE3-256 digest of b, matching the
// hash family the audit chain itself uses for its hash links.
func hashHex(b []byte) string {
	h := blake3.New()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// NoteIteration increments the per-session iteration counter, failing
// once MaxIterations is reached (0 means unlimited).
func (g *Guardian) NoteIteration() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.iterationCount++
	if g.policy.MaxIterations > 0 && g.iterationCount > g.policy.MaxIterations {
		return &IterationLimitExceeded{Limit: g.policy.MaxIterations}
	}
	return nil
}

// IterationCount returns the current counter value, for tests and
// diagnostics.
func (g *Guardian) IterationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.iterationCount
}
