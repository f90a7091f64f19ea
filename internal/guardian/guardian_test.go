package guardian

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
	"github.com/nextlevelbuilder/goclaw-core/internal/audit"
)

type noopSink struct{}

func (noopSink) Append(kind audit.Kind, payload []byte) (uint64, audit.Hash, error) {
	return 0, audit.Hash{}, nil
}

type failingSink struct{}

var errSinkDown = errors.New("sink down")

func (failingSink) Append(kind audit.Kind, payload []byte) (uint64, audit.Hash, error) {
	return 0, audit.Hash{}, errSinkDown
}

func mustRequest(t *testing.T, tool string, risk action.RiskLevel, details action.Details) *action.Request {
	t.Helper()
	req, err := action.New(tool, risk, "test action", details)
	if err != nil {
		t.Fatalf("action.New: %v", err)
	}
	return req
}

func TestGuardian_DeniedPathWins(t *testing.T) {
	g := New(Policy{Mode: action.Yolo, DeniedPaths: []string{"/etc"}}, noopSink{})
	req := mustRequest(t, "read_file", action.ReadOnly, action.FileRead{Path: "/etc/passwd"})

	result := g.CheckPermission(req)
	if !result.IsDenied() {
		t.Fatalf("expected denied, got %+v", result)
	}
	if result.RuleID != "denied_paths" {
		t.Errorf("expected denied_paths rule id, got %q", result.RuleID)
	}
}

func TestGuardian_DeniedPathMatchesViaSymlink(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret")
	if err := os.Mkdir(secret, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	g := New(Policy{Mode: action.Yolo, DeniedPaths: []string{secret}}, noopSink{})
	req := mustRequest(t, "read_file", action.ReadOnly, action.FileRead{Path: filepath.Join(link, "passwd")})

	if !g.CheckPermission(req).IsDenied() {
		t.Error("expected path reached via symlink to the denied directory to be denied")
	}
}

func TestGuardian_DeniedCommandWins(t *testing.T) {
	g := New(Policy{Mode: action.Yolo, DeniedCommands: []string{"curl"}}, noopSink{})
	req := mustRequest(t, "shell", action.Execute, action.ShellCommand{Command: "curl http://example.com"})

	result := g.CheckPermission(req)
	if !result.IsDenied() {
		t.Fatalf("expected denied, got %+v", result)
	}
}

func TestGuardian_SafeModeOnlyReadOnlyAllowed(t *testing.T) {
	g := New(Policy{Mode: action.Safe}, noopSink{})

	readReq := mustRequest(t, "read_file", action.ReadOnly, action.FileRead{Path: "/workspace/a.txt"})
	if !g.CheckPermission(readReq).IsAllowed() {
		t.Error("expected read-only allowed under safe mode")
	}

	writeReq := mustRequest(t, "write_file", action.Write, action.FileWrite{Path: "/workspace/a.txt", Size: 10})
	if !g.CheckPermission(writeReq).NeedsApproval() {
		t.Error("expected write to require approval under safe mode")
	}

	destructiveReq := mustRequest(t, "drop_table", action.Destructive, action.DestructiveOp{Description: "drop table"})
	if !g.CheckPermission(destructiveReq).IsDenied() {
		t.Error("expected destructive denied outright under safe mode")
	}
}

func TestGuardian_CautiousModeInWorkspaceWriteAllowed(t *testing.T) {
	g := New(Policy{Mode: action.Cautious}, noopSink{})

	inWorkspace := mustRequest(t, "write_file", action.Write, action.FileWrite{Path: "workspace/a.txt", Size: 1})
	if !g.CheckPermission(inWorkspace).IsAllowed() {
		t.Error("expected in-workspace write allowed under cautious mode")
	}

	outside := mustRequest(t, "write_file", action.Write, action.FileWrite{Path: "../../etc/a.txt", Size: 1})
	if !g.CheckPermission(outside).NeedsApproval() {
		t.Error("expected out-of-workspace write to require approval under cautious mode")
	}
}

func TestGuardian_AutoModeOnlyDestructiveNeedsApproval(t *testing.T) {
	g := New(Policy{Mode: action.Auto}, noopSink{})

	shellReq := mustRequest(t, "shell", action.Execute, action.ShellCommand{Command: "ls"})
	if !g.CheckPermission(shellReq).IsAllowed() {
		t.Error("expected execute allowed under auto mode")
	}

	destructiveReq := mustRequest(t, "drop_table", action.Destructive, action.DestructiveOp{})
	if !g.CheckPermission(destructiveReq).NeedsApproval() {
		t.Error("expected destructive to require approval under auto mode")
	}
}

func TestGuardian_YoloModeAllowsEverything(t *testing.T) {
	g := New(Policy{Mode: action.Yolo}, noopSink{})
	req := mustRequest(t, "drop_table", action.Destructive, action.DestructiveOp{})
	if !g.CheckPermission(req).IsAllowed() {
		t.Error("expected everything allowed under yolo mode")
	}
}

func TestGuardian_RateLimitDenies(t *testing.T) {
	g := New(Policy{Mode: action.Yolo, RateLimitPerTool: 60, RateLimitBurst: 1}, noopSink{})
	req := mustRequest(t, "noisy_tool", action.ReadOnly, action.FileRead{Path: "/workspace/a"})

	first := g.CheckPermission(req)
	if !first.IsAllowed() {
		t.Fatalf("expected first call allowed, got %+v", first)
	}
	second := g.CheckPermission(req)
	if !second.IsDenied() {
		t.Fatalf("expected second call rate-limited, got %+v", second)
	}
}

func TestGuardian_ApproveAllSimilarShortCircuits(t *testing.T) {
	g := New(Policy{Mode: action.Safe}, noopSink{})
	req := mustRequest(t, "write_file", action.Write, action.FileWrite{Path: "/workspace/dir/a.txt", Size: 1})

	if !g.CheckPermission(req).NeedsApproval() {
		t.Fatal("expected first write to require approval under safe mode")
	}
	g.RecordApproval(req, true)

	similar := mustRequest(t, "write_file", action.Write, action.FileWrite{Path: "/workspace/dir/b.txt", Size: 2})
	if !g.CheckPermission(similar).IsAllowed() {
		t.Error("expected similar action to short-circuit to allowed")
	}
}

func TestGuardian_NoteIterationLimit(t *testing.T) {
	g := New(Policy{Mode: action.Yolo, MaxIterations: 2}, noopSink{})
	if err := g.NoteIteration(); err != nil {
		t.Fatalf("unexpected error on first iteration: %v", err)
	}
	if err := g.NoteIteration(); err != nil {
		t.Fatalf("unexpected error on second iteration: %v", err)
	}
	if err := g.NoteIteration(); err == nil {
		t.Fatal("expected IterationLimitExceeded on third iteration")
	}
}

func TestGuardian_LogExecutionPropagatesAuditFailure(t *testing.T) {
	g := New(Policy{Mode: action.Yolo}, failingSink{})
	err := g.LogExecution("any_tool", []byte("args"), []byte("output"), true, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected audit failure to propagate")
	}
	var auditErr *AuditFailure
	if !errors.As(err, &auditErr) {
		t.Errorf("expected *AuditFailure, got %T", err)
	}
}

func TestGuardian_LogExecutionPayloadCarriesArgsAndOutputHashes(t *testing.T) {
	var captured []byte
	sink := capturingSink{fn: func(payload []byte) { captured = payload }}
	g := New(Policy{Mode: action.Yolo}, sink)

	if err := g.LogExecution("read_file", []byte(`{"path":"/a"}`), []byte("contents"), true, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := string(captured)
	if !strings.Contains(payload, "tool=read_file") {
		t.Errorf("expected payload to name the tool, got %q", payload)
	}
	if !strings.Contains(payload, "args_hash=") || !strings.Contains(payload, "output_hash=") {
		t.Errorf("expected payload to carry args/output hashes, got %q", payload)
	}
	if strings.Contains(payload, "/a") || strings.Contains(payload, "contents") {
		t.Errorf("expected raw args/output bytes NOT to appear in payload, got %q", payload)
	}
}

func TestGuardian_ReconfigureChangesMode(t *testing.T) {
	g := New(Policy{Mode: action.Safe}, noopSink{})
	destructiveReq := mustRequest(t, "drop_table", action.Destructive, action.DestructiveOp{Description: "drop table"})
	if !g.CheckPermission(destructiveReq).IsDenied() {
		t.Fatal("expected destructive denied under initial safe mode")
	}

	g.Reconfigure(action.Yolo)

	if !g.CheckPermission(destructiveReq).IsAllowed() {
		t.Error("expected destructive allowed after reconfiguring to yolo mode")
	}
}

type capturingSink struct {
	fn func(payload []byte)
}

func (c capturingSink) Append(kind audit.Kind, payload []byte) (uint64, audit.Hash, error) {
	c.fn(payload)
	return 0, audit.Hash{}, nil
}
