package core

import (
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw-core/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Audit.LogPath = filepath.Join(t.TempDir(), "audit.log")
	cfg.Credentials.Backend = "memory"
	return cfg
}

func TestBootstrapWithConfig_WiresAllSubsystems(t *testing.T) {
	c, err := BootstrapWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Audit == nil || c.Guardian == nil || c.Spawner == nil || c.Registry == nil || c.Bus == nil || c.Sandbox == nil {
		t.Fatal("expected every subsystem to be wired")
	}
}

func TestBootstrapWithConfig_RejectsBadApprovalMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Guardian.ApprovalMode = "not-a-mode"
	if _, err := BootstrapWithConfig(cfg); err == nil {
		t.Error("expected error for invalid approval_mode")
	}
}

func TestCore_NewDispatcherUsesWiredSubsystems(t *testing.T) {
	c, err := BootstrapWithConfig(testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := c.NewDispatcher(nil)
	if d == nil {
		t.Fatal("expected a non-nil dispatcher")
	}
}
