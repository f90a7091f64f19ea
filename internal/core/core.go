// Package core wires the trust and execution subsystems into one
// process-wide handle, bound once at startup and passed explicitly to
// callers instead of living behind package-level globals. Construction
// follows the fixed dependency order: Config, Redactor, AuditChain,
// Guardian, Spawner, ToolRegistry, Bus, Sandbox.
package core

import (
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw-core/internal/audit"
	"github.com/nextlevelbuilder/goclaw-core/internal/bus"
	"github.com/nextlevelbuilder/goclaw-core/internal/config"
	"github.com/nextlevelbuilder/goclaw-core/internal/guardian"
	"github.com/nextlevelbuilder/goclaw-core/internal/isolate"
	"github.com/nextlevelbuilder/goclaw-core/internal/registry"
	"github.com/nextlevelbuilder/goclaw-core/internal/sandbox"
)

// Core is the bound-at-startup handle shared by every agent in the
// process. The redactor (internal/redact) is a set of stateless package
// functions, so it has no field here — it is still first in the
// construction order conceptually, since Guardian's audit payloads and
// Dispatch's output path both assume redaction is available immediately.
type Core struct {
	Config   *config.Config
	Audit    *audit.Chain
	Guardian *guardian.Guardian
	Spawner  *isolate.Spawner
	Registry *registry.Registry
	Bus      *bus.Bus
	Sandbox  *sandbox.Sandbox
}

// DefaultMailboxCapacity bounds each agent's inbox absent an explicit
// override; the bus applies backpressure (ErrMailboxFull) beyond this.
const DefaultMailboxCapacity = 256

// Bootstrap constructs a Core from the config file at path, following
// the spec's fixed init order. A missing config file is not fatal:
// Config.Load falls back to defaults plus environment overrides.
func Bootstrap(configPath string) (*Core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("core: load config: %w", err)
	}
	return BootstrapWithConfig(cfg)
}

// BootstrapWithConfig constructs a Core from an already-loaded Config,
// useful for tests that build Config in-memory rather than from disk.
func BootstrapWithConfig(cfg *config.Config) (*Core, error) {
	log := slog.With("component", "core")

	logPath := cfg.AuditLogPath()
	store, err := audit.OpenStore(logPath)
	if err != nil {
		return nil, fmt.Errorf("core: open audit store: %w", err)
	}

	entries, recovered, note, err := audit.Replay(logPath)
	if err != nil {
		return nil, fmt.Errorf("core: replay audit log: %w", err)
	}
	chain := audit.New(store)
	if len(entries) > 0 {
		report := chain.LoadEntries(entries)
		if !report.IsValid {
			log.Warn("audit chain recovered with truncation", "note", note, "recovered", recovered, "first_break", report.FirstBreak)
		}
	}

	policy, err := cfg.ToPolicy()
	if err != nil {
		return nil, fmt.Errorf("core: build guardian policy: %w", err)
	}
	g := guardian.New(policy, chain)

	spawner := isolate.New(isolate.Limits{
		MaxDepth:            1,
		MaxConcurrent:       20,
		MaxChildrenPerAgent: 5,
		ShortTermWindow:     40,
	}, policy, chain)

	reg := registry.New()

	messageBus := bus.New(DefaultMailboxCapacity)
	spawner.SetTerminator(messageBus)

	sb := sandbox.New()

	log.Info("core bootstrapped", "approval_mode", policy.Mode.String())

	return &Core{
		Config:   cfg,
		Audit:    chain,
		Guardian: g,
		Spawner:  spawner,
		Registry: reg,
		Bus:      messageBus,
		Sandbox:  sb,
	}, nil
}

// NewDispatcher builds a registry.Dispatcher bound to this Core's
// registry, guardian, and audit chain.
func (c *Core) NewDispatcher(approve registry.ApprovalCallback) *registry.Dispatcher {
	return registry.NewDispatcher(c.Registry, c.Guardian, c.Audit, approve)
}
