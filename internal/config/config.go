// Package config implements the configuration surface: a JSON(5) file on
// disk overlaid with environment-variable overrides, following the
// teacher gateway's Config/Load/ApplyEnvOverrides pattern. No secret is
// ever round-tripped through the JSON file.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
	"github.com/nextlevelbuilder/goclaw-core/internal/credentials"
	"github.com/nextlevelbuilder/goclaw-core/internal/guardian"
	"github.com/nextlevelbuilder/goclaw-core/internal/sandbox"
)

// Config is the root configuration for the trust and execution core.
type Config struct {
	Guardian    GuardianConfig    `json:"guardian"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
	Cache       CacheConfig       `json:"cache"`
	Sandbox     SandboxConfig     `json:"sandbox"`
	Audit       AuditConfig       `json:"audit"`
	Credentials CredentialsConfig `json:"credentials"`
	Workspace   string            `json:"workspace"`

	mu sync.RWMutex
}

// GuardianConfig carries spec §6's approval/denial surface.
type GuardianConfig struct {
	ApprovalMode   string   `json:"approval_mode"`
	MaxIterations  int      `json:"max_iterations"`
	DeniedPaths    []string `json:"denied_paths"`
	DeniedCommands []string `json:"denied_commands"`
}

// RateLimitConfig bounds both tool call frequency and token throughput.
// Zero means unlimited, matching spec §6.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	ITPM              int `json:"itpm"`
	OTPM              int `json:"otpm"`
}

// CacheConfig shapes prompt-cache hints forwarded to the completion
// provider; the core only carries these values, it does not act on them.
type CacheConfig struct {
	Enabled            bool `json:"enabled"`
	MinCacheableTokens int  `json:"min_cacheable_tokens"`
}

// SandboxConfig is the on-disk shape of spec §6's sandbox.* surface. It
// converts to sandbox.Config (internal/sandbox) with defaults applied.
type SandboxConfig struct {
	MaxFuel          uint64   `json:"max_fuel"`
	MaxMemoryBytes   int64    `json:"max_memory_bytes"`
	Capabilities     []string `json:"capabilities"`
	WallClockSeconds int      `json:"wall_clock_seconds,omitempty"`
}

const wasmPageSize = 65536

// ToSandboxConfig converts the on-disk shape into sandbox.Config.
func (s SandboxConfig) ToSandboxConfig() sandbox.Config {
	cfg := sandbox.Config{}
	if s.MaxFuel > 0 {
		cfg.FuelLimit = s.MaxFuel
	}
	if s.MaxMemoryBytes > 0 {
		cfg.MemoryPages = uint32(s.MaxMemoryBytes / wasmPageSize)
		if cfg.MemoryPages == 0 {
			cfg.MemoryPages = 1
		}
	}
	if s.WallClockSeconds > 0 {
		cfg.WallClock = time.Duration(s.WallClockSeconds) * time.Second
	}
	if len(s.Capabilities) > 0 {
		cfg.Capabilities = make(map[sandbox.Capability]bool, len(s.Capabilities))
		for _, name := range s.Capabilities {
			cfg.Capabilities[sandbox.Capability(name)] = true
		}
	}
	return cfg
}

// AuditConfig locates the append-only hash-chained log file.
type AuditConfig struct {
	LogPath string `json:"log_path"`
}

// CredentialsConfig selects the credential store backend. Backend is
// "keyring" (OS-native, default) or "memory" (headless/CI).
type CredentialsConfig struct {
	ServiceName string `json:"service_name"`
	Backend     string `json:"backend,omitempty"`
}

// NewStore constructs the backend named by Backend.
func (c CredentialsConfig) NewStore() credentials.Store {
	if c.Backend == "memory" {
		return credentials.NewMemoryStore()
	}
	service := c.ServiceName
	if service == "" {
		service = "goclaw-core"
	}
	return credentials.NewKeyringStore(service)
}

// parsedApprovalMode parses GuardianConfig.ApprovalMode into
// action.ApprovalMode via action.ParseApprovalMode, defaulting to Safe.
func (g GuardianConfig) parsedApprovalMode() (action.ApprovalMode, error) {
	if g.ApprovalMode == "" {
		return action.Safe, nil
	}
	mode, ok := action.ParseApprovalMode(g.ApprovalMode)
	if !ok {
		return 0, fmt.Errorf("config: unknown approval_mode %q", g.ApprovalMode)
	}
	return mode, nil
}

// ToPolicy converts GuardianConfig (plus the rate-limit surface) into a
// guardian.Policy.
func (c *Config) ToPolicy() (guardian.Policy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mode, err := c.Guardian.parsedApprovalMode()
	if err != nil {
		return guardian.Policy{}, err
	}

	policy := guardian.Policy{
		Mode:           mode,
		DeniedPaths:    append([]string(nil), c.Guardian.DeniedPaths...),
		DeniedCommands: append([]string(nil), c.Guardian.DeniedCommands...),
		MaxIterations:  c.Guardian.MaxIterations,
	}
	if c.RateLimit.RequestsPerMinute > 0 {
		policy.RateLimitPerTool = float64(c.RateLimit.RequestsPerMinute)
		policy.RateLimitBurst = c.RateLimit.RequestsPerMinute
	}
	return policy, nil
}
