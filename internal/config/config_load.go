package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Guardian: GuardianConfig{
			ApprovalMode:  "safe",
			MaxIterations: 50,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Cache: CacheConfig{
			Enabled:            true,
			MinCacheableTokens: 1024,
		},
		Sandbox: SandboxConfig{
			MaxFuel:          10_000_000,
			MaxMemoryBytes:   16 << 20,
			WallClockSeconds: 30,
		},
		Audit: AuditConfig{
			LogPath: "~/.goclaw-core/audit.log",
		},
		Credentials: CredentialsConfig{
			ServiceName: "goclaw-core",
			Backend:     "keyring",
		},
		Workspace: "~/.goclaw-core/workspace",
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A
// missing file is not an error: defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment variables, which always take
// precedence over file values. Only non-secret operational knobs are
// listed here; secrets (provider API keys, keyring contents) never flow
// through this config surface at all — they live in internal/credentials.
func (c *Config) applyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("GOCLAW_CORE_APPROVAL_MODE", &c.Guardian.ApprovalMode)
	envInt("GOCLAW_CORE_MAX_ITERATIONS", &c.Guardian.MaxIterations)
	envInt("GOCLAW_CORE_RATE_LIMIT_RPM", &c.RateLimit.RequestsPerMinute)
	envStr("GOCLAW_CORE_WORKSPACE", &c.Workspace)
	envStr("GOCLAW_CORE_AUDIT_LOG_PATH", &c.Audit.LogPath)
	envStr("GOCLAW_CORE_CREDENTIALS_SERVICE", &c.Credentials.ServiceName)
	envStr("GOCLAW_CORE_CREDENTIALS_BACKEND", &c.Credentials.Backend)
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a short SHA-256 digest of the config, used for
// optimistic-concurrency checks on reconfiguration.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return home
}

// WorkspacePath returns the expanded workspace directory.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Workspace)
}

// AuditLogPath returns the expanded audit log path.
func (c *Config) AuditLogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Audit.LogPath)
}
