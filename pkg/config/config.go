// Package config loads the ambient settings cmd/vaultd needs to start a
// Service: where the store file lives, how long the lease-expiry tick
// waits between scans, and the bootstrap rule/rate-limit defaults that
// don't belong in an environment variable. The vault core itself (pkg/vault,
// pkg/store, pkg/policy, ...) reads no configuration of its own — every
// value here is plumbed in through explicit constructor arguments.
package config

import (
	"os"
	"time"
)

// Config holds vaultd's process-level configuration.
type Config struct {
	StorePath     string
	LogLevel      string
	TickInterval  time.Duration
	BootstrapPath string
	RedisAddr     string
}

// Load reads configuration from environment variables, applying the same
// defaults vaultd falls back to when unset.
func Load() *Config {
	storePath := os.Getenv("VAULT_STORE_PATH")
	if storePath == "" {
		storePath = "vault.json"
	}

	logLevel := os.Getenv("VAULT_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	tick := DefaultTickInterval
	if raw := os.Getenv("VAULT_TICK_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			tick = d
		}
	}

	bootstrapPath := os.Getenv("VAULT_BOOTSTRAP_PROFILE")
	if bootstrapPath == "" {
		bootstrapPath = "vault.bootstrap.yaml"
	}

	return &Config{
		StorePath:     storePath,
		LogLevel:      logLevel,
		TickInterval:  tick,
		BootstrapPath: bootstrapPath,
		RedisAddr:     os.Getenv("VAULT_REDIS_ADDR"),
	}
}

// DefaultTickInterval matches the lease manager's own default (spec.md
// §4.4: "interval configurable, default 60 s") so vaultd and a bare
// vault.Open() agree absent explicit configuration.
const DefaultTickInterval = 60 * time.Second
