package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BootstrapProfile is the optional YAML file layered under env vars for
// values that don't belong in a single env var: the default permission-rule
// text new credentials seed for a given category, and rate-limit tuning
// for the Policy Engine's sliding-window counter. Precedence in vaultd is
// flag > env > this file > built-in default.
type BootstrapProfile struct {
	DefaultRules map[string][]string `yaml:"default_rules"`
	RateLimit    RateLimitTuning     `yaml:"rate_limit"`
}

// RateLimitTuning mirrors policy.RateLimitDefaults (vaultd passes it through
// vault.WithRateLimitDefaults), so an operator can set the fallback
// rate-limit thresholds without a code change.
type RateLimitTuning struct {
	DefaultMaxPerMinute int `yaml:"default_max_per_minute"`
	DefaultMaxPerHour   int `yaml:"default_max_per_hour"`
}

// LoadBootstrapProfile reads a BootstrapProfile from a YAML file. A missing
// file is not an error — vaultd falls back to built-in defaults — but a
// present, malformed file is, so operator typos are not silently ignored.
func LoadBootstrapProfile(path string) (*BootstrapProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &BootstrapProfile{}, nil
		}
		return nil, fmt.Errorf("read bootstrap profile %q: %w", path, err)
	}

	var profile BootstrapProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse bootstrap profile %q: %w", path, err)
	}
	return &profile, nil
}

// RulesFor returns the default permission-rule text configured for a
// credential category, or nil if the profile has none.
func (p *BootstrapProfile) RulesFor(category string) []string {
	if p == nil {
		return nil
	}
	return p.DefaultRules[category]
}
