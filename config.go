package mach

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config tunes the write path and logging. The zero value is not valid; use
// DefaultConfig or LoadConfig.
type Config struct {
	// MaxProtectAttempts bounds the copy-then-all escalation loop in WriteWord.
	MaxProtectAttempts int `envconfig:"PROTECT_ATTEMPTS" default:"8" yaml:"protect-attempts"`
	// RestoreProtection puts back the page protection that was in place before
	// an escalated write. When false the page is left rwx.
	RestoreProtection bool `envconfig:"RESTORE_PROTECTION" default:"true" yaml:"restore-protection"`
	// Log enables the logflags layers listed in LogOutput.
	Log       bool   `envconfig:"LOG" default:"false" yaml:"log"`
	LogOutput string `envconfig:"LOG_OUTPUT" default:"" yaml:"log-output"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		MaxProtectAttempts: 8,
		RestoreProtection:  true,
	}
}

// LoadConfig reads MACH_* environment variables on top of the defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("mach", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile overlays the YAML file at path onto LoadConfig's result.
func LoadConfigFile(path string) (*Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the write path cannot honour.
func (c *Config) Validate() error {
	if c.MaxProtectAttempts < 1 {
		return fmt.Errorf("mach: protect-attempts must be at least 1, got %d", c.MaxProtectAttempts)
	}
	return nil
}
