package mach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8, cfg.MaxProtectAttempts)
	assert.True(t, cfg.RestoreProtection)
	assert.False(t, cfg.Log)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MACH_PROTECT_ATTEMPTS", "3")
	t.Setenv("MACH_RESTORE_PROTECTION", "false")
	t.Setenv("MACH_LOG", "true")
	t.Setenv("MACH_LOG_OUTPUT", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxProtectAttempts)
	assert.False(t, cfg.RestoreProtection)
	assert.True(t, cfg.Log)
	assert.Equal(t, "memory", cfg.LogOutput)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsZeroAttempts(t *testing.T) {
	t.Setenv("MACH_PROTECT_ATTEMPTS", "0")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mach.yml")
	require.NoError(t, os.WriteFile(path, []byte("protect-attempts: 2\nrestore-protection: false\n"), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxProtectAttempts)
	assert.False(t, cfg.RestoreProtection)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
