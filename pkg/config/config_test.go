package config_test

import (
	"testing"

	"github.com/Mindburn-Labs/helix/core/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	// Ensure clean env
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RECEIPT_DB_PATH", "")
	t.Setenv("POLICY_PROFILES_DIR", "")
	t.Setenv("POLICY_PROFILE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KNOWLEDGE_REGISTRY_PATH", "")
	t.Setenv("ATTESTATION_SECRET", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "localhost") // Default is local
	assert.Equal(t, "data/decisions.db", cfg.ReceiptDB)
	assert.Equal(t, "profiles", cfg.ProfilesDir)
	assert.Equal(t, "production", cfg.ProfileName)
	assert.Equal(t, "data/registry.json", cfg.RegistryPath)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.AttestSecret)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("RECEIPT_DB_PATH", "/var/lib/helix/decisions.db")
	t.Setenv("POLICY_PROFILES_DIR", "/etc/helix/profiles")
	t.Setenv("POLICY_PROFILE", "staging")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KNOWLEDGE_REGISTRY_PATH", "/etc/helix/registry.json")
	t.Setenv("ATTESTATION_SECRET", "s3cret")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "/var/lib/helix/decisions.db", cfg.ReceiptDB)
	assert.Equal(t, "/etc/helix/profiles", cfg.ProfilesDir)
	assert.Equal(t, "staging", cfg.ProfileName)
	assert.Equal(t, "/etc/helix/registry.json", cfg.RegistryPath)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "s3cret", cfg.AttestSecret)
}
