package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 1, cfg.Ingest.ParallelPages)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
ai:
  chat_model: custom-chat
ingest:
  jpeg_quality: 70
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "custom-chat", cfg.AI.ChatModel)
	assert.Equal(t, 70, cfg.Ingest.JPEGQuality)
	// Untouched sections keep their defaults.
	assert.Equal(t, "qwen-vl-max", cfg.AI.VisionModel)
	assert.Equal(t, 5*time.Minute, cfg.AI.RequestTimeout)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("AI_API_KEY", "sk-from-env")
	t.Setenv("DATABASE_URL", "sqlite:/tmp/test-env.db")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-from-env", cfg.AI.APIKey)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/test-env.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestJWTSecretEnablesAuth(t *testing.T) {
	t.Setenv("JWT_SECRET", "family-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "family-secret", cfg.Auth.JWTSecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad db driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"bad jpeg quality", func(c *Config) { c.Ingest.JPEGQuality = 101 }},
		{"bad parallelism", func(c *Config) { c.Ingest.ParallelPages = 0 }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true; c.Auth.JWTSecret = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
