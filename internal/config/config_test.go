package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GEMINI_API_KEYS", "GEMINI_API_KEY", "GEMINI_API_KEY1", "GEMINI_API_KEY2",
		"GEMINI_API_KEY3", "GEMINI_API_KEY10", "OPENROUTER_API_KEY", "CAPTION_BACKEND", "REDIS_URL"} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gemini", cfg.Caption.Backend)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 4096, cfg.Normalize.MaxDimension)
	assert.Equal(t, 85, cfg.Normalize.JPEGQuality)
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes)
	assert.Error(t, cfg.RequireCredentials())
}

func TestLoadYAML(t *testing.T) {
	clearCredentialEnv(t)

	path := filepath.Join(t.TempDir(), "alttext.yaml")
	yaml := `
caption:
  backend: openrouter
  model: google/gemini-2.5-flash
  credentials: [k1, k2]
retry:
  max_attempts: 5
  initial_backoff: 250ms
  max_backoff: 4s
pipeline:
  concurrency: 3
rotation:
  driver: redis
  redis:
    addr: cache:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openrouter", cfg.Caption.Backend)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Caption.Model)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Caption.Credentials)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 3, cfg.Workers())
	assert.Equal(t, "cache:6379", cfg.Rotation.Redis.Addr)
	// untouched sections keep their defaults
	assert.Equal(t, 85, cfg.Normalize.JPEGQuality)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearCredentialEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("caption:\n  backend: dalle\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid caption backend")
}

func TestNumberedCredentialsFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GEMINI_API_KEY2", "second")
	t.Setenv("GEMINI_API_KEY1", "first")
	t.Setenv("GEMINI_API_KEY10", "tenth")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "tenth"}, cfg.Caption.Credentials)
	assert.Equal(t, 3, cfg.Workers())
}

func TestCredentialListFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GEMINI_API_KEYS", "a, b,,c")
	t.Setenv("GEMINI_API_KEY1", "ignored")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Caption.Credentials)
	require.NoError(t, cfg.RequireCredentials())
}

func TestOpenRouterCredentialFromEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("CAPTION_BACKEND", "openrouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"sk-or-test"}, cfg.Caption.Credentials)
}

func TestRedisURLSelectsRedisRotation(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("REDIS_URL", "redis://10.0.0.5:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Rotation.Driver)
	assert.Equal(t, "10.0.0.5:6379", cfg.Rotation.Redis.Addr)
}

func TestWorkersDefaultsToOne(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.Workers())
}
