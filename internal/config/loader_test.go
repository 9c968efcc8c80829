package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
app:
  name: novel-orchestrator
  env: development
llm:
  default_provider: main
  providers:
    main:
      kind: eino
      api_key: ${TEST_LLM_KEY:fallback-key}
      model: gpt-4o-mini
generation:
  mode: local
`

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadFromAppliesDefaultsAndExpansion(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", minimalConfig)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "fallback-key", cfg.LLM.Providers["main"].APIKey)
	assert.Equal(t, "local", cfg.Generation.Mode)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Entity)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL.Chapter)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL.WorldState)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Callback.MaxSkew)
	assert.Equal(t, time.Minute, cfg.Security.RateLimit.Window)
	assert.Equal(t, "novel-", cfg.Vector.NamespacePrefix)
}

func TestLoadFromEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", minimalConfig)
	writeConfig(t, dir, "config.staging.yaml", "generation:\n  max_attempts: 5\ncallback:\n  secret: s3cret\n")
	t.Setenv("APP_ENV", "staging")
	t.Setenv("TEST_LLM_KEY", "from-env")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
	assert.Equal(t, "from-env", cfg.LLM.Providers["main"].APIKey)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{
		LLM:        LLMConfig{DefaultProvider: "missing", Providers: map[string]ProviderConfig{}},
		Generation: GenerationConfig{Mode: "local", MaxAttempts: 3},
		Vector:     VectorConfig{ChunkSize: 1000, ChunkOverlap: 100},
	}
	assert.ErrorContains(t, cfg.Validate(), "missing")

	cfg.LLM.DefaultProvider = ""
	cfg.LLM.Providers["x"] = ProviderConfig{Kind: "carrier-pigeon"}
	assert.ErrorContains(t, cfg.Validate(), "unknown kind")
}

func TestValidateRequiresCallbackSecretOutsideDevelopment(t *testing.T) {
	cfg := &Config{
		App:        AppConfig{Env: "production"},
		Generation: GenerationConfig{Mode: "delegate", MaxAttempts: 3},
		Vector:     VectorConfig{ChunkSize: 1000, ChunkOverlap: 100},
	}
	assert.ErrorContains(t, cfg.Validate(), "callback.secret")

	cfg.Callback.Secret = "x"
	assert.NoError(t, cfg.Validate())
}

func TestExpandEnvKeepsUnknownPlaceholder(t *testing.T) {
	assert.Equal(t, "${NOT_SET_ANYWHERE_42}", expandEnv("${NOT_SET_ANYWHERE_42}"))
	assert.Equal(t, "d", expandEnv("${NOT_SET_ANYWHERE_42:d}"))
}
