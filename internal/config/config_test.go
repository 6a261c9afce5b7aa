package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyagent/sim-engine/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.Portfolio.InitialBalance.IntPart() == 100000)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Markets.GammaBase)
	assert.Equal(t, "gemini-2.5-flash", cfg.Analysis.Model)
	assert.Equal(t, "polyagent.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
portfolio:
  initial_balance: 50000.50
markets:
  gamma_base: http://localhost:8081
log:
  level: debug
  format: text
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "50000.5", cfg.Portfolio.InitialBalance.String())
	assert.Equal(t, "http://localhost:8081", cfg.Markets.GammaBase)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("PORT", "7777")
	t.Setenv("INITIAL_BALANCE", "250000")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "250000", cfg.Portfolio.InitialBalance.String())
	assert.Equal(t, "test-key", cfg.Analysis.GeminiAPIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
