package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err, "explicit missing path must fail")

	// No file at the default path inside a scratch dir.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Dataset.Backend)
	assert.Equal(t, 8, cfg.Agent.ContextWindow)
	assert.Equal(t, 200, cfg.Agent.RowCap)
	assert.Equal(t, 30*time.Second, cfg.Agent.CompletionTimeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Agent.Narrative)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paiviz.yaml")
	yaml := `
dataset:
  backend: sqlite
  data_dir: /srv/olist
provider:
  name: ollama
  ollama:
    model: qwen2.5
agent:
  context_window: 4
  row_cap: 50
  query_timeout: 2s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dataset.Backend)
	assert.Equal(t, "/srv/olist", cfg.Dataset.DataDir)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "qwen2.5", cfg.Provider.Ollama.Model)
	assert.Equal(t, 4, cfg.Agent.ContextWindow)
	assert.Equal(t, 50, cfg.Agent.RowCap)
	assert.Equal(t, 2*time.Second, cfg.Agent.QueryTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset fields still get defaults.
	assert.Equal(t, 1024, cfg.Agent.MaxTokens)
	assert.Equal(t, "http://localhost:11434", cfg.Provider.Ollama.Host)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("ANTHROPIC_API_KEY", "")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Provider.OpenAI.APIKey)
	assert.Equal(t, "openai", cfg.Provider.Name, "provider inferred from key material")
}

func TestLoad_BadBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paiviz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataset:\n  backend: oracle\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset backend")
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{User: "olist", Password: "pw", Database: "olist", SSLMode: "disable"}
	dsn := pg.DSN("127.0.0.1", 15432)
	assert.Equal(t, "host=127.0.0.1 port=15432 user=olist password=pw dbname=olist sslmode=disable", dsn)
}
