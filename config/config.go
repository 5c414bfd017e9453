// Package config defines the application configuration.
//
// Configuration is loaded once at process start and treated as immutable:
// defaults first, then an optional YAML file, then environment overrides
// for API keys. Separated from cmd so that dataset, ai and agent can
// depend on config without importing Cobra.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "paiviz.yaml"

// Config holds all application settings.
type Config struct {
	Dataset  DatasetConfig  `koanf:"dataset"`
	Provider ProviderConfig `koanf:"provider"`
	Agent    AgentConfig    `koanf:"agent"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
}

// DatasetConfig selects and configures the dataset backend.
type DatasetConfig struct {
	// Backend is one of "duckdb", "sqlite", "postgres".
	Backend string `koanf:"backend"`

	// Path is the database file. Empty means in-memory for duckdb/sqlite.
	Path string `koanf:"path"`

	// DataDir holds the source CSV files; every *.csv becomes a table
	// named after the file stem. Ignored by the postgres backend.
	DataDir string `koanf:"data_dir"`

	Postgres PostgresConfig `koanf:"postgres"`
}

// PostgresConfig points at a pre-loaded warehouse.
type PostgresConfig struct {
	Host     string    `koanf:"host"`
	Port     int       `koanf:"port"`
	User     string    `koanf:"user"`
	Password string    `koanf:"password"`
	Database string    `koanf:"database"`
	SSLMode  string    `koanf:"sslmode"`
	SSH      SSHConfig `koanf:"ssh"`
}

// SSHConfig holds SSH tunnel settings for the postgres backend.
type SSHConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	User          string `koanf:"user"`
	KeyPath       string `koanf:"key_path"`
	KeyPassphrase string `koanf:"key_passphrase"`
}

// DSN builds a pgx-compatible connection string. When the SSH tunnel is
// active the caller overrides Host/Port with the local tunnel endpoint.
func (c PostgresConfig) DSN(host string, port int) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, c.User, c.Password, c.Database, c.SSLMode)
}

// ProviderConfig selects the completion service.
type ProviderConfig struct {
	// Name is one of "openai", "anthropic", "gemini", "ollama", "placeholder".
	Name string `koanf:"name"`

	OpenAI    OpenAIConfig    `koanf:"openai"`
	Anthropic AnthropicConfig `koanf:"anthropic"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Ollama    OllamaConfig    `koanf:"ollama"`
}

type OpenAIConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type AnthropicConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type GeminiConfig struct {
	APIKey string `koanf:"api_key"`
	Model  string `koanf:"model"`
}

type OllamaConfig struct {
	Host  string `koanf:"host"`
	Model string `koanf:"model"`
}

// AgentConfig bounds the per-turn pipeline.
type AgentConfig struct {
	// ContextWindow is the number of recent turns supplied to synthesis.
	ContextWindow int `koanf:"context_window"`

	// RowCap is the maximum number of rows a query may return before
	// the result is truncated.
	RowCap int `koanf:"row_cap"`

	CompletionTimeout time.Duration `koanf:"completion_timeout"`
	QueryTimeout      time.Duration `koanf:"query_timeout"`

	// MaxTokens bounds each completion response.
	MaxTokens int `koanf:"max_tokens"`

	// Narrative enables the summarization call after a successful query.
	Narrative bool `koanf:"narrative"`

	// Suggestions enables follow-up question generation.
	Suggestions bool `koanf:"suggestions"`
}

// ServerConfig configures `paiviz serve`.
type ServerConfig struct {
	Addr        string        `koanf:"addr"`
	MetricsAddr string        `koanf:"metrics_addr"`
	SessionTTL  time.Duration `koanf:"session_ttl"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "text" or "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Backend: "duckdb",
			DataDir: "data",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "prefer",
				SSH:     SSHConfig{Port: 22},
			},
		},
		Provider: ProviderConfig{},
		Agent: AgentConfig{
			ContextWindow:     8,
			RowCap:            200,
			CompletionTimeout: 30 * time.Second,
			QueryTimeout:      10 * time.Second,
			MaxTokens:         1024,
			Narrative:         true,
			Suggestions:       false,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9091",
			SessionTTL:  30 * time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from the given YAML file (if any), applies
// defaults for unset fields and environment overrides for credentials.
// An explicitly given path must exist; the default path may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err == nil {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides credentials from the environment, matching the
// variables the provider vendors themselves document.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Provider.OpenAI.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Provider.Anthropic.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Provider.Gemini.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Provider.Ollama.Host = v
	}
}

// applyDefaults fills model names and picks a provider when the file
// left them unset.
func (c *Config) applyDefaults() {
	if c.Provider.OpenAI.Model == "" {
		c.Provider.OpenAI.Model = "gpt-4o"
	}
	if c.Provider.Anthropic.Model == "" {
		c.Provider.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Provider.Gemini.Model == "" {
		c.Provider.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Provider.Ollama.Host == "" {
		c.Provider.Ollama.Host = "http://localhost:11434"
	}
	if c.Provider.Ollama.Model == "" {
		c.Provider.Ollama.Model = "llama3.2"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = c.inferProvider()
	}
	if c.Agent.ContextWindow <= 0 {
		c.Agent.ContextWindow = 8
	}
	if c.Agent.RowCap <= 0 {
		c.Agent.RowCap = 200
	}
	if c.Agent.CompletionTimeout <= 0 {
		c.Agent.CompletionTimeout = 30 * time.Second
	}
	if c.Agent.QueryTimeout <= 0 {
		c.Agent.QueryTimeout = 10 * time.Second
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 1024
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 30 * time.Minute
	}
}

// inferProvider picks the first provider with a key configured, falling
// back to the offline placeholder so the binary always starts.
func (c *Config) inferProvider() string {
	switch {
	case c.Provider.OpenAI.APIKey != "":
		return "openai"
	case c.Provider.Anthropic.APIKey != "":
		return "anthropic"
	case c.Provider.Gemini.APIKey != "":
		return "gemini"
	default:
		return "placeholder"
	}
}

func (c *Config) validate() error {
	switch c.Dataset.Backend {
	case "duckdb", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown dataset backend %q (want duckdb, sqlite or postgres)", c.Dataset.Backend)
	}
	return nil
}
