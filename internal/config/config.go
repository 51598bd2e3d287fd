// Package config loads and validates the Finsight runtime configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Finsight.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Engine   EngineConfig   `yaml:"engine"`
	Runs     RunsConfig     `yaml:"runs"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// URL is the Postgres connection string. Empty selects the in-memory
	// store, which loses history on restart.
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LLMConfig struct {
	// Provider selects the model backend: "anthropic" or "openai".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	BaseURL         string `yaml:"base_url"`

	MaxTokens int `yaml:"max_tokens"`
}

type EngineConfig struct {
	// MaxTurns caps model calls per run before the forced summary.
	MaxTurns int `yaml:"max_turns"`

	// ToolResultBudget is the character budget applied to a single tool
	// result before it re-enters the conversation.
	ToolResultBudget int `yaml:"tool_result_budget"`

	// HistoryLimit is how many recent messages are loaded at run start.
	HistoryLimit int `yaml:"history_limit"`

	// ToolTimeout bounds a single capability execution.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ToolConcurrency bounds parallel capability executions per batch.
	ToolConcurrency int `yaml:"tool_concurrency"`
}

type RunsConfig struct {
	// KeepAliveInterval is the silence window after which observers receive
	// a synthetic keep-alive so transports do not time out.
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`

	// LockTTL controls eviction of idle per-user lock entries.
	LockTTL time.Duration `yaml:"lock_ttl"`

	// ObserverBuffer is the per-observer event queue capacity.
	ObserverBuffer int `yaml:"observer_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file, expands environment variables, applies
// defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Engine.MaxTurns == 0 {
		cfg.Engine.MaxTurns = 30
	}
	if cfg.Engine.ToolResultBudget == 0 {
		cfg.Engine.ToolResultBudget = 4000
	}
	if cfg.Engine.HistoryLimit == 0 {
		cfg.Engine.HistoryLimit = 50
	}
	if cfg.Engine.ToolTimeout == 0 {
		cfg.Engine.ToolTimeout = 60 * time.Second
	}
	if cfg.Engine.ToolConcurrency == 0 {
		cfg.Engine.ToolConcurrency = 5
	}
	if cfg.Runs.KeepAliveInterval == 0 {
		cfg.Runs.KeepAliveInterval = 120 * time.Second
	}
	if cfg.Runs.LockTTL == 0 {
		cfg.Runs.LockTTL = 10 * time.Minute
	}
	if cfg.Runs.ObserverBuffer == 0 {
		cfg.Runs.ObserverBuffer = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.AnthropicAPIKey == "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.OpenAIAPIKey == "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Database.URL == "" {
		cfg.Database.URL = v
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	if c.Engine.MaxTurns < 1 {
		return fmt.Errorf("engine.max_turns must be positive, got %d", c.Engine.MaxTurns)
	}
	if c.Engine.ToolResultBudget < 100 {
		return fmt.Errorf("engine.tool_result_budget too small: %d", c.Engine.ToolResultBudget)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level: %q", c.Logging.Level)
	}
	return nil
}

// NewLogger builds a slog.Logger from the logging section.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
