package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Engine.MaxTurns != 30 {
		t.Errorf("MaxTurns = %d, want 30", cfg.Engine.MaxTurns)
	}
	if cfg.Engine.ToolResultBudget != 4000 {
		t.Errorf("ToolResultBudget = %d, want 4000", cfg.Engine.ToolResultBudget)
	}
	if cfg.Runs.KeepAliveInterval != 120*time.Second {
		t.Errorf("KeepAliveInterval = %v, want 120s", cfg.Runs.KeepAliveInterval)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", cfg.LLM.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finsight.yaml")
	data := `
server:
  port: 9000
llm:
  provider: openai
  model: gpt-4o
engine:
  max_turns: 12
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.Engine.MaxTurns != 12 {
		t.Errorf("MaxTurns = %d, want 12", cfg.Engine.MaxTurns)
	}
	// Unset fields still get defaults.
	if cfg.Engine.ToolResultBudget != 4000 {
		t.Errorf("ToolResultBudget = %d, want default 4000", cfg.Engine.ToolResultBudget)
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("FINSIGHT_TEST_DB", "postgres://localhost/finsight_test")

	dir := t.TempDir()
	path := filepath.Join(dir, "finsight.yaml")
	data := "database:\n  url: ${FINSIGHT_TEST_DB}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/finsight_test" {
		t.Errorf("URL = %q, env var not expanded", cfg.Database.URL)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "llama-on-a-toaster"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestValidateRejectsTinyBudget(t *testing.T) {
	cfg := Default()
	cfg.Engine.ToolResultBudget = 10
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for tiny tool result budget")
	}
}
