package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "anthropic/claude-sonnet-4-5" {
		t.Fatalf("default model = %q", cfg.Model)
	}
	if cfg.HandoffTimeoutSec != 120 {
		t.Fatalf("default handoff timeout = %d", cfg.HandoffTimeoutSec)
	}
}

func TestLoadConfigFillsZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	raw := "model: openai/gpt-4o\nmax_tokens: 0\nhandoff_timeout_sec: -1\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "openai/gpt-4o" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.MaxTokens != 4096 {
		t.Fatalf("max tokens not defaulted: %d", cfg.MaxTokens)
	}
	if cfg.HandoffTimeoutSec != 120 {
		t.Fatalf("handoff timeout not defaulted: %d", cfg.HandoffTimeoutSec)
	}
	if cfg.AgentID != "default" {
		t.Fatalf("agent id not defaulted: %q", cfg.AgentID)
	}
}

func TestSaveAndReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := DefaultConfig()
	cfg.Model = "google/gemini-2.0-flash"
	cfg.Theme = "midnight"
	cfg.Credentials = map[string]string{"google": "k"}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Model != cfg.Model || loaded.Theme != cfg.Theme {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.Credentials["google"] != "k" {
		t.Fatalf("credentials lost on round trip")
	}
}

func TestSaveConfigRequiresPath(t *testing.T) {
	if err := SaveConfig(DefaultConfig(), ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
