package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GatewayURL string `yaml:"gateway_url"`
	Model      string `yaml:"model"` // "provider/model-id"
	AgentID    string `yaml:"agent_id"`
	MaxTokens  int    `yaml:"max_tokens"`
	Theme      string `yaml:"theme"`

	// Credentials maps provider name to API key. Environment variables take
	// precedence so keys never have to live on disk.
	Credentials map[string]string `yaml:"credentials,omitempty"`

	HandoffTimeoutSec int `yaml:"handoff_timeout_sec"`
}

func DefaultConfig() Config {
	return Config{
		GatewayURL:        "https://gateway.chatrelay.dev",
		Model:             "anthropic/claude-sonnet-4-5",
		AgentID:           "default",
		MaxTokens:         4096,
		Theme:             "porcelain",
		HandoffTimeoutSec: 120,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		cfg.GatewayURL = "https://gateway.chatrelay.dev"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "anthropic/claude-sonnet-4-5"
	}
	if strings.TrimSpace(cfg.AgentID) == "" {
		cfg.AgentID = "default"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.HandoffTimeoutSec <= 0 {
		cfg.HandoffTimeoutSec = 120
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "chatrelay", "config.yml")
}
