package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"genbridge/internal/common/fsutil"
)

// Performance mirrors the user's persisted performance settings. These are
// read once at submit time and passed into the orchestrator as values, never
// looked up mid-flow.
type Performance struct {
	BatchSize            int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	ResolutionMultiplier float64 `json:"resolution_multiplier" yaml:"resolution_multiplier" toml:"resolution_multiplier"`
}

// Config holds runtime parameters for the bridge daemon and the client CLI.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	// Bridge daemon.
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ComfyURL  string `json:"comfy_url" yaml:"comfy_url" toml:"comfy_url"`
	StylesDir string `json:"styles_dir" yaml:"styles_dir" toml:"styles_dir"`

	// Client side.
	BridgeURL       string      `json:"bridge_url" yaml:"bridge_url" toml:"bridge_url"`
	PollIntervalMS  int         `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	HistoryPath     string      `json:"history_path" yaml:"history_path" toml:"history_path"`
	Performance     Performance `json:"performance" yaml:"performance" toml:"performance"`
	TranslatePrompt bool        `json:"translate_prompt" yaml:"translate_prompt" toml:"translate_prompt"`
}

// PollInterval returns the job polling interval (reference default 500ms).
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unspecified fields with the reference defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":7860"
	}
	if c.ComfyURL == "" {
		c.ComfyURL = "http://localhost:8188"
	}
	if c.BridgeURL == "" {
		c.BridgeURL = "http://127.0.0.1:7860"
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 500
	}
	if c.HistoryPath == "" {
		c.HistoryPath = "history.jsonl"
	}
	if c.Performance.BatchSize <= 0 {
		c.Performance.BatchSize = 4
	}
	if c.Performance.ResolutionMultiplier <= 0 {
		c.Performance.ResolutionMultiplier = 1.0
	}
	if p, err := fsutil.ExpandHome(c.StylesDir); err == nil {
		c.StylesDir = p
	}
	if p, err := fsutil.ExpandHome(c.HistoryPath); err == nil {
		c.HistoryPath = p
	}
}
