package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.yaml", "addr: ':9000'\ncomfy_url: 'http://comfy:8188'\npoll_interval_ms: 250\nperformance:\n  batch_size: 2\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.ComfyURL != "http://comfy:8188" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("poll interval: %v", cfg.PollInterval())
	}
	if cfg.Performance.BatchSize != 2 {
		t.Fatalf("batch size: %d", cfg.Performance.BatchSize)
	}
}

func TestLoadJSONAndTOML(t *testing.T) {
	dir := t.TempDir()
	pj := writeFile(t, dir, "cfg.json", `{"bridge_url":"http://127.0.0.1:7999"}`)
	cfg, err := Load(pj)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.BridgeURL != "http://127.0.0.1:7999" {
		t.Fatalf("json config: %+v", cfg)
	}

	pt := writeFile(t, dir, "cfg.toml", "history_path = \"/tmp/h.jsonl\"\n")
	cfg, err = Load(pt)
	if err != nil {
		t.Fatalf("load toml: %v", err)
	}
	if cfg.HistoryPath != "/tmp/h.jsonl" {
		t.Fatalf("toml config: %+v", cfg)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "cfg.ini", "addr=:9000")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for .ini")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Addr != ":7860" || cfg.ComfyURL != "http://localhost:8188" {
		t.Fatalf("daemon defaults: %+v", cfg)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Fatalf("poll default: %v", cfg.PollInterval())
	}
	if cfg.Performance.BatchSize != 4 || cfg.Performance.ResolutionMultiplier != 1.0 {
		t.Fatalf("performance defaults: %+v", cfg.Performance)
	}
}
