package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Poll.Interval != 60*time.Second {
		t.Errorf("interval = %s, want 60s", cfg.Poll.Interval)
	}
	if cfg.Poll.HistoryCapacity != 30 {
		t.Errorf("history_capacity = %d, want 30", cfg.Poll.HistoryCapacity)
	}
	if cfg.Proxy != "" {
		t.Errorf("proxy = %q, want empty by default", cfg.Proxy)
	}
}

func TestLoadProxyKey(t *testing.T) {
	dir := t.TempDir()
	yaml := "proxy: http://localhost:3128\npoll:\n  interval: 30s\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy != "http://localhost:3128" {
		t.Errorf("proxy = %q, want the top-level config.yaml value", cfg.Proxy)
	}
	if cfg.Poll.Interval != 30*time.Second {
		t.Errorf("interval = %s, want 30s", cfg.Poll.Interval)
	}
}

func TestProxyEnvOverride(t *testing.T) {
	t.Setenv("TRADER_PROXY", "http://proxy:8080")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy != "http://proxy:8080" {
		t.Errorf("proxy = %q, want the TRADER_PROXY value", cfg.Proxy)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg.Poll.Interval = 100 * time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Error("sub-second poll interval must be rejected")
	}
	cfg.Poll.Interval = time.Minute

	cfg.Telegram.Enabled = true
	cfg.Telegram.BotToken = ""
	if err := cfg.Validate(); err == nil {
		t.Error("telegram without a bot token must be rejected")
	}
}
