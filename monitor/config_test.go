package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricewatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
change_policy: always
workers: 8
schedule: "@every 6h"
archive_dir: /var/lib/pricewatch/archive
render:
  mode: auto
  nav_timeout: 45s
  settle: 2s
  block_resources: [images, fonts]
notify:
  webhook_url: https://hooks.acme.test/pricing
  rate_per_second: 2
events:
  url: nats://127.0.0.1:4222
  jetstream: true
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChangePolicy != "always" || cfg.Workers != 8 || cfg.Schedule != "@every 6h" {
		t.Errorf("top level: %+v", cfg)
	}
	if cfg.Render.Mode != RenderAuto || cfg.Render.NavTimeout != 45*time.Second || cfg.Render.Settle != 2*time.Second {
		t.Errorf("render: %+v", cfg.Render)
	}
	if len(cfg.Render.BlockResources) != 2 {
		t.Errorf("block resources: %v", cfg.Render.BlockResources)
	}
	if cfg.Notify.WebhookURL == "" || cfg.Notify.RatePerSecond != 2 {
		t.Errorf("notify: %+v", cfg.Notify)
	}
	if !cfg.Events.JetStream {
		t.Errorf("events: %+v", cfg.Events)
	}
}

func TestLoadConfigFile_UnknownKey(t *testing.T) {
	// WHAT: a misspelled key is an error.
	// WHY: "chnage_policy: always" silently falling back to fingerprint would hide alerts.
	path := writeConfig(t, "chnage_policy: always\n")
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadConfigFile_Empty(t *testing.T) {
	cfg, err := LoadConfigFile(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	cfg.defaults()
	if cfg.ChangePolicy != "fingerprint" || cfg.Workers != 4 || cfg.Render.Mode != RenderRod {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Render: RenderConfig{Mode: "lynx"}}
	cfg.defaults()
	if err := cfg.validate(); err == nil {
		t.Fatal("expected invalid render mode")
	}
}
