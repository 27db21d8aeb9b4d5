package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("ignored.yaml", true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http_addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Arbiter.MaxAttempts != 3 {
		t.Fatalf("max_attempts = %d", cfg.Arbiter.MaxAttempts)
	}
	if cfg.EventBus.RetryBaseDelay != time.Second {
		t.Fatalf("retry_base_delay = %s", cfg.EventBus.RetryBaseDelay)
	}
	if cfg.EventBus.DeliveryCeiling != 30*time.Second {
		t.Fatalf("delivery_ceiling = %s", cfg.EventBus.DeliveryCeiling)
	}
	if cfg.Cron.LockSweep != "@every 1m" {
		t.Fatalf("lock_sweep = %q", cfg.Cron.LockSweep)
	}
	if cfg.DB.Timezone != "UTC" {
		t.Fatalf("timezone = %q", cfg.DB.Timezone)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
server:
  http_addr: ":9090"
arbiter:
  max_attempts: 5
event_bus:
  subscriber_buffer: 16
  retry_base_delay: 250ms
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Fatalf("http_addr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Arbiter.MaxAttempts != 5 {
		t.Fatalf("max_attempts = %d", cfg.Arbiter.MaxAttempts)
	}
	if cfg.EventBus.SubscriberBuffer != 16 {
		t.Fatalf("subscriber_buffer = %d", cfg.EventBus.SubscriberBuffer)
	}
	if cfg.EventBus.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("retry_base_delay = %s", cfg.EventBus.RetryBaseDelay)
	}
	// Untouched keys keep their defaults.
	if cfg.EventBus.RetryAttempts != 3 {
		t.Fatalf("retry_attempts = %d", cfg.EventBus.RetryAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
