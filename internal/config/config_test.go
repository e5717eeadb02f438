package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected bolt storage, got %s", cfg.Storage.Type)
	}
	if cfg.Server.APIPort != 8787 {
		t.Errorf("expected api port 8787, got %d", cfg.Server.APIPort)
	}
	if ParseDuration(cfg.Tracking.TickInterval, 0) != time.Second {
		t.Errorf("expected 1s tick interval, got %s", cfg.Tracking.TickInterval)
	}
	if cfg.Tracking.DefaultOverrideMinutes != 10 {
		t.Errorf("expected 10 minute default override, got %d", cfg.Tracking.DefaultOverrideMinutes)
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
storage:
  type: redis
  redis:
    host: redis.internal
tracking:
  tick_interval: 500ms
logging:
  level: debug
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SNSDETOX_SERVER_API_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Host != "redis.internal" {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Port != 6379 {
		t.Errorf("expected default redis port, got %d", cfg.Storage.Redis.Port)
	}
	if cfg.Tracking.TickInterval != "500ms" {
		t.Errorf("expected 500ms tick interval, got %s", cfg.Tracking.TickInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging, got %s", cfg.Logging.Level)
	}
	if cfg.Server.APIPort != 9999 {
		t.Errorf("expected env override for api port, got %d", cfg.Server.APIPort)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad api port", func(c *Config) { c.Server.APIPort = 70000 }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "sqlite" }},
		{"empty bolt path", func(c *Config) { c.Storage.Path = "" }},
		{"zero tick", func(c *Config) { c.Tracking.TickInterval = "0s" }},
		{"garbage sweep", func(c *Config) { c.Tracking.RolloverSweepInterval = "hourly" }},
		{"negative arming delay", func(c *Config) { c.Tracking.ArmingDelay = "-1s" }},
		{"zero override minutes", func(c *Config) { c.Tracking.DefaultOverrideMinutes = 0 }},
		{"zero mailbox", func(c *Config) { c.Tracking.MailboxSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAllowsZeroArmingDelay(t *testing.T) {
	cfg := Defaults()
	cfg.Tracking.ArmingDelay = "0s"
	if err := validate(cfg); err != nil {
		t.Fatalf("zero arming delay should be allowed: %v", err)
	}
}
