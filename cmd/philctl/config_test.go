package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRuntimeConfigOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
broker_addr = "10.0.0.5:9400"
seat = 3
think = "100ms..2s"
eat = "1s"
strict = false
meals = 12
max_connect_attempts = 4
`)
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Client.Address != "10.0.0.5:9400" || cfg.Client.Seat != 3 || cfg.Loop.Seat != 3 {
		t.Fatalf("unexpected client config: %+v", cfg.Client)
	}
	if cfg.Client.PhilosopherID != "phil.3" {
		t.Fatalf("expected derived id phil.3, got %q", cfg.Client.PhilosopherID)
	}
	if cfg.Loop.Think.Min != 100*time.Millisecond || cfg.Loop.Think.Max != 2*time.Second {
		t.Fatalf("unexpected think range: %+v", cfg.Loop.Think)
	}
	if cfg.Loop.Eat.Min != time.Second || cfg.Loop.Eat.Max != time.Second {
		t.Fatalf("unexpected eat range: %+v", cfg.Loop.Eat)
	}
	if cfg.Loop.Strict || cfg.Loop.Meals != 12 || cfg.Client.MaxConnectAttempts != 4 {
		t.Fatalf("unexpected loop config: %+v", cfg.Loop)
	}
	if cfg.Loop.Retry != cfg.Client.Session.Backoff {
		t.Fatalf("loop retry must follow session backoff")
	}
}

func TestLoadRuntimeConfigExplicitID(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "seat = 2\nphilosopher_id = \"kant\"\n")
	cfg, err := loadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Client.PhilosopherID != "kant" {
		t.Fatalf("explicit id lost: %q", cfg.Client.PhilosopherID)
	}
}

func TestLoadRuntimeConfigRejectsBadRange(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "think = \"5s..1s\"\n")
	if _, err := loadRuntimeConfig(path); err == nil {
		t.Fatalf("expected inverted range rejection")
	}
}

func TestLoadRuntimeConfigProductionNeedsMutualTLS(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "session_security_mode = \"production\"\n")
	_, err := loadRuntimeConfig(path)
	if !errors.Is(err, session.ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
}
