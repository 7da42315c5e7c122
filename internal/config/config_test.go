// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configKeys = []string{
	"HTTP_ADDR", "ENV", "LOG_LEVEL", "STORE_DRIVER", "DATABASE_URL", "AUTO_MIGRATE",
	"DB_MAX_CONNS", "RETENTION_DAYS", "CLEANUP_INTERVAL", "REVIEW_URL", "WEBHOOK_TOKEN",
	"WEBHOOK_SECRET",
	"RATE_LIMIT_PER_MIN", "RESUME_WEBHOOK_URL", "RESUME_WEBHOOK_SECRET", "REDIS_ADDR",
	"REDIS_CHANNEL", "HITL_CONFIG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("expected default HTTPAddr=:8000, got %s", cfg.HTTPAddr)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected default Env=dev, got %s", cfg.Env)
	}
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("expected memory store by default, got %s", cfg.StoreDriver)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected default AutoMigrate=true")
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("expected RetentionDays=30, got %d", cfg.RetentionDays)
	}
	if cfg.DBMaxConns != 5 {
		t.Fatalf("expected DBMaxConns=5, got %d", cfg.DBMaxConns)
	}
	if cfg.CleanupInterval != time.Hour {
		t.Fatalf("expected CleanupInterval=1h, got %s", cfg.CleanupInterval)
	}
	if cfg.ReviewURL != "/dashboard" {
		t.Fatalf("expected ReviewURL=/dashboard, got %s", cfg.ReviewURL)
	}
	if cfg.WebhookToken != "" || cfg.WebhookSecret != "" {
		t.Fatalf("expected webhook auth disabled by default")
	}
	if cfg.RedisChannel != "hitl:status" {
		t.Fatalf("expected default redis channel, got %s", cfg.RedisChannel)
	}
}

func TestLoadRespectsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ENV", "prod")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("CLEANUP_INTERVAL", "15m")
	t.Setenv("WEBHOOK_TOKEN", "agent-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected HTTP_ADDR override, got %s", cfg.HTTPAddr)
	}
	if cfg.Env != "prod" {
		t.Fatalf("expected ENV override, got %s", cfg.Env)
	}
	if cfg.StoreDriver != StorePostgres {
		t.Fatalf("expected postgres driver, got %s", cfg.StoreDriver)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected AUTO_MIGRATE override to false")
	}
	if cfg.RetentionDays != 7 || cfg.CleanupInterval != 15*time.Minute {
		t.Fatalf("unexpected retention settings: %d %s", cfg.RetentionDays, cfg.CleanupInterval)
	}
	if cfg.WebhookToken != "agent-token" {
		t.Fatalf("expected WEBHOOK_TOKEN override, got %s", cfg.WebhookToken)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hitl.yaml")
	body := "http_addr: \":7000\"\nretention_days: 14\ncleanup_interval: 30m\nreview_url: https://review.example.com\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RETENTION_DAYS", "3")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.HTTPAddr != ":7000" {
		t.Fatalf("expected file http_addr, got %s", cfg.HTTPAddr)
	}
	if cfg.CleanupInterval != 30*time.Minute {
		t.Fatalf("expected file cleanup_interval, got %s", cfg.CleanupInterval)
	}
	if cfg.ReviewURL != "https://review.example.com" {
		t.Fatalf("expected file review_url, got %s", cfg.ReviewURL)
	}
	if cfg.RetentionDays != 3 {
		t.Fatalf("expected env to override file, got %d", cfg.RetentionDays)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown driver error")
	}

	clearEnv(t)
	t.Setenv("RETENTION_DAYS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected retention error")
	}

	clearEnv(t)
	t.Setenv("DB_MAX_CONNS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected pool size error")
	}

	clearEnv(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("EXAMPLE_KEY", "value")
	if got := getenv("EXAMPLE_KEY", "fallback"); got != "value" {
		t.Fatalf("expected env value, got %s", got)
	}

	t.Setenv("EXAMPLE_KEY", "")
	if got := getenv("EXAMPLE_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}

func TestGetenvBool(t *testing.T) {
	t.Setenv("BOOL_KEY", "true")
	if got := getenvBool("BOOL_KEY", false); !got {
		t.Fatal("expected true value")
	}

	t.Setenv("BOOL_KEY", "0")
	if got := getenvBool("BOOL_KEY", true); got {
		t.Fatal("expected false value")
	}

	t.Setenv("BOOL_KEY", "")
	if got := getenvBool("BOOL_KEY", true); !got {
		t.Fatal("expected fallback true value")
	}
}

func TestGetenvIntAndDuration(t *testing.T) {
	t.Setenv("INT_KEY", "nope")
	if got := getenvInt("INT_KEY", 5); got != 5 {
		t.Fatalf("expected fallback on bad int, got %d", got)
	}
	t.Setenv("INT_KEY", "42")
	if got := getenvInt("INT_KEY", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}

	t.Setenv("DUR_KEY", "soon")
	if got := getenvDuration("DUR_KEY", time.Second); got != time.Second {
		t.Fatalf("expected fallback on bad duration, got %s", got)
	}
	t.Setenv("DUR_KEY", "2s")
	if got := getenvDuration("DUR_KEY", time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
}
