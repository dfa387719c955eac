package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Quota.MaxEventsPerOwner != 2 {
		t.Errorf("Quota.MaxEventsPerOwner = %d, want 2", cfg.Quota.MaxEventsPerOwner)
	}
	if cfg.Security.JWTAccessTTL != 15*time.Minute {
		t.Errorf("Security.JWTAccessTTL = %v, want 15m", cfg.Security.JWTAccessTTL)
	}
	if cfg.Storage.MaxWidth != 1200 {
		t.Errorf("Storage.MaxWidth = %d, want 1200", cfg.Storage.MaxWidth)
	}
	if cfg.Storage.MaxPixels != 40_000_000 {
		t.Errorf("Storage.MaxPixels = %d, want 40000000", cfg.Storage.MaxPixels)
	}
	if cfg.Redis.Stream != "snapify:media" {
		t.Errorf("Redis.Stream = %q, want snapify:media", cfg.Redis.Stream)
	}
	if cfg.Retention.PurgeAfter != 0 {
		t.Errorf("Retention.PurgeAfter = %v, want 0", cfg.Retention.PurgeAfter)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SNAPIFY_HTTP_PORT", "9090")
	t.Setenv("SNAPIFY_QUOTA_MAXEVENTSPEROWNER", "5")
	t.Setenv("SNAPIFY_CACHE_TTL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Quota.MaxEventsPerOwner != 5 {
		t.Errorf("Quota.MaxEventsPerOwner = %d, want 5", cfg.Quota.MaxEventsPerOwner)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("Cache.TTL = %v, want 2m", cfg.Cache.TTL)
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SNAPIFY_ENVIRONMENT", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without jwt secrets in production")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir(%q): %v", prev, err)
		}
	})
}
