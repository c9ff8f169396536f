package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", cfg.CacheTTL)
	}
	if cfg.NegativeCacheTTL != 5*time.Second {
		t.Errorf("NegativeCacheTTL = %v, want 5s", cfg.NegativeCacheTTL)
	}
	if cfg.DefaultPageSize != 10 {
		t.Errorf("DefaultPageSize = %d, want 10", cfg.DefaultPageSize)
	}
	if cfg.CheckoutMaxRetries != 3 {
		t.Errorf("CheckoutMaxRetries = %d, want 3", cfg.CheckoutMaxRetries)
	}
	if cfg.RabbitMQURL != "" {
		t.Errorf("RabbitMQURL = %q, want empty (publishing disabled)", cfg.RabbitMQURL)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, want disable", cfg.DBSSLMode)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("DEFAULT_PAGE_SIZE", "25")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.DefaultPageSize != 25 {
		t.Errorf("DefaultPageSize = %d, want 25", cfg.DefaultPageSize)
	}
}
