package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KV_DB_USER", "kvuser")
	t.Setenv("KV_DB_PASSWORD", "secret")
	t.Setenv("KV_DB_NAME", "kvstore")
}

// TestFromEnv tests environment parsing and defaults
func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequired(t)

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}

		if cfg.Listen != ":8080" {
			t.Errorf("Expected default listen :8080, got %s", cfg.Listen)
		}
		if cfg.DBPort != 3306 {
			t.Errorf("Expected default port 3306, got %d", cfg.DBPort)
		}
		if cfg.DBTable != "kv" {
			t.Errorf("Expected default table kv, got %s", cfg.DBTable)
		}
		if cfg.CacheCapacity != 10000 || cfg.CacheShards != 16 {
			t.Errorf("Unexpected cache defaults: %d / %d", cfg.CacheCapacity, cfg.CacheShards)
		}
		if cfg.PoolSize != 8 || cfg.Workers != 8 {
			t.Errorf("Unexpected pool/worker defaults: %d / %d", cfg.PoolSize, cfg.Workers)
		}
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("Expected 5s request timeout, got %s", cfg.RequestTimeout)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		setRequired(t)
		t.Setenv("KV_CACHE_CAPACITY", "1000")
		t.Setenv("KV_CACHE_SHARDS", "8")
		t.Setenv("KV_POOL_SIZE", "4")
		t.Setenv("KV_REQUEST_TIMEOUT", "250ms")

		cfg, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv failed: %v", err)
		}
		if cfg.CacheCapacity != 1000 || cfg.CacheShards != 8 || cfg.PoolSize != 4 {
			t.Errorf("Overrides not applied: %+v", cfg)
		}
		if cfg.RequestTimeout != 250*time.Millisecond {
			t.Errorf("Expected 250ms, got %s", cfg.RequestTimeout)
		}
	})

	t.Run("missing required variable", func(t *testing.T) {
		t.Setenv("KV_DB_USER", "")
		t.Setenv("KV_DB_PASSWORD", "secret")
		t.Setenv("KV_DB_NAME", "kvstore")

		if _, err := FromEnv(); err == nil {
			t.Error("Expected an error for missing KV_DB_USER")
		}
	})

	t.Run("malformed integer", func(t *testing.T) {
		setRequired(t)
		t.Setenv("KV_POOL_SIZE", "many")

		if _, err := FromEnv(); err == nil {
			t.Error("Expected an error for non-integer pool size")
		}
	})

	t.Run("out of range values rejected", func(t *testing.T) {
		setRequired(t)
		t.Setenv("KV_CACHE_CAPACITY", "0")

		if _, err := FromEnv(); err == nil {
			t.Error("Expected an error for zero capacity")
		}
	})
}
