// Package config binds the service's startup parameters from
// environment variables. All parameters are fixed at startup; there is
// no dynamic reconfiguration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the service accepts.
//
// Environment variables:
//   - KV_LISTEN           listen address           (default ":8080")
//   - KV_DB_HOST          MySQL host               (default "127.0.0.1")
//   - KV_DB_PORT          MySQL port               (default 3306)
//   - KV_DB_USER          MySQL user               (required)
//   - KV_DB_PASSWORD      MySQL password           (required)
//   - KV_DB_NAME          database name            (required)
//   - KV_DB_TABLE         table name               (default "kv")
//   - KV_CACHE_CAPACITY   total cache entries      (default 10000)
//   - KV_CACHE_SHARDS     cache shard count        (default 16)
//   - KV_POOL_SIZE        store session count      (default 8)
//   - KV_WORKERS          executor worker count    (default 8)
//   - KV_REQUEST_TIMEOUT  per-request deadline     (default "5s")
//   - KV_STORE_TIMEOUT    session dial/read/write  (default "5s")
type Config struct {
	Listen string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBTable    string

	CacheCapacity int
	CacheShards   int
	PoolSize      int
	Workers       int

	RequestTimeout time.Duration
	StoreTimeout   time.Duration
}

// FromEnv reads the configuration from the environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Listen:  getenv("KV_LISTEN", ":8080"),
		DBHost:  getenv("KV_DB_HOST", "127.0.0.1"),
		DBTable: getenv("KV_DB_TABLE", "kv"),
	}

	var err error
	if cfg.DBUser, err = requireEnv("KV_DB_USER"); err != nil {
		return cfg, err
	}
	if cfg.DBPassword, err = requireEnv("KV_DB_PASSWORD"); err != nil {
		return cfg, err
	}
	if cfg.DBName, err = requireEnv("KV_DB_NAME"); err != nil {
		return cfg, err
	}

	if cfg.DBPort, err = intenv("KV_DB_PORT", 3306); err != nil {
		return cfg, err
	}
	if cfg.CacheCapacity, err = intenv("KV_CACHE_CAPACITY", 10000); err != nil {
		return cfg, err
	}
	if cfg.CacheShards, err = intenv("KV_CACHE_SHARDS", 16); err != nil {
		return cfg, err
	}
	if cfg.PoolSize, err = intenv("KV_POOL_SIZE", 8); err != nil {
		return cfg, err
	}
	if cfg.Workers, err = intenv("KV_WORKERS", 8); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = durenv("KV_REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.StoreTimeout, err = durenv("KV_STORE_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache capacity must be positive, got %d", c.CacheCapacity)
	}
	if c.CacheShards < 1 {
		return fmt.Errorf("cache shard count must be positive, got %d", c.CacheShards)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool size must be positive, got %d", c.PoolSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if c.DBPort < 1 || c.DBPort > 65535 {
		return fmt.Errorf("database port out of range: %d", c.DBPort)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

// getenv returns the variable's value or a default.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// requireEnv returns the variable's value or an error if unset.
func requireEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return v, nil
}

// intenv parses an integer variable, falling back to a default.
func intenv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// durenv parses a duration variable, falling back to a default.
func durenv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}
