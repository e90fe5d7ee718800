// Package main implements the kvserve binary: a network-accessible
// key-value service that fronts a MySQL table with a sharded LRU cache.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│               kvserve                   │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /get /get_popular  - Read a key      │
//	│    /put               - Write a key     │
//	│    /delete            - Delete a key    │
//	│    /stats /health     - Introspection   │
//	│    /metrics           - Prometheus      │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Sharded LRU cache  - bounded memory  │
//	│    Work executor      - bounded I/O     │
//	│    Session pool       - bounded fan-out │
//	│    Table adapter      - MySQL access    │
//	└─────────────────────────────────────────┘
//
// Configuration is read from KV_* environment variables; see the
// config package for the full list.
//
// Example usage:
//
//	KV_DB_USER=kvuser \
//	KV_DB_PASSWORD=secret \
//	KV_DB_NAME=kvstore \
//	KV_CACHE_CAPACITY=10000 \
//	./kvserve
//
//	curl -X PUT 'localhost:8080/put?key=42' -d 'answer'
//	curl 'localhost:8080/get?key=42'
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/kvserve/internal/cache"
	"github.com/dreamware/kvserve/internal/config"
	"github.com/dreamware/kvserve/internal/dbpool"
	"github.com/dreamware/kvserve/internal/executor"
	"github.com/dreamware/kvserve/internal/server"
	"github.com/dreamware/kvserve/internal/store"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if err := run(logger); err != nil {
		level.Error(logger).Log("msg", "fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	// Open the session pool first: the service is useless without the
	// store, so a bad DSN or unreachable server fails startup.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := dbpool.Open(ctx, dbpool.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		Size:     cfg.PoolSize,
		Timeout:  cfg.StoreTimeout,
	})
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()

	table, err := store.NewTable(cfg.DBTable)
	if err != nil {
		return err
	}

	exec := executor.New(cfg.Workers)
	shardedCache := cache.NewSharded(cfg.CacheCapacity, cfg.CacheShards)

	registry := prometheus.NewRegistry()
	metrics := server.NewMetrics(registry,
		func() float64 { return float64(pool.InUse()) },
		func() float64 { return float64(exec.QueueDepth()) })

	srv := server.New(shardedCache, store.NewPooled(pool, table), exec, metrics,
		log.With(logger, "component", "server"), cfg.RequestTimeout)

	mux := http.NewServeMux()
	mux.Handle("/", srv.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "listening", "addr", cfg.Listen,
			"cache_capacity", cfg.CacheCapacity, "shards", cfg.CacheShards,
			"pool", cfg.PoolSize, "workers", cfg.Workers)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		level.Info(logger).Log("msg", "shutting down", "signal", sig.String())
	}

	// Drain in dependency order: stop accepting requests, let queued
	// store work finish, then close the sessions.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "http shutdown", "err", err)
	}
	exec.Stop()

	level.Info(logger).Log("msg", "stopped")
	return nil
}
