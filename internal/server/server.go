package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/kvserve/internal/cache"
	"github.com/dreamware/kvserve/internal/dbpool"
	"github.com/dreamware/kvserve/internal/executor"
	"github.com/dreamware/kvserve/internal/store"
)

// maxValueBytes caps PUT bodies well above the store's value column
// width so oversized requests fail fast instead of reaching the store.
const maxValueBytes = 1 << 20

// Request outcomes used as metric labels.
const (
	outcomeOK          = "ok"
	outcomeNotFound    = "not_found"
	outcomeClientError = "client_error"
	outcomeServerError = "server_error"
	outcomeBusy        = "busy"
)

// Server is the request coordinator: it composes the sharded cache,
// the work executor, and the store into the three externally visible
// operations, enforcing the cache/store coherence protocol.
//
// Coherence rule: the cache is populated or invalidated only after a
// successful store outcome. On any store error the cache is left
// untouched, so a failed write never plants a stale hit. Not-found
// reads are never cached (no negative caching).
//
// Request threading: handlers probe the cache inline, then trampoline
// the blocking store call onto the executor and await its future. A
// request that times out abandons the future; the store call still
// runs to completion.
type Server struct {
	cache   *cache.Sharded
	store   store.Store
	exec    *executor.Executor
	metrics *Metrics
	logger  log.Logger
	timeout time.Duration
}

// New wires the coordinator together. requestTimeout bounds how long a
// request waits for a pool session plus the future; zero disables the
// bound.
func New(c *cache.Sharded, st store.Store, exec *executor.Executor, m *Metrics, logger log.Logger, requestTimeout time.Duration) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		cache:   c,
		store:   st,
		exec:    exec,
		metrics: m,
		logger:  logger,
		timeout: requestTimeout,
	}
}

// Handler returns the HTTP routing table:
//
//	GET    /get         read a key
//	GET    /get_popular alias of /get (benchmark verb)
//	PUT    /put         write a key
//	DELETE /delete      delete a key
//	GET    /stats       cache occupancy report
//	GET    /health      liveness probe
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		s.handleGet(w, r, "get")
	})
	// get_popular is semantically a GET; it exists as a distinct route
	// so benchmark traffic shows up under its own metric label.
	mux.HandleFunc("/get_popular", func(w http.ResponseWriter, r *http.Request) {
		s.handleGet(w, r, "get_popular")
	})
	mux.HandleFunc("/put", s.handlePut)
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// taskContext builds the context a store task runs under: detached
// from the client connection (an abandoned request must not cancel
// store side effects) but carrying the request deadline so the pool
// acquire wait is bounded.
func (s *Server) taskContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// parseKey extracts and validates the integer key parameter.
func parseKey(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("key")
	if raw == "" {
		return 0, errors.New("missing key parameter")
	}
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New("key must be an integer")
	}
	return key, nil
}

// handleGet serves GET: cache probe, then store read on miss.
//
// Outcomes:
//   - cache hit            → 200, no store contact
//   - store row found      → 200, cache populated
//   - store row absent     → 404, cache untouched (no negative caching)
//   - store error          → 500, cache untouched
//   - pool/deadline busy   → 503
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, op string) {
	start := time.Now()
	reqID := uuid.NewString()

	key, err := parseKey(r)
	if err != nil {
		s.observe(op, outcomeClientError, start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if value, ok := s.cache.Lookup(key); ok {
		s.metrics.CacheHits.Inc()
		s.observe(op, outcomeOK, start)
		s.writeValue(w, value)
		return
	}
	s.metrics.CacheMisses.Inc()

	ctx, cancel := s.taskContext(r)
	defer cancel()

	fut, err := s.exec.Submit(func() (any, error) {
		return s.store.SelectValue(ctx, key)
	})
	if err != nil {
		s.observe(op, outcomeBusy, start)
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
		return
	}

	res, err := fut.Wait(ctx)
	switch {
	case err == nil:
		value := res.([]byte)
		if evicted := s.cache.Insert(key, value); evicted {
			s.metrics.CacheEvictions.Inc()
		}
		s.observe(op, outcomeOK, start)
		s.writeValue(w, value)

	case errors.Is(err, store.ErrNotFound):
		s.observe(op, outcomeNotFound, start)
		http.Error(w, "key not found", http.StatusNotFound)

	case isBusy(err):
		s.observe(op, outcomeBusy, start)
		http.Error(w, "server busy", http.StatusServiceUnavailable)

	default:
		level.Error(s.logger).Log("msg", "store read failed", "req", reqID, "key", key, "err", err)
		s.observe(op, outcomeServerError, start)
		http.Error(w, fmt.Sprintf("store error: %v", err), http.StatusInternalServerError)
	}
}

// handlePut serves PUT: store first, cache second.
//
// The value is the request body; for compatibility with query-style
// clients a `value` query parameter is accepted when the body is
// empty. Empty values are legal as long as the parameter is present.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	const op = "put"
	start := time.Now()
	reqID := uuid.NewString()

	key, err := parseKey(r)
	if err != nil {
		s.observe(op, outcomeClientError, start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	value, err := readValue(r)
	if err != nil {
		s.observe(op, outcomeClientError, start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := s.taskContext(r)
	defer cancel()

	fut, err := s.exec.Submit(func() (any, error) {
		return nil, s.store.Upsert(ctx, key, value)
	})
	if err != nil {
		s.observe(op, outcomeBusy, start)
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
		return
	}

	_, err = fut.Wait(ctx)
	switch {
	case err == nil:
		// Store committed; now the cache may learn the new value.
		if evicted := s.cache.Insert(key, value); evicted {
			s.metrics.CacheEvictions.Inc()
		}
		s.observe(op, outcomeOK, start)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "stored")

	case isBusy(err):
		s.observe(op, outcomeBusy, start)
		http.Error(w, "server busy", http.StatusServiceUnavailable)

	default:
		// Cache deliberately untouched: a failed write must not
		// plant a value the store never committed, and the old
		// cached value is still the committed one.
		level.Error(s.logger).Log("msg", "store write failed", "req", reqID, "key", key, "err", err)
		s.observe(op, outcomeServerError, start)
		http.Error(w, fmt.Sprintf("store error: %v", err), http.StatusInternalServerError)
	}
}

// handleDelete serves DELETE: store delete, then cache invalidation
// only when the store actually removed a row.
//
// rows-affected == 0 reports 404 and leaves the cache alone: the store
// never had the key, so a cache entry for it would already be a
// coherence violation, not something this branch should paper over.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "delete"
	start := time.Now()
	reqID := uuid.NewString()

	key, err := parseKey(r)
	if err != nil {
		s.observe(op, outcomeClientError, start)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := s.taskContext(r)
	defer cancel()

	fut, err := s.exec.Submit(func() (any, error) {
		return s.store.Delete(ctx, key)
	})
	if err != nil {
		s.observe(op, outcomeBusy, start)
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
		return
	}

	res, err := fut.Wait(ctx)
	switch {
	case err == nil && res.(int64) > 0:
		s.cache.Remove(key)
		s.observe(op, outcomeOK, start)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "deleted")

	case err == nil:
		s.observe(op, outcomeNotFound, start)
		http.Error(w, "key not found", http.StatusNotFound)

	case isBusy(err):
		s.observe(op, outcomeBusy, start)
		http.Error(w, "server busy", http.StatusServiceUnavailable)

	default:
		level.Error(s.logger).Log("msg", "store delete failed", "req", reqID, "key", key, "err", err)
		s.observe(op, outcomeServerError, start)
		http.Error(w, fmt.Sprintf("store error: %v", err), http.StatusInternalServerError)
	}
}

// handleStats reports cache occupancy: per-shard size/capacity and the
// full sorted key set. Debugging aid, per-shard consistent only.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.cache.Stats()

	total, capacity := 0, 0
	var keys []int64
	for _, st := range stats {
		total += st.Size
		capacity += st.Capacity
		keys = append(keys, st.Keys...)
	}
	slices.Sort(keys)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "entries: %d / %d\n", total, capacity)
	for _, st := range stats {
		fmt.Fprintf(w, "shard %d: %d / %d\n", st.Index, st.Size, st.Capacity)
	}
	fmt.Fprintf(w, "keys: %v\n", keys)
}

// readValue extracts the PUT value: request body first, `value` query
// parameter as fallback. Present-but-empty counts as a value; fully
// absent does not.
func readValue(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) > maxValueBytes {
		return nil, errors.New("value too large")
	}
	if len(body) > 0 {
		return body, nil
	}
	if r.URL.Query().Has("value") {
		return []byte(r.URL.Query().Get("value")), nil
	}
	return nil, errors.New("missing value")
}

// writeValue replies 200 with the raw value bytes.
func (s *Server) writeValue(w http.ResponseWriter, value []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

// observe records one request in the duration histogram.
func (s *Server) observe(op, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// isBusy reports whether err means the request could not get resources
// in time, as opposed to the store failing.
func isBusy(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, dbpool.ErrClosed) ||
		errors.Is(err, executor.ErrStopped)
}
