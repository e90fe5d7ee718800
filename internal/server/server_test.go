package server

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kvserve/internal/cache"
	"github.com/dreamware/kvserve/internal/executor"
	"github.com/dreamware/kvserve/internal/store"
)

// fakeStore is an in-memory store.Store with injectable failures and
// operation counters.
type fakeStore struct {
	mu   sync.Mutex
	data map[int64][]byte

	selects, upserts, deletes atomic.Int64

	failSelect error
	failUpsert error
	failDelete error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[int64][]byte)}
}

func (f *fakeStore) SelectValue(_ context.Context, key int64) ([]byte, error) {
	f.selects.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSelect != nil {
		return nil, f.failSelect
	}
	v, ok := f.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *fakeStore) Upsert(_ context.Context, key int64, value []byte) error {
	f.upserts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return f.failUpsert
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key int64) (int64, error) {
	f.deletes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return 0, f.failDelete
	}
	if _, ok := f.data[key]; !ok {
		return 0, nil
	}
	delete(f.data, key)
	return 1, nil
}

func (f *fakeStore) get(key int64) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeStore) setFailures(sel, ups, del error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSelect, f.failUpsert, f.failDelete = sel, ups, del
}

// testServer bundles a Server with its collaborators for inspection.
type testServer struct {
	srv     *Server
	cache   *cache.Sharded
	store   *fakeStore
	exec    *executor.Executor
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	c := cache.NewSharded(1000, 8)
	st := newFakeStore()
	ex := executor.New(4)
	t.Cleanup(ex.Stop)

	m := NewMetrics(prometheus.NewRegistry(),
		func() float64 { return 0 },
		func() float64 { return float64(ex.QueueDepth()) })
	srv := New(c, st, ex, m, log.NewNopLogger(), time.Second)

	return &testServer{srv: srv, cache: c, store: st, exec: ex, handler: srv.Handler()}
}

func (ts *testServer) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var reader = bytes.NewReader(body)
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestGet(t *testing.T) {
	t.Run("miss populates the cache", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[42] = []byte("answer")

		rec := ts.do(http.MethodGet, "/get?key=42", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "answer", rec.Body.String())

		v, ok := ts.cache.Lookup(42)
		require.True(t, ok, "cache should hold the value after a miss fill")
		assert.Equal(t, []byte("answer"), v)
	})

	t.Run("hit skips the store", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[1] = []byte("v")

		ts.do(http.MethodGet, "/get?key=1", nil)
		require.EqualValues(t, 1, ts.store.selects.Load())

		rec := ts.do(http.MethodGet, "/get?key=1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, ts.store.selects.Load(), "second read must be served from cache")
	})

	t.Run("absent key is 404 and never cached", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodGet, "/get?key=99", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, 0, ts.cache.Len(), "no negative caching")

		// A second read consults the store again
		ts.do(http.MethodGet, "/get?key=99", nil)
		assert.EqualValues(t, 2, ts.store.selects.Load())
	})

	t.Run("store error is 500 and cache untouched", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.setFailures(fmt.Errorf("connection refused"), nil, nil)

		rec := ts.do(http.MethodGet, "/get?key=5", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
		assert.Equal(t, 0, ts.cache.Len())
	})

	t.Run("resource exhaustion is 503", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.setFailures(context.DeadlineExceeded, nil, nil)

		rec := ts.do(http.MethodGet, "/get?key=5", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("bad keys are 400", func(t *testing.T) {
		ts := newTestServer(t)

		for _, target := range []string{"/get", "/get?key=", "/get?key=abc", "/get?key=1.5"} {
			rec := ts.do(http.MethodGet, target, nil)
			assert.Equalf(t, http.StatusBadRequest, rec.Code, "target %s", target)
		}
		assert.EqualValues(t, 0, ts.store.selects.Load(), "bad input must not reach the store")
	})

	t.Run("get_popular is an alias", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[3] = []byte("pop")

		rec := ts.do(http.MethodGet, "/get_popular?key=3", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pop", rec.Body.String())
	})
}

func TestPut(t *testing.T) {
	t.Run("write-through", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[7] = []byte("old")
		ts.cache.Insert(7, []byte("old"))

		rec := ts.do(http.MethodPut, "/put?key=7", []byte("new"))
		require.Equal(t, http.StatusOK, rec.Code)

		v, ok := ts.store.get(7)
		require.True(t, ok)
		assert.Equal(t, []byte("new"), v, "store must hold the new value")

		cached, ok := ts.cache.Lookup(7)
		require.True(t, ok)
		assert.Equal(t, []byte("new"), cached, "cache must hold the new value")

		// Subsequent GET is a cache hit
		before := ts.store.selects.Load()
		rec = ts.do(http.MethodGet, "/get?key=7", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "new", rec.Body.String())
		assert.Equal(t, before, ts.store.selects.Load())
	})

	t.Run("value from query parameter", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPut, "/put?key=1&value=hello", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		v, ok := ts.store.get(1)
		require.True(t, ok)
		assert.Equal(t, []byte("hello"), v)
	})

	t.Run("empty value is legal when the parameter is present", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPut, "/put?key=1&value=", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		v, ok := ts.store.get(1)
		require.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("missing value is 400", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodPut, "/put?key=1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.EqualValues(t, 0, ts.store.upserts.Load())
	})

	t.Run("store error leaves cache and store untouched", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[5] = []byte("v")
		ts.cache.Insert(5, []byte("v"))
		ts.store.setFailures(nil, fmt.Errorf("disk full"), nil)

		rec := ts.do(http.MethodPut, "/put?key=5", []byte("v2"))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		cached, ok := ts.cache.Lookup(5)
		require.True(t, ok)
		assert.Equal(t, []byte("v"), cached, "failed write must not disturb the cached value")

		ts.store.setFailures(nil, nil, nil)
		rec = ts.do(http.MethodGet, "/get?key=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "v", rec.Body.String())
	})

	t.Run("binary values round trip", func(t *testing.T) {
		ts := newTestServer(t)
		value := []byte{0x00, 0xFF, 0x27, 0x22, 0x00}

		rec := ts.do(http.MethodPut, "/put?key=8", value)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(http.MethodGet, "/get?key=8", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, value, rec.Body.Bytes())
	})
}

func TestDelete(t *testing.T) {
	t.Run("delete coherence", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[9] = []byte("x")
		ts.cache.Insert(9, []byte("x"))

		rec := ts.do(http.MethodDelete, "/delete?key=9", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		_, ok := ts.cache.Lookup(9)
		assert.False(t, ok, "cache must not hold a deleted key")
		_, ok = ts.store.get(9)
		assert.False(t, ok)

		rec = ts.do(http.MethodGet, "/get?key=9", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("absent key is 404 and cache untouched", func(t *testing.T) {
		ts := newTestServer(t)
		ts.cache.Insert(11, []byte("stale"))

		rec := ts.do(http.MethodDelete, "/delete?key=11", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)

		_, ok := ts.cache.Lookup(11)
		assert.True(t, ok, "zero-rows delete leaves the cache alone")
	})

	t.Run("store error is 500 and cache untouched", func(t *testing.T) {
		ts := newTestServer(t)
		ts.store.data[9] = []byte("x")
		ts.cache.Insert(9, []byte("x"))
		ts.store.setFailures(nil, nil, fmt.Errorf("deadlock detected"))

		rec := ts.do(http.MethodDelete, "/delete?key=9", nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		_, ok := ts.cache.Lookup(9)
		assert.True(t, ok)
	})

	t.Run("bad key is 400", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(http.MethodDelete, "/delete?key=zz", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuxiliaryEndpoints(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		ts := newTestServer(t)
		rec := ts.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("stats report occupancy", func(t *testing.T) {
		ts := newTestServer(t)
		ts.cache.Insert(3, []byte("c"))
		ts.cache.Insert(1, []byte("a"))
		ts.cache.Insert(2, []byte("b"))

		rec := ts.do(http.MethodGet, "/stats", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "entries: 3 / 1000")
		assert.Contains(t, body, "keys: [1 2 3]", "keys must be sorted")
		assert.True(t, strings.Contains(body, "shard 0:"))
	})
}

// TestShutdown checks that requests after executor stop are refused.
func TestShutdown(t *testing.T) {
	ts := newTestServer(t)
	ts.exec.Stop()

	rec := ts.do(http.MethodGet, "/get?key=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(http.MethodPut, "/put?key=1", []byte("v"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestConcurrentRequests drives mixed traffic through the full handler
// stack and verifies every read observes some committed write.
func TestConcurrentRequests(t *testing.T) {
	ts := newTestServer(t)

	const workers = 16
	const opsEach = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < opsEach; i++ {
				key := rng.Int63n(200)
				if rng.Intn(2) == 0 {
					// Values are derived from the key, so any
					// committed write is acceptable to a reader.
					value := fmt.Sprintf("v-%d", key)
					rec := ts.do(http.MethodPut, fmt.Sprintf("/put?key=%d", key), []byte(value))
					if rec.Code != http.StatusOK {
						t.Errorf("PUT %d returned %d", key, rec.Code)
						return
					}
				} else {
					rec := ts.do(http.MethodGet, fmt.Sprintf("/get?key=%d", key), nil)
					switch rec.Code {
					case http.StatusOK:
						want := fmt.Sprintf("v-%d", key)
						if rec.Body.String() != want {
							t.Errorf("GET %d returned %q, want %q", key, rec.Body.String(), want)
							return
						}
					case http.StatusNotFound:
						// Key not written yet
					default:
						t.Errorf("GET %d returned %d", key, rec.Code)
						return
					}
				}
			}
		}(int64(w))
	}
	wg.Wait()

	assert.LessOrEqual(t, ts.cache.Len(), 1000, "capacity bound must hold after load")
}
