package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/livepay/internal/repository"
)

func decodeCode(t *testing.T, body string) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp.Code
}

func TestTracing_GeneratesAndPropagatesRequestID(t *testing.T) {
	var seen string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestTracing_ReplacesUnsafeRequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "too long", id: strings.Repeat("a", 65)},
		{name: "newline", id: "abc\ninjected=1"},
		{name: "spaces", id: "abc def"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = TraceIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header["X-Request-Id"] = []string{tc.id}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.NotEqual(t, tc.id, seen)
			assert.Len(t, seen, 36)
			assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRecovery_ReturnsInternalError(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeCode(t, rec.Body.String()))
}

func TestLogging_RecorderSupportsFlush(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		assert.NoError(t, http.NewResponseController(w).Flush())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payments/stream", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, rec.Flushed)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Minute)
	var calls atomic.Int32
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	limited := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMITED", decodeCode(t, limited.Body.String()))
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code, "other clients keep their own budget")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	rl.limiter("a")
	now = now.Add(30 * time.Second)
	rl.limiter("b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, rl.Evict())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}

func TestIdempotency(t *testing.T) {
	newHandler := func(status int) (http.Handler, *atomic.Int32) {
		var calls atomic.Int32
		repo := repository.NewIdempotencyRepository()
		h := Idempotency(repo, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"n":` + strconv.Itoa(int(n)) + `}`))
		}))
		return h, &calls
	}

	post := func(h http.Handler, key *string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(body))
		if key != nil {
			req.Header.Set("Idempotency-Key", *key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	key := func(s string) *string { return &s }

	t.Run("no header passes through", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)
		post(h, nil, `{}`)
		post(h, nil, `{}`)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("empty header rejected", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)
		rec := post(h, key(""), `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_IDEMPOTENCY_KEY", decodeCode(t, rec.Body.String()))
		assert.Zero(t, calls.Load())
	})

	t.Run("retry replays first response", func(t *testing.T) {
		h, calls := newHandler(http.StatusCreated)
		first := post(h, key("k1"), `{"a":1}`)
		second := post(h, key("k1"), `{"a":1}`)

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
	})

	t.Run("different body conflicts", func(t *testing.T) {
		h, _ := newHandler(http.StatusCreated)
		post(h, key("k1"), `{"a":1}`)
		rec := post(h, key("k1"), `{"a":2}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_CONFLICT", decodeCode(t, rec.Body.String()))
	})

	t.Run("failed responses are not recorded", func(t *testing.T) {
		h, calls := newHandler(http.StatusBadRequest)
		post(h, key("k1"), `{}`)
		post(h, key("k1"), `{}`)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestIdempotency_ConcurrentDuplicatesRunOnce(t *testing.T) {
	const attempts = 5

	var calls atomic.Int32
	gate := make(chan struct{})
	h := Idempotency(repository.NewIdempotencyRepository(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-gate
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(`{"amount":15}`))
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	results := make(chan *httptest.ResponseRecorder, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- post()
		}()
	}

	// Every duplicate is answered while the first request is still held.
	var inProgress int
	for range attempts - 1 {
		rec := <-results
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IDEMPOTENCY_IN_PROGRESS", decodeCode(t, rec.Body.String()))
		inProgress++
	}
	close(gate)
	wg.Wait()

	first := <-results
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, attempts-1, inProgress)
	assert.Equal(t, int32(1), calls.Load(), "handler invocations for one key")

	replay := post()
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotent-Replayed"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	var calls atomic.Int32
	h := Idempotency(repository.NewIdempotencyRepository(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))
	h = Recovery(h)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusInternalServerError, post().Code)
	assert.Equal(t, http.StatusCreated, post().Code, "key is free again after a failed attempt")
	assert.Equal(t, int32(2), calls.Load())
}
