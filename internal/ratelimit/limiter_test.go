package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebuszqo/PaymentMethods/internal/auth"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

type fakeCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{hits: make(map[string]int64)}
}

func (c *fakeCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if c.err != nil {
		return 0, 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[key]++
	return c.hits[key], window, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(owner string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/payment-methods", nil)
	if owner != "" {
		req = req.WithContext(auth.WithOwner(req.Context(), domain.Owner{ID: owner}))
	}
	return req
}

func TestLimiter_BlocksAfterLimit(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewLimiter(counter, Config{Requests: 2, Window: time.Minute}, nil)
	limiter.now = func() time.Time { return time.Unix(1000, 0) }
	h := limiter.Middleware("payment-methods")(okHandler())

	for i, remaining := range []string{"1", "0"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs("u1"))
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining, rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1060", rr.Header().Get("X-RateLimit-Reset"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("u1"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
	assert.Equal(t, "error", response["status"])
	assert.Equal(t, float64(http.StatusTooManyRequests), response["code"])

	// other owners have their own window
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestAs("u2"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLimiter_KeysByAddressWithoutOwner(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewLimiter(counter, Config{Requests: 5, Window: time.Minute}, nil)

	req := requestAs("")
	req.RemoteAddr = "10.0.0.1:5555"
	limiter.Middleware("health")(okHandler()).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int64(1), counter.hits["rate_limit:health:ip:10.0.0.1"])
}

func TestLimiter_FailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("connection refused")
	limiter := NewLimiter(counter, Config{Requests: 1, Window: time.Minute}, nil)
	h := limiter.Middleware("payment-methods")(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestAs("u1"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}
