package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sebuszqo/PaymentMethods/internal/auth"
)

// Counter counts hits for a key inside a fixed window and reports the time
// left until the window resets.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

type Config struct {
	Requests int
	Window   time.Duration
	Message  string
}

type Limiter struct {
	counter Counter
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

func NewLimiter(counter Counter, cfg Config, log *slog.Logger) *Limiter {
	if cfg.Message == "" {
		cfg.Message = "Rate limit exceeded. Please slow down your requests."
	}
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{counter: counter, cfg: cfg, log: log, now: time.Now}
}

// Middleware limits requests per owner, or per client address when the
// request carries no owner. Counter failures let the request through.
func (l *Limiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(scope, r)

			count, ttl, err := l.counter.Hit(r.Context(), key, l.cfg.Window)
			if err != nil {
				l.log.Warn("rate limit check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if ttl <= 0 {
				ttl = l.cfg.Window
			}

			remaining := l.cfg.Requests - int(count)
			if remaining < 0 {
				remaining = 0
			}
			resetAt := l.now().Add(ttl)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if count > int64(l.cfg.Requests) {
				l.log.Info("rate limit exceeded", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ttl.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, l.cfg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) key(scope string, r *http.Request) string {
	if owner, ok := auth.OwnerFromContext(r.Context()); ok {
		return fmt.Sprintf("rate_limit:%s:owner:%s", scope, owner.ID)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return fmt.Sprintf("rate_limit:%s:ip:%s", scope, host)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    statusCode,
	})
}
