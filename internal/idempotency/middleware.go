package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sebuszqo/PaymentMethods/internal/auth"
)

const (
	HeaderName   = "Idempotency-Key"
	maxKeyLength = 255
)

// Guard remembers keys for a while. Seen reports whether the key was already
// claimed and claims it when it was not.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func Key(scope, ownerID, requestKey string) string {
	return fmt.Sprintf("idem:%s:%s:%s", scope, ownerID, requestKey)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware rejects a repeated Idempotency-Key from the same owner with 409.
// Requests without the header pass untouched. A key whose request failed is
// released so the client can retry with it.
func Middleware(guard Guard, scope string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestKey := strings.TrimSpace(r.Header.Get(HeaderName))
			if requestKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(requestKey) > maxKeyLength {
				writeJSONError(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}

			ownerID := "anonymous"
			if owner, ok := auth.OwnerFromContext(r.Context()); ok {
				ownerID = owner.ID
			}
			key := Key(scope, ownerID, requestKey)

			seen, err := guard.Seen(r.Context(), key)
			if err != nil {
				log.Warn("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				writeJSONError(w, http.StatusConflict, "Request with this Idempotency-Key was already processed")
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusBadRequest {
				// detached from the request so a cancelled client still frees the key
				if err := guard.Release(context.WithoutCancel(r.Context()), key); err != nil {
					log.Warn("releasing idempotency key failed", "key", key, "err", err)
				}
			}
		})
	}
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
