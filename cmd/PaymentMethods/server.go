package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sebuszqo/PaymentMethods/internal/auth"
	"github.com/sebuszqo/PaymentMethods/internal/idempotency"
	"github.com/sebuszqo/PaymentMethods/internal/payment/interfaces"
	"github.com/sebuszqo/PaymentMethods/internal/ratelimit"
)

type healthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Server struct {
	router         *http.ServeMux
	paymentHandler *interfaces.PaymentHandler
	identity       auth.IdentityProvider
	limiter        *ratelimit.Limiter
	idempotency    idempotency.Guard
	db             healthChecker
	log            *slog.Logger
}

func NewServer(paymentHandler *interfaces.PaymentHandler, identity auth.IdentityProvider, db healthChecker, log *slog.Logger) *Server {
	return &Server{
		paymentHandler: paymentHandler,
		identity:       identity,
		db:             db,
		log:            log,
		router:         http.NewServeMux(),
	}
}

// WithRedisGuards turns on rate limiting and idempotency keys.
func (s *Server) WithRedisGuards(limiter *ratelimit.Limiter, guard idempotency.Guard) *Server {
	s.limiter = limiter
	s.idempotency = guard
	return s
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	if s.limiter != nil {
		next = s.limiter.Middleware("payment-methods")(next)
	}
	return auth.JWTAccessTokenMiddleware(s.identity, s.log)(next)
}

func (s *Server) idempotent(h http.HandlerFunc) http.HandlerFunc {
	if s.idempotency == nil {
		return h
	}
	return idempotency.Middleware(s.idempotency, "add-payment-method", s.log)(h).ServeHTTP
}

func (s *Server) RegisterRoutes() {
	s.router.Handle("GET /ready", http.HandlerFunc(s.handleReady))
	s.router.Handle("GET /health", http.HandlerFunc(s.handleHealth))

	s.router.Handle("GET /payment-methods", s.protected(s.paymentHandler.GetPaymentMethods))
	s.router.Handle("POST /payment-methods", s.protected(s.idempotent(s.paymentHandler.AddPaymentMethod)))
	s.router.Handle("DELETE /payment-methods/{id}", s.protected(s.paymentHandler.DeletePaymentMethod))
	s.router.Handle("PUT /payment-methods/{id}/default", s.protected(s.paymentHandler.SetDefaultPaymentMethod))

	s.router.Handle("/", http.HandlerFunc(notFoundHandler))
}

func (s *Server) Handler() http.Handler {
	return loggingMiddleware(s.log)(s.router)
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	interfaces.RespondError(w, http.StatusNotFound, "Path not found")
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	interfaces.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.db.Health(r.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	interfaces.RespondJSON(w, status, stats)
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			log.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapper.status,
				"duration", time.Since(start),
			)
		})
	}
}
