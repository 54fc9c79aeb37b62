package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	LogLevel   string

	JWTSecret       string
	StripeSecretKey string

	DBConnectionString string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration

	// RedisURL is optional. Without it rate limiting and idempotency keys are off.
	RedisURL          string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	IdempotencyTTL    time.Duration

	// ReconcileSchedule is a cron spec; empty disables the scheduled repair.
	ReconcileSchedule string
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, deployments set real env vars
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		StripeSecretKey:    os.Getenv("STRIPE_SECRET_KEY"),
		DBConnectionString: os.Getenv("DB_CONNECTION_STRING"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ReconcileSchedule:  "@every 1h",
	}
	// set but empty turns the scheduled repair off
	if v, ok := os.LookupEnv("RECONCILE_SCHEDULE"); ok {
		cfg.ReconcileSchedule = strings.TrimSpace(v)
	}

	var errs []error
	cfg.DBMaxOpenConns = getInt("DB_MAX_OPEN_CONNS", 50, &errs)
	cfg.DBMaxIdleConns = getInt("DB_MAX_IDLE_CONNS", 25, &errs)
	cfg.DBConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute, &errs)
	cfg.RateLimitRequests = getInt("RATE_LIMIT_REQUESTS", 30, &errs)
	cfg.RateLimitWindow = getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs)
	cfg.IdempotencyTTL = getDuration("IDEMPOTENCY_TTL", 10*time.Minute, &errs)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every required variable that is still empty. Commands that
// only need part of the configuration pass the names they care about.
func (c *Config) Validate(required ...string) error {
	values := map[string]string{
		"JWT_SECRET":           c.JWTSecret,
		"STRIPE_SECRET_KEY":    c.StripeSecretKey,
		"DB_CONNECTION_STRING": c.DBConnectionString,
	}
	if len(required) == 0 {
		required = []string{"JWT_SECRET", "DB_CONNECTION_STRING", "STRIPE_SECRET_KEY"}
	}

	var missing []string
	for _, name := range required {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a non-negative integer, got %q", key, v))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s must be a positive duration, got %q", key, v))
		return fallback
	}
	return d
}
