package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the business-rule and security knobs that are not owned by a
// single package. Infrastructure packages (database, logger) keep their own
// ConfigFromEnv.
type Config struct {
	HTTPAddr string

	// lending rules
	LoanPeriodDays int
	MaxActiveLoans int
	LateFeePerDay  float64

	// book-listing cache
	RedisURL      string
	BooksCacheTTL time.Duration

	// token issuance
	TokenSecret string
	TokenExpiry time.Duration

	// overdue sweep
	SweepInterval time.Duration
}

// FromEnv reads configuration from environment variables, falling back to the
// documented defaults (14-day loans, 3 active loans, R$2.00/day, 1h cache TTL,
// 8-day tokens).
func FromEnv() Config {
	return Config{
		HTTPAddr:       stringEnv("HTTP_ADDR", "0.0.0.0:8000"),
		LoanPeriodDays: intEnv("LOAN_PERIOD_DAYS", 14),
		MaxActiveLoans: intEnv("MAX_ACTIVE_LOANS", 3),
		LateFeePerDay:  floatEnv("LATE_FEE_PER_DAY", 2.0),
		RedisURL:       stringEnv("REDIS_URL", "redis://localhost:6379/0"),
		BooksCacheTTL:  time.Duration(intEnv("BOOKS_CACHE_TTL_SECONDS", 3600)) * time.Second,
		TokenSecret:    stringEnv("TOKEN_SECRET", "change-me-in-production"),
		TokenExpiry:    time.Duration(intEnv("TOKEN_EXPIRE_MINUTES", 60*24*8)) * time.Minute,
		SweepInterval:  time.Duration(intEnv("OVERDUE_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute,
	}
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
