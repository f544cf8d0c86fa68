// Package flight looks up live flight status for travelling clients.
//
// Unlike the research sources, provider failures here surface to the
// caller: a rep asking "where is my client's flight" needs a real
// answer or a real error, not a silently stale record. Lookups go
// through a TTL cache first and a rate limiter second, so a cache hit
// never spends provider quota.
package flight

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Canonical flight statuses.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusLanded    = "landed"
	StatusCancelled = "cancelled"
	StatusDelayed   = "delayed"
)

// ErrRateLimited is returned when the provider call budget is exhausted.
var ErrRateLimited = errors.New("flight: rate limited, retry later")

// ErrNotFound is returned when the provider knows no such flight.
var ErrNotFound = errors.New("flight: flight not found")

// ErrProvider is returned when the provider call itself failed.
var ErrProvider = errors.New("flight: provider error")

// Status is a normalized flight status.
type Status struct {
	FlightIATA string `json:"flight_iata"`
	Airline    string `json:"airline,omitempty"`
	Status     string `json:"status"`
	Departure  Stop   `json:"departure"`
	Arrival    Stop   `json:"arrival"`
	FetchedAt  int64  `json:"fetched_at"`
}

// Stop is one end of a flight.
type Stop struct {
	Airport   string `json:"airport,omitempty"`
	IATA      string `json:"iata,omitempty"`
	Scheduled string `json:"scheduled,omitempty"`
	Estimated string `json:"estimated,omitempty"`
	DelayMin  int    `json:"delay_min,omitempty"`
}

// Provider fetches a flight status from an upstream API.
type Provider interface {
	Lookup(ctx context.Context, flightIATA string) (*Status, error)
}

// Config configures the flight service.
type Config struct {
	// CacheTTL is how long a looked-up status stays fresh. Default: 5 minutes.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached flights. Default: 512.
	CacheSize int
	// RateLimit is the provider call budget per window. Default: 1.
	RateLimit int
	// RateWindow is the rolling limiter window. Default: 1 second.
	RateWindow time.Duration
}

func (c *Config) defaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 512
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
}

// Service composes the cache, the limiter, and the provider.
type Service struct {
	provider Provider
	cache    *Cache
	limiter  *Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source for the service, its cache, and
// its limiter. For tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
		s.cache.now = now
		s.limiter.now = now
	}
}

// NewService builds a flight Service over the provider.
func NewService(provider Provider, cfg Config, opts ...ServiceOption) *Service {
	cfg.defaults()
	s := &Service{
		provider: provider,
		cache:    NewCache(cfg.CacheSize, cfg.CacheTTL),
		limiter:  NewLimiter(cfg.RateLimit, cfg.RateWindow),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Lookup returns the status of a flight by IATA code ("AF1234").
// Fresh cache entries are served without touching the limiter or the
// provider. When the limiter rejects, the error is ErrRateLimited and
// no provider call is made.
func (s *Service) Lookup(ctx context.Context, flightIATA string) (*Status, error) {
	key := strings.ToUpper(strings.TrimSpace(flightIATA))
	if key == "" {
		return nil, ErrNotFound
	}

	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	if !s.limiter.Allow() {
		s.logger.Debug("flight lookup rate limited", "flight", key)
		return nil, ErrRateLimited
	}

	status, err := s.provider.Lookup(ctx, key)
	if err != nil {
		s.logger.Warn("flight provider lookup failed", "flight", key, "error", err)
		return nil, err
	}
	status.FetchedAt = s.now().UnixMilli()

	s.cache.Put(key, status)
	return status, nil
}
