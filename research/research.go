// Package research aggregates third-party intelligence about CRM
// clients: recent news, the lead article's full text, two company
// enrichment profiles, and an executive lookup. Each source is fetched
// through a per-source cooldown gate and stored in its own row, so
// sources refresh independently and a failing provider degrades only
// its own slice of the record.
package research

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelio/prospect/research/internal/pipeline"
	"github.com/avelio/prospect/research/internal/store"
)

// Subject aliases the pipeline subject so callers do not import
// internal packages.
type Subject = pipeline.Subject

// SourceResult re-exports the stored per-source state.
type SourceResult = store.SourceResult

// Record re-exports the per-client research record.
type Record = store.Record

// FetchLogEntry re-exports one fetch attempt.
type FetchLogEntry = store.FetchLogEntry

// Provider handler configurations, re-exported for callers.
type (
	NewsConfig    = pipeline.NewsConfig
	PageConfig    = pipeline.PageConfig
	CompanyConfig = pipeline.CompanyConfig
	FirmoConfig   = pipeline.FirmoConfig
	PeopleConfig  = pipeline.PeopleConfig
)

// SubjectLister returns the subjects to research on each cycle.
type SubjectLister func(ctx context.Context) ([]Subject, error)

// Config configures the research service.
type Config struct {
	// CheckInterval is how often the background loop scans for due
	// subjects. Default: 15 minutes.
	CheckInterval time.Duration
	// Cooldown is how long a fetched source stays fresh. Default: 12 hours.
	Cooldown time.Duration

	News    pipeline.NewsConfig
	Page    pipeline.PageConfig
	Company pipeline.CompanyConfig
	Firmo   pipeline.FirmoConfig
	People  pipeline.PeopleConfig
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = pipeline.DefaultCooldown
	}
}

// Service owns the research pipeline and its background loop.
type Service struct {
	store    *store.Store
	pipeline *pipeline.Pipeline
	subjects SubjectLister
	config   Config
	logger   *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithHandlers replaces the default provider handlers, for tests.
func WithHandlers(handlers ...pipeline.Handler) ServiceOption {
	return func(s *Service) {
		s.pipeline = pipeline.New(s.store, handlers,
			pipeline.WithCooldown(s.config.Cooldown),
			pipeline.WithLogger(s.logger))
	}
}

// New creates a research Service over db. Subjects are supplied by the
// lister, typically backed by the CRM client table.
func New(db *sql.DB, subjects SubjectLister, client *http.Client, cfg Config, opts ...ServiceOption) (*Service, error) {
	cfg.defaults()
	if client == nil {
		client = http.DefaultClient
	}

	st := store.New(db)
	s := &Service{
		store:    st,
		subjects: subjects,
		config:   cfg,
		logger:   slog.Default(),
	}

	handlers := []pipeline.Handler{
		pipeline.NewNewsHandler(client, cfg.News),
		pipeline.NewPageHandler(client, cfg.Page),
		pipeline.NewCompanyHandler(client, cfg.Company),
		pipeline.NewFirmoHandler(client, cfg.Firmo),
		pipeline.NewPeopleHandler(client, cfg.People),
	}
	s.pipeline = pipeline.New(st, handlers,
		pipeline.WithCooldown(cfg.Cooldown),
		pipeline.WithLogger(s.logger))

	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ApplySchema creates the research tables on db.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}

// Run scans for due subjects on a ticker. Blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run once immediately on start.
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error("research cycle", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Error("research cycle", "error", err)
			}
		}
	}
}

// RunCycle researches every subject with at least one expired source.
func (s *Service) RunCycle(ctx context.Context) error {
	if s.subjects == nil {
		return ErrNoSubjects
	}
	subjects, err := s.subjects(ctx)
	if err != nil {
		return err
	}

	for _, sub := range subjects {
		due, err := s.pipeline.Due(ctx, sub)
		if err != nil {
			s.logger.Error("check due", "client_id", sub.ClientID, "error", err)
			continue
		}
		if !due {
			continue
		}
		if err := s.RunSubject(ctx, sub); err != nil {
			s.logger.Error("research subject", "client_id", sub.ClientID, "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// RunSubject researches one subject now, subject to per-source
// cooldowns.
func (s *Service) RunSubject(ctx context.Context, sub Subject) error {
	return s.pipeline.RunSubject(ctx, sub)
}

// GetRecord returns a client's research record, or nil if none exists.
func (s *Service) GetRecord(ctx context.Context, clientID, userID string) (*Record, error) {
	return s.store.GetRecord(ctx, clientID, userID)
}

// ListSourceResults returns all stored source rows for a client.
func (s *Service) ListSourceResults(ctx context.Context, clientID, userID string) ([]*SourceResult, error) {
	return s.store.ListSourceResults(ctx, clientID, userID)
}

// ListFetchLog returns the most recent fetch attempts for a client.
func (s *Service) ListFetchLog(ctx context.Context, clientID, userID string, limit int) ([]*FetchLogEntry, error) {
	return s.store.ListFetchLog(ctx, clientID, userID, limit)
}

// SetSummary stores a generated summary on a client's record.
func (s *Service) SetSummary(ctx context.Context, clientID, userID, summary string) error {
	return s.store.SetSummary(ctx, clientID, userID, summary)
}
