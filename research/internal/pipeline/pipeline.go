// Package pipeline fans research subjects out to source handlers and
// merges their results into the store.
//
// Handlers only fetch; the pipeline owns the cooldown gate, the
// per-source upsert, and the fetch log. A handler failure marks its own
// source row and never disturbs sibling sources.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/avelio/prospect/research/internal/store"
)

// Subject is one client to research.
type Subject struct {
	ClientID    string
	UserID      string
	CompanyName string

	// ArticleURL is filled by the pipeline from the stored news payload
	// before fan-out. Empty until a news fetch has landed.
	ArticleURL string
}

// Handler fetches one source's data for a subject. A nil payload with a
// nil error means the provider had nothing usable.
type Handler interface {
	Source() string
	Fetch(ctx context.Context, sub Subject) (json.RawMessage, error)
}

// DefaultCooldown is how long a fetched source stays fresh.
const DefaultCooldown = 12 * time.Hour

// Pipeline runs the research cycle for subjects.
type Pipeline struct {
	store    *store.Store
	handlers []Handler
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithCooldown overrides the per-source cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) { p.cooldown = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a Pipeline over the store with the given handlers.
func New(st *store.Store, handlers []Handler, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    st,
		handlers: handlers,
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// newsPayload is the slice of the news payload the pipeline needs to
// seed the article handler.
type newsPayload struct {
	Articles []struct {
		URL string `json:"url"`
	} `json:"articles"`
}

// RunSubject researches one subject: every handler whose cooldown has
// expired runs concurrently. Handler failures are recorded on their own
// source row and do not propagate. Only store access errors are
// returned.
func (p *Pipeline) RunSubject(ctx context.Context, sub Subject) error {
	if err := p.store.TouchRecord(ctx, sub.ClientID, sub.UserID, sub.CompanyName); err != nil {
		return err
	}

	times, err := p.store.SourceTimes(ctx, sub.ClientID, sub.UserID)
	if err != nil {
		return err
	}

	// Seed the article handler from the last stored news payload. On the
	// first cycle there is none yet; the article source catches up on the
	// next cycle once news has landed.
	if sub.ArticleURL == "" {
		sub.ArticleURL = p.storedArticleURL(ctx, sub)
	}

	now := p.now()
	var wg sync.WaitGroup
	for _, h := range p.handlers {
		at, seen := times[h.Source()]
		if seen && now.Sub(time.UnixMilli(at)) < p.cooldown {
			p.logger.Debug("source fresh, skipping",
				"client_id", sub.ClientID, "source", h.Source())
			continue
		}

		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			p.runHandler(ctx, h, sub)
		}(h)
	}
	wg.Wait()
	return nil
}

func (p *Pipeline) storedArticleURL(ctx context.Context, sub Subject) string {
	prev, err := p.store.GetSourceResult(ctx, sub.ClientID, sub.UserID, "news")
	if err != nil || prev == nil || !prev.HasData {
		return ""
	}
	var np newsPayload
	if err := json.Unmarshal(prev.Payload, &np); err != nil || len(np.Articles) == 0 {
		return ""
	}
	return np.Articles[0].URL
}

func (p *Pipeline) runHandler(ctx context.Context, h Handler, sub Subject) {
	start := p.now()
	payload, err := h.Fetch(ctx, sub)
	elapsed := p.now().Sub(start)

	result := &store.SourceResult{
		ClientID:  sub.ClientID,
		UserID:    sub.UserID,
		Source:    h.Source(),
		FetchedAt: p.now().UnixMilli(),
	}
	logEntry := &store.FetchLogEntry{
		ClientID:   sub.ClientID,
		UserID:     sub.UserID,
		Source:     h.Source(),
		DurationMs: elapsed.Milliseconds(),
		FetchedAt:  result.FetchedAt,
	}

	switch {
	case err != nil:
		result.Status = store.StatusError
		result.Error = err.Error()
		logEntry.Status = store.StatusError
		logEntry.ErrorMessage = err.Error()
		p.logger.Warn("source fetch failed",
			"client_id", sub.ClientID, "source", h.Source(), "error", err)
	case payload == nil:
		result.Status = store.StatusEmpty
		logEntry.Status = store.StatusEmpty
	default:
		result.Status = store.StatusOK
		result.HasData = true
		result.Payload = payload
		logEntry.Status = store.StatusOK
	}

	if err := p.store.UpsertSourceResult(ctx, result); err != nil {
		p.logger.Error("store source result",
			"client_id", sub.ClientID, "source", h.Source(), "error", err)
	}
	if err := p.store.InsertFetchLog(ctx, logEntry); err != nil {
		p.logger.Error("store fetch log",
			"client_id", sub.ClientID, "source", h.Source(), "error", err)
	}
}

// Due reports whether any source for the subject has an expired
// cooldown (or has never been fetched).
func (p *Pipeline) Due(ctx context.Context, sub Subject) (bool, error) {
	times, err := p.store.SourceTimes(ctx, sub.ClientID, sub.UserID)
	if err != nil {
		return false, err
	}
	now := p.now()
	for _, h := range p.handlers {
		at, seen := times[h.Source()]
		if !seen || now.Sub(time.UnixMilli(at)) >= p.cooldown {
			return true, nil
		}
	}
	return false, nil
}
