// Package insight turns a client's research record into deal
// intelligence: a short brief a rep can read before a call. Text
// generation is delegated to a pluggable model backend; a generation
// failure degrades to a fixed fallback string rather than an error,
// because the brief is decoration on the record, not part of it.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Fallback is returned whenever generation fails.
const Fallback = "Error generating insights."

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configure a Generator backend.
type Options struct {
	APIKey       string
	Model        string
	PromptPrefix string
}

// Option customises Options.
type Option func(*Options)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Options) { o.APIKey = key }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithPromptPrefix prepends fixed instructions to every prompt.
func WithPromptPrefix(prefix string) Option {
	return func(o *Options) { o.PromptPrefix = prefix }
}

// NewOptions applies opts over defaults.
func NewOptions(opts ...Option) Options {
	var options Options
	for _, o := range opts {
		o(&options)
	}
	return options
}

// Bundle is everything the prompt is built from.
type Bundle struct {
	ClientName     string
	CompanyName    string
	CompanyProfile string // from the company enrichment payloads
	RecentNews     string // headlines or article markdown
	ExecutiveName  string
	DealTitle      string
	DealStage      string
	DealAmount     string
	Notes          string
}

// BuildPrompt renders the deal intelligence prompt. The model is asked
// for three sections: how to approach the client, objections to expect,
// and how to position against them.
func BuildPrompt(b Bundle) string {
	var sb strings.Builder
	sb.WriteString("You are a sales strategist. Using the research below, write deal intelligence for the account executive.\n")
	sb.WriteString("Respond with exactly three sections titled \"Approach\", \"Likely objections\", and \"Positioning\".\n\n")

	fmt.Fprintf(&sb, "Client: %s at %s\n", b.ClientName, b.CompanyName)
	if b.CompanyProfile != "" {
		fmt.Fprintf(&sb, "Company profile: %s\n", b.CompanyProfile)
	}
	if b.ExecutiveName != "" {
		fmt.Fprintf(&sb, "Key executive: %s\n", b.ExecutiveName)
	}
	if b.DealTitle != "" {
		fmt.Fprintf(&sb, "Active deal: %s (stage: %s", b.DealTitle, b.DealStage)
		if b.DealAmount != "" {
			fmt.Fprintf(&sb, ", amount: %s", b.DealAmount)
		}
		sb.WriteString(")\n")
	}
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Rep notes: %s\n", b.Notes)
	}
	if b.RecentNews != "" {
		fmt.Fprintf(&sb, "\nRecent news:\n%s\n", b.RecentNews)
	}
	return sb.String()
}

// Service generates deal intelligence through a Generator.
type Service struct {
	generator Generator
	logger    *slog.Logger
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService builds an insight Service over the generator.
func NewService(g Generator, opts ...ServiceOption) *Service {
	s := &Service{generator: g, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DealIntelligence builds the prompt from the bundle and returns the
// model's text verbatim. Any generation failure returns Fallback; the
// error is logged, never surfaced.
func (s *Service) DealIntelligence(ctx context.Context, b Bundle) string {
	if s.generator == nil {
		s.logger.Warn("insight requested with no generator configured")
		return Fallback
	}

	text, err := s.generator.Generate(ctx, BuildPrompt(b))
	if err != nil {
		s.logger.Error("generate insights",
			"company", b.CompanyName, "error", err)
		return Fallback
	}
	if strings.TrimSpace(text) == "" {
		s.logger.Error("generate insights: empty response", "company", b.CompanyName)
		return Fallback
	}
	return text
}
