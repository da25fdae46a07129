// Package synthesis turns a research bundle into a validated Report through a
// language model.
package synthesis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayush/truth-engine/internal/models"
	"github.com/ayush/truth-engine/internal/research"
)

const (
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 120 * time.Second

	maxTokens   = 4096
	temperature = 0.3
)

// ErrNotConfigured is returned when no synthesis provider credential is set.
var ErrNotConfigured = errors.New("synthesis provider not configured")

// ProviderError wraps a failed synthesis call.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return "synthesis provider: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Synthesizer builds reports from research.
type Synthesizer struct {
	client  research.Completer
	model   string
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

func WithModel(model string) Option {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// New returns a Synthesizer. A nil client makes every call fail with
// ErrNotConfigured.
func New(client research.Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		client:  client,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces the report for niche. Quotes in preExtracted replace the
// model's quotes when the model returns none.
func (s *Synthesizer) Synthesize(ctx context.Context, niche string, bundle models.ResearchBundle, preExtracted []models.ExtractedQuote) (*models.Report, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	logger := zerolog.Ctx(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.client.Complete(callCtx, research.CompletionRequest{
		Model:       s.model,
		System:      systemPrompt,
		User:        BuildUserPrompt(niche, bundle, preExtracted),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	logger.Debug().Dur("took", time.Since(start)).Int("chars", len(out.Text)).Msg("synthesis call finished")

	report, err := Parse(out.Text)
	if err != nil {
		return nil, err
	}

	if sum := report.ScoreBreakdown.Sum(); abs(sum-report.ViabilityScore) > 2 {
		logger.Warn().
			Int("score", report.ViabilityScore).
			Int("breakdown_sum", sum).
			Msg("viability score does not match its breakdown")
	}

	if len(report.CommunityQuotes) == 0 && len(preExtracted) > 0 {
		logger.Info().Int("quotes", len(preExtracted)).Msg("model returned no quotes, injecting extracted quotes")
		report.CommunityQuotes = capQuotes(preExtracted)
	} else {
		report.CommunityQuotes = capQuotes(report.CommunityQuotes)
	}

	report.Niche = niche
	report.Sources = bundle.Citations
	if report.Sources == nil {
		report.Sources = []string{}
	}
	report.GeneratedAt = s.now()
	report.FromCache = false
	return report, nil
}

func capQuotes(q []models.ExtractedQuote) []models.ExtractedQuote {
	if q == nil {
		return []models.ExtractedQuote{}
	}
	if len(q) > models.MaxQuotes {
		q = q[:models.MaxQuotes]
	}
	out := make([]models.ExtractedQuote, len(q))
	copy(out, q)
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
