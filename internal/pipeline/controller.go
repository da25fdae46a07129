// Package pipeline wires cache lookup, research, quote extraction, synthesis
// and cache write into the single externally exposed operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ayush/truth-engine/internal/cache"
	"github.com/ayush/truth-engine/internal/models"
	"github.com/ayush/truth-engine/internal/quotes"
)

// MaxNicheLength bounds the niche query, in runes.
const MaxNicheLength = 200

// ErrInvalidNiche is returned for empty or oversized niche queries.
var ErrInvalidNiche = errors.New("invalid niche")

// Stage names the pipeline state being executed.
type Stage string

const (
	StageCacheCheck   Stage = "cache_check"
	StageResearching  Stage = "researching"
	StageExtracting   Stage = "extracting"
	StageSynthesizing Stage = "synthesizing"
	StageCaching      Stage = "caching"
	StageDone         Stage = "done"
)

// Researcher produces the research bundle for a niche. It must not fail.
type Researcher interface {
	Research(ctx context.Context, niche string) models.ResearchBundle
}

// Synthesizer turns research into a report.
type Synthesizer interface {
	Synthesize(ctx context.Context, niche string, bundle models.ResearchBundle, preExtracted []models.ExtractedQuote) (*models.Report, error)
}

// Controller runs the research pipeline.
type Controller struct {
	cache       cache.Store
	researcher  Researcher
	synthesizer Synthesizer
	inflight    singleflight.Group
}

func NewController(c cache.Store, r Researcher, s Synthesizer) *Controller {
	return &Controller{cache: c, researcher: r, synthesizer: s}
}

// Validate checks a niche query before any external call is made.
func Validate(niche string) error {
	n := strings.TrimSpace(niche)
	if n == "" {
		return fmt.Errorf("%w: niche is required", ErrInvalidNiche)
	}
	if utf8.RuneCountInString(n) > MaxNicheLength {
		return fmt.Errorf("%w: niche must be at most %d characters", ErrInvalidNiche, MaxNicheLength)
	}
	return nil
}

// Run returns the report for niche, from cache unless bypassCache is set.
// Concurrent misses for the same niche share one pipeline execution. A caller
// whose ctx ends stops waiting without cancelling the shared execution.
func (c *Controller) Run(ctx context.Context, niche string, bypassCache bool) (*models.Report, error) {
	if err := Validate(niche); err != nil {
		return nil, err
	}
	niche = strings.TrimSpace(niche)
	key := cache.Normalize(niche)
	logger := zerolog.Ctx(ctx).With().Str("niche", key).Logger()
	ctx = logger.WithContext(ctx)

	if !bypassCache {
		logger.Debug().Str("stage", string(StageCacheCheck)).Send()
		if r := c.lookup(ctx, niche); r != nil {
			logger.Info().Msg("cache hit")
			return r, nil
		}
	}

	if bypassCache {
		return c.execute(ctx, niche)
	}
	// The shared run outlives any single caller; research and synthesis
	// carry their own timeouts.
	runCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (interface{}, error) {
		// a run for this key may have finished since the lookup above
		if r := c.lookup(runCtx, niche); r != nil {
			return r, nil
		}
		return c.execute(runCtx, niche)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug().Msg("joined in-flight run")
		}
		r := *res.Val.(*models.Report)
		return &r, nil
	}
}

func (c *Controller) lookup(ctx context.Context, niche string) *models.Report {
	r, ok, err := c.cache.Get(ctx, niche)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("cache read failed, treating as miss")
		return nil
	}
	if !ok {
		return nil
	}
	r.FromCache = true
	return r
}

func (c *Controller) execute(ctx context.Context, niche string) (*models.Report, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	logger.Debug().Str("stage", string(StageResearching)).Send()
	bundle := c.researcher.Research(ctx, niche)

	logger.Debug().Str("stage", string(StageExtracting)).Send()
	found, tier := quotes.Match(bundle.CommunityText)
	logger.Debug().Int("quotes", len(found)).Int("tier", tier).Msg("quotes extracted")

	logger.Debug().Str("stage", string(StageSynthesizing)).Send()
	report, err := c.synthesizer.Synthesize(ctx, niche, bundle, found)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	logger.Debug().Str("stage", string(StageCaching)).Send()
	if err := c.cache.Put(ctx, niche, report); err != nil {
		logger.Warn().Err(err).Msg("cache write failed")
	}

	logger.Info().
		Str("stage", string(StageDone)).
		Int("score", report.ViabilityScore).
		Int("quotes", len(report.CommunityQuotes)).
		Dur("took", time.Since(start)).
		Msg("report generated")
	return report, nil
}
