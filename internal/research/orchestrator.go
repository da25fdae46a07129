package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ayush/truth-engine/internal/models"
)

const (
	// CommunityHeader separates the market analysis from the community text.
	CommunityHeader = "\n\n=== COMMUNITY DISCUSSIONS ===\n\n"
	// NoDiscussions stands in for empty community research.
	NoDiscussions = "No community discussions found."

	DefaultMarketModel    = "sonar-pro"
	DefaultCommunityModel = "sonar"
	DefaultTimeout        = 60 * time.Second
)

// Communities are the forums the community research call is pointed at.
var Communities = []string{
	"r/entrepreneur", "r/smallbusiness", "r/SaaS", "r/startups",
	"r/sidehustle", "r/marketing", "Indie Hackers", "Hacker News",
}

const marketSystem = `You are a market research analyst. Answer with specific, sourced numbers. Never answer with vague qualitative statements when a figure exists.`

const marketPrompt = `Research the market for: %s

Report on each of the following with specific numeric data and the year of each figure:
1. Market size (current, in USD)
2. Growth rate (CAGR, with forecast horizon)
3. Top 5 competitors with their pricing tiers
4. Typical pricing in the niche (low, median, high)
5. Current trends (last 12-24 months)
6. Underserved opportunities and gaps

Cite your sources.`

const communitySystem = `You are a community researcher. You only report what real people wrote, verbatim. Never paraphrase and never invent quotes.`

const communityPrompt = `Find real discussions about: %s

Search these communities: %s

Find verbatim quotes for each of these categories:
1. A complaint about the problem or existing tools
2. A question about pricing
3. A discussion of the solution they currently use
4. A specific pain point
5. A wish or desire for something better

Format every quote EXACTLY like this, one per line:
QUOTE: "<exact words>" - <community, e.g. r/entrepreneur> - Context: <one sentence on the discussion>

If you cannot find real quotes, say so instead of making them up.`

// Outcome is the result of one research branch: either text (and citations)
// or the error that replaced it.
type Outcome struct {
	Branch    string
	Text      string
	Citations []string
	Err       error
}

// OK reports whether the branch succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Orchestrator runs the market and community research calls for a niche.
type Orchestrator struct {
	client         Completer
	marketModel    string
	communityModel string
	timeout        time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithModels(market, community string) Option {
	return func(o *Orchestrator) {
		if market != "" {
			o.marketModel = market
		}
		if community != "" {
			o.communityModel = community
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOrchestrator returns an orchestrator using client for both calls. A nil
// client disables research: every bundle comes back empty.
func NewOrchestrator(client Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:         client,
		marketModel:    DefaultMarketModel,
		communityModel: DefaultCommunityModel,
		timeout:        DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Research gathers market and community research for niche. It never fails:
// a branch that errors or times out contributes empty text.
func (o *Orchestrator) Research(ctx context.Context, niche string) models.ResearchBundle {
	logger := zerolog.Ctx(ctx)
	if o.client == nil {
		logger.Warn().Msg("research provider not configured, continuing without research")
		return models.ResearchBundle{}
	}

	var market, community Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		market = o.call(gctx, "market", CompletionRequest{
			Model:  o.marketModel,
			System: marketSystem,
			User:   fmt.Sprintf(marketPrompt, niche),
		})
		return nil
	})
	g.Go(func() error {
		community = o.call(gctx, "community", CompletionRequest{
			Model:  o.communityModel,
			System: communitySystem,
			User:   fmt.Sprintf(communityPrompt, niche, strings.Join(Communities, ", ")),
		})
		return nil
	})
	_ = g.Wait()

	for _, out := range []Outcome{market, community} {
		if !out.OK() {
			logger.Warn().Err(out.Err).Str("branch", out.Branch).Msg("research call failed, using empty text")
		}
	}
	return Bundle(market, community)
}

func (o *Orchestrator) call(ctx context.Context, branch string, req CompletionRequest) Outcome {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	c, err := o.client.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", o.timeout, err)
		}
		return Outcome{Branch: branch, Err: err}
	}
	zerolog.Ctx(ctx).Debug().
		Str("branch", branch).
		Dur("took", time.Since(start)).
		Int("chars", len(c.Text)).
		Int("citations", len(c.Citations)).
		Msg("research call finished")
	return Outcome{Branch: branch, Text: c.Text, Citations: c.Citations}
}

// Bundle collapses the two branch outcomes into a research bundle. Failed
// branches contribute empty text.
func Bundle(market, community Outcome) models.ResearchBundle {
	var marketText, communityText string
	var citations []string
	if market.OK() {
		marketText = market.Text
		citations = dedupe(market.Citations)
	}
	if community.OK() {
		communityText = community.Text
	}

	section := communityText
	if strings.TrimSpace(section) == "" {
		section = NoDiscussions
	}
	return models.ResearchBundle{
		MarketText:    marketText + CommunityHeader + section,
		CommunityText: communityText,
		Citations:     citations,
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
