package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ExtractedQuote is a verbatim community quote with its attribution.
type ExtractedQuote struct {
	Quote   string `json:"quote"   bson:"quote"`
	Source  string `json:"source"  bson:"source"`
	Context string `json:"context" bson:"context"`
}

// MaxQuotes caps every quote sequence carried by a report.
const MaxQuotes = 5

// ResearchBundle is the combined output of the two research calls for one niche.
type ResearchBundle struct {
	// MarketText holds the market analysis followed by the community
	// section header and the community text.
	MarketText    string
	CommunityText string
	Citations     []string
}

// Competitor is a single entry of the competitor landscape.
type Competitor struct {
	Name     string `json:"name"     bson:"name"`
	Weakness string `json:"weakness" bson:"weakness"`
	Pricing  string `json:"pricing"  bson:"pricing"`
}

// ScoreBreakdown holds the four equally weighted viability factors (0-25 each).
type ScoreBreakdown struct {
	Demand          int `json:"demand"          bson:"demand"`
	Competition     int `json:"competition"     bson:"competition"`
	ProfitPotential int `json:"profitPotential" bson:"profit_potential"`
	Scalability     int `json:"scalability"     bson:"scalability"`
}

// Sum returns the total of the four factors.
func (b ScoreBreakdown) Sum() int {
	return b.Demand + b.Competition + b.ProfitPotential + b.Scalability
}

// Report is the market-intelligence report produced for a niche.
type Report struct {
	ViabilityScore   int            `json:"viabilityScore"   bson:"viability_score"`
	ScoreBreakdown   ScoreBreakdown `json:"scoreBreakdown"   bson:"score_breakdown"`
	Verdict          string         `json:"verdict"          bson:"verdict"`
	Summary          string         `json:"summary"          bson:"summary"`
	MarketSize       string         `json:"marketSize"       bson:"market_size"`
	GrowthRate       string         `json:"growthRate"       bson:"growth_rate"`
	CompetitionLevel string         `json:"competitionLevel" bson:"competition_level"`
	TargetAudience   string         `json:"targetAudience"   bson:"target_audience"`

	PainPoints    []string     `json:"painPoints"    bson:"pain_points"`
	Opportunities []string     `json:"opportunities" bson:"opportunities"`
	Competitors   []Competitor `json:"competitors"   bson:"competitors"`

	MarketingChannels []string         `json:"marketingChannels" bson:"marketing_channels"`
	BarriersToEntry   []string         `json:"barriersToEntry"   bson:"barriers_to_entry"`
	UrgencyFactors    []string         `json:"urgencyFactors"    bson:"urgency_factors"`
	DemandSignals     []string         `json:"demandSignals"     bson:"demand_signals"`
	RiskFactors       []string         `json:"riskFactors"       bson:"risk_factors"`
	CommunityQuotes   []ExtractedQuote `json:"communityQuotes"   bson:"community_quotes"`

	Niche       string    `json:"niche"       bson:"niche"`
	Sources     []string  `json:"sources"     bson:"sources"`
	GeneratedAt time.Time `json:"generatedAt" bson:"generated_at"`
	FromCache   bool      `json:"fromCache"   bson:"from_cache"`
}

// ReportDocument is an archived report stored in MongoDB.
type ReportDocument struct {
	ID        primitive.ObjectID `json:"id"         bson:"_id,omitempty"`
	RunID     string             `json:"run_id"     bson:"run_id"`
	Niche     string             `json:"niche"      bson:"niche"`
	Report    Report             `json:"report"     bson:"report"`
	ExportKey string             `json:"export_key" bson:"export_key"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// AnalyzeRequest is the JSON body for POST /api/analyze.
type AnalyzeRequest struct {
	Niche     string `json:"niche"`
	SkipCache bool   `json:"skipCache"`
}
