package synthesis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ayush/truth-engine/internal/models"
)

// Fixed list sizes the report must carry.
const (
	painPointCount   = 5
	opportunityCount = 5
	competitorCount  = 5
)

var (
	verdicts          = map[string]bool{"GO": true, "CAUTION": true, "NO-GO": true}
	competitionLevels = map[string]bool{"low": true, "medium": true, "high": true}
)

// SchemaError means the synthesis provider answered with something that is
// not a valid report. Raw holds the provider text for diagnosis.
type SchemaError struct {
	Raw    string
	Reason string
}

func (e *SchemaError) Error() string {
	return "synthesis: invalid report: " + e.Reason
}

// wireReport mirrors the provider JSON. Numbers are floats because models do
// not reliably emit integers.
type wireReport struct {
	ViabilityScore float64 `json:"viabilityScore"`
	ScoreBreakdown struct {
		Demand          float64 `json:"demand"`
		Competition     float64 `json:"competition"`
		ProfitPotential float64 `json:"profitPotential"`
		Scalability     float64 `json:"scalability"`
	} `json:"scoreBreakdown"`
	Verdict          string `json:"verdict"`
	Summary          string `json:"summary"`
	MarketSize       string `json:"marketSize"`
	GrowthRate       string `json:"growthRate"`
	CompetitionLevel string `json:"competitionLevel"`
	TargetAudience   string `json:"targetAudience"`

	PainPoints    []string            `json:"painPoints"`
	Opportunities []string            `json:"opportunities"`
	Competitors   []models.Competitor `json:"competitors"`

	MarketingChannels []string                `json:"marketingChannels"`
	BarriersToEntry   []string                `json:"barriersToEntry"`
	UrgencyFactors    []string                `json:"urgencyFactors"`
	DemandSignals     []string                `json:"demandSignals"`
	RiskFactors       []string                `json:"riskFactors"`
	CommunityQuotes   []models.ExtractedQuote `json:"communityQuotes"`
}

// Parse validates raw provider output and decodes it into a Report. It does
// not attempt to repair malformed output.
func Parse(raw string) (*models.Report, error) {
	text := strings.TrimSpace(raw)
	fail := func(format string, args ...interface{}) error {
		return &SchemaError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	var blob map[string]interface{}
	if err := json.Unmarshal([]byte(text), &blob); err != nil {
		return nil, fail("not a JSON object: %v", err)
	}
	if err := validate(blob); err != nil {
		return nil, fail("%v", err)
	}

	var w wireReport
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, fail("decode: %v", err)
	}

	return &models.Report{
		ViabilityScore: int(math.Round(w.ViabilityScore)),
		ScoreBreakdown: models.ScoreBreakdown{
			Demand:          int(math.Round(w.ScoreBreakdown.Demand)),
			Competition:     int(math.Round(w.ScoreBreakdown.Competition)),
			ProfitPotential: int(math.Round(w.ScoreBreakdown.ProfitPotential)),
			Scalability:     int(math.Round(w.ScoreBreakdown.Scalability)),
		},
		Verdict:           strings.ToUpper(strings.TrimSpace(w.Verdict)),
		Summary:           w.Summary,
		MarketSize:        w.MarketSize,
		GrowthRate:        w.GrowthRate,
		CompetitionLevel:  strings.ToLower(strings.TrimSpace(w.CompetitionLevel)),
		TargetAudience:    w.TargetAudience,
		PainPoints:        w.PainPoints,
		Opportunities:     w.Opportunities,
		Competitors:       w.Competitors,
		MarketingChannels: orEmpty(w.MarketingChannels),
		BarriersToEntry:   orEmpty(w.BarriersToEntry),
		UrgencyFactors:    orEmpty(w.UrgencyFactors),
		DemandSignals:     orEmpty(w.DemandSignals),
		RiskFactors:       orEmpty(w.RiskFactors),
		CommunityQuotes:   w.CommunityQuotes,
	}, nil
}

func validate(blob map[string]interface{}) error {
	if _, err := number(blob, "viabilityScore", 0, 100); err != nil {
		return err
	}

	breakdown, ok := blob["scoreBreakdown"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("scoreBreakdown: missing or not an object")
	}
	for _, k := range []string{"demand", "competition", "profitPotential", "scalability"} {
		if _, err := number(breakdown, k, 0, 25); err != nil {
			return fmt.Errorf("scoreBreakdown.%w", err)
		}
	}

	for _, k := range []string{"summary", "marketSize", "growthRate", "targetAudience"} {
		if _, err := str(blob, k); err != nil {
			return err
		}
	}
	v, err := str(blob, "verdict")
	if err != nil {
		return err
	}
	if !verdicts[strings.ToUpper(strings.TrimSpace(v))] {
		return fmt.Errorf("verdict: unexpected value %q", v)
	}
	lvl, err := str(blob, "competitionLevel")
	if err != nil {
		return err
	}
	if !competitionLevels[strings.ToLower(strings.TrimSpace(lvl))] {
		return fmt.Errorf("competitionLevel: unexpected value %q", lvl)
	}

	if err := stringList(blob, "painPoints", painPointCount, true); err != nil {
		return err
	}
	if err := stringList(blob, "opportunities", opportunityCount, true); err != nil {
		return err
	}
	if err := objectList(blob, "competitors", competitorCount, true, "name", "weakness", "pricing"); err != nil {
		return err
	}

	for _, k := range []string{"marketingChannels", "barriersToEntry", "urgencyFactors", "demandSignals", "riskFactors"} {
		if err := stringList(blob, k, -1, false); err != nil {
			return err
		}
	}
	return objectList(blob, "communityQuotes", -1, false, "quote", "source", "context")
}

func number(m map[string]interface{}, key string, min, max float64) (float64, error) {
	n, ok := m[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%s: missing or not a number", key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s: %v outside [%v, %v]", key, n, min, max)
	}
	return n, nil
}

func str(m map[string]interface{}, key string) (string, error) {
	s, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("%s: missing or not a string", key)
	}
	return s, nil
}

// list returns the array under key. A negative want accepts any length.
func list(m map[string]interface{}, key string, want int, required bool) ([]interface{}, error) {
	v, present := m[key]
	if !present || v == nil {
		if required {
			return nil, fmt.Errorf("%s: missing", key)
		}
		return nil, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: not an array", key)
	}
	if want >= 0 && len(items) != want {
		return nil, fmt.Errorf("%s: want %d entries, got %d", key, want, len(items))
	}
	return items, nil
}

func stringList(m map[string]interface{}, key string, want int, required bool) error {
	items, err := list(m, key, want, required)
	if err != nil {
		return err
	}
	for i, it := range items {
		if _, ok := it.(string); !ok {
			return fmt.Errorf("%s[%d]: not a string", key, i)
		}
	}
	return nil
}

func objectList(m map[string]interface{}, key string, want int, required bool, fields ...string) error {
	items, err := list(m, key, want, required)
	if err != nil {
		return err
	}
	for i, it := range items {
		obj, ok := it.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s[%d]: not an object", key, i)
		}
		for _, f := range fields {
			if v, present := obj[f]; present && v != nil {
				if _, ok := v.(string); !ok {
					return fmt.Errorf("%s[%d].%s: not a string", key, i, f)
				}
			}
		}
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
