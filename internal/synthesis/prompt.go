package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayush/truth-engine/internal/models"
)

const systemPrompt = `You are a market viability analyst. You turn raw research into a strict JSON report.

Output ONLY a raw JSON object. No markdown, no code fences, no commentary before or after.

Schema:
{
  "viabilityScore": <integer 0-100>,
  "scoreBreakdown": {
    "demand": <integer 0-25>,
    "competition": <integer 0-25, higher means easier to compete>,
    "profitPotential": <integer 0-25>,
    "scalability": <integer 0-25>
  },
  "verdict": "GO" | "CAUTION" | "NO-GO",
  "summary": "<two sentences>",
  "marketSize": "<figure with currency and year>",
  "growthRate": "<figure with horizon>",
  "competitionLevel": "low" | "medium" | "high",
  "targetAudience": "<who buys>",
  "painPoints": [exactly 5 strings],
  "opportunities": [exactly 5 strings],
  "competitors": [exactly 5 objects {"name": "", "weakness": "", "pricing": ""}],
  "marketingChannels": [strings],
  "barriersToEntry": [strings],
  "urgencyFactors": [strings],
  "demandSignals": [strings],
  "riskFactors": [strings],
  "communityQuotes": [0-3 objects {"quote": "", "source": "", "context": ""}]
}

Scoring: viabilityScore is the sum of the four scoreBreakdown factors, each worth 25% of the total.
Use the numbers in the research whenever they exist. Never invent community quotes.`

const userPrompt = `Niche: %s

Research:
%s
%s
Produce the JSON report for this niche.`

const noResearch = `(no research data available; rely on general knowledge and label uncertain figures as estimates)`

const quotesSection = `
Verified community quotes (extracted verbatim from the research above):
%s

Use these quotes verbatim in "communityQuotes". Do not rephrase them and do not invent new ones.
`

// BuildUserPrompt renders the user prompt for niche from the research bundle
// and the pre-extracted quotes.
func BuildUserPrompt(niche string, bundle models.ResearchBundle, quotes []models.ExtractedQuote) string {
	research := bundle.MarketText
	if strings.TrimSpace(research) == "" {
		research = noResearch
	}

	var qs string
	if len(quotes) > 0 {
		raw, _ := json.MarshalIndent(quotes, "", "  ")
		qs = fmt.Sprintf(quotesSection, raw)
	}
	return fmt.Sprintf(userPrompt, niche, research, qs)
}
