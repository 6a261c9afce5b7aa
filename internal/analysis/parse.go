package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Models wrap JSON in prose or markdown fences despite instructions, so
// take everything between the first '{' and the last '}'.
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// rawResult tolerates the model's loose typing: estimated_probability can
// arrive as a number, a numeric string, or a percentage string.
type rawResult struct {
	Probability json.RawMessage `json:"estimated_probability"`
	Confidence  string          `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
	KeyEvents   []string        `json:"key_events"`
	Risks       []string        `json:"risks"`
	Sources     []string        `json:"sources"`
}

// parseResult extracts the structured analysis from the model's text. When
// the text contains no parseable JSON, the whole text becomes the
// reasoning, the market price stands in for the estimate, and confidence
// drops to low. The caller always gets a usable result.
func parseResult(text string, marketPrice decimal.Decimal) *Result {
	fallback := &Result{
		Probability: clampProbability(marketPrice),
		Confidence:  "low",
		Reasoning:   text,
		KeyEvents:   []string{},
		Risks:       []string{},
		Sources:     []string{},
	}

	match := jsonObject.FindString(text)
	if match == "" {
		return fallback
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return fallback
	}

	result := &Result{
		Probability: parseProbability(raw.Probability, marketPrice),
		Confidence:  raw.Confidence,
		Reasoning:   raw.Reasoning,
		KeyEvents:   raw.KeyEvents,
		Risks:       raw.Risks,
		Sources:     raw.Sources,
	}
	if result.Confidence == "" {
		result.Confidence = "medium"
	}
	if result.KeyEvents == nil {
		result.KeyEvents = []string{}
	}
	if result.Risks == nil {
		result.Risks = []string{}
	}
	if result.Sources == nil {
		result.Sources = []string{}
	}
	return result
}

// parseProbability accepts 0.65, "0.65", and "65%". Anything unparseable
// falls back to the market price. The result is clamped to [0, 1].
func parseProbability(raw json.RawMessage, marketPrice decimal.Decimal) decimal.Decimal {
	if len(raw) == 0 {
		return clampProbability(marketPrice)
	}

	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}

	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")

	p, err := decimal.NewFromString(s)
	if err != nil {
		return clampProbability(marketPrice)
	}
	if percent {
		p = p.Div(hundred)
	}
	return clampProbability(p)
}

func clampProbability(p decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}
