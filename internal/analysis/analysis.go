// Package analysis estimates the true probability of a market outcome with
// a search-grounded Gemini model and compares it against the market price.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/upstream"
)

// Result is one probability estimate for a market.
type Result struct {
	Probability decimal.Decimal `json:"estimated_probability"`
	Confidence  string          `json:"confidence"`
	Reasoning   string          `json:"reasoning"`
	KeyEvents   []string        `json:"key_events"`
	Risks       []string        `json:"risks"`
	Sources     []string        `json:"sources"`
}

// Analyzer produces probability estimates. *GeminiAnalyzer implements it;
// tests substitute stubs.
type Analyzer interface {
	Analyze(ctx context.Context, m model.Market, port *model.Portfolio) (*Result, error)
}

// GeminiAnalyzer calls Gemini with the Google Search tool enabled, so the
// model grounds its estimate in current news rather than training data.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

// NewGeminiAnalyzer creates an analyzer using the given model, e.g.
// "gemini-2.5-flash".
func NewGeminiAnalyzer(client *genai.Client, modelName string, log *slog.Logger) *GeminiAnalyzer {
	return &GeminiAnalyzer{
		client: client,
		model:  modelName,
		log:    log,
	}
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, m model.Market, port *model.Portfolio) (*Result, error) {
	prompt := buildPrompt(m, port)

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return nil, mapGenaiError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: model returned no text", upstream.ErrUnavailable)
	}

	result := parseResult(text, m.YesPrice)
	result.Sources = mergeSources(result.Sources, citations(resp))

	g.log.Info("market analyzed",
		"market_id", m.ID,
		"probability", result.Probability,
		"confidence", result.Confidence,
		"sources", len(result.Sources))
	return result, nil
}

// citations collects grounding URIs the search tool attached to the
// response.
func citations(resp *genai.GenerateContentResponse) []string {
	var urls []string
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				urls = append(urls, chunk.Web.URI)
			}
		}
	}
	return urls
}

func mergeSources(parsed, grounded []string) []string {
	seen := make(map[string]bool, len(parsed)+len(grounded))
	merged := make([]string, 0, len(parsed)+len(grounded))
	for _, u := range append(parsed, grounded...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		merged = append(merged, u)
	}
	return merged
}

func mapGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return fmt.Errorf("%w: %s", upstream.ErrAuth, apiErr.Message)
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %s", upstream.ErrRateLimited, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
}

var hundred = decimal.NewFromInt(100)

// buildPrompt assembles the analyst prompt. Market context lines are only
// included when the data is present, so thin markets do not get misleading
// zero-valued context.
func buildPrompt(m model.Market, port *model.Portfolio) string {
	var ctx []string
	ctx = append(ctx, fmt.Sprintf("CURRENT MARKET PRICE: %s%%", m.YesPrice.Mul(hundred).Round(1)))

	if m.Description != "" {
		ctx = append(ctx, "RESOLUTION CRITERIA: "+truncate(m.Description, 1000))
	}
	if m.EndDate != "" {
		ctx = append(ctx, "RESOLUTION DATE: "+m.EndDate)
	}
	if !m.OneDayChange.IsZero() {
		ctx = append(ctx, fmt.Sprintf("24H PRICE CHANGE: %s %s%%",
			trendWord(m.OneDayChange), m.OneDayChange.Abs().Mul(hundred).Round(1)))
	}
	if !m.OneWeekChange.IsZero() {
		ctx = append(ctx, fmt.Sprintf("7D PRICE CHANGE: %s %s%%",
			trendWord(m.OneWeekChange), m.OneWeekChange.Abs().Mul(hundred).Round(1)))
	}
	if m.Volume24h > 0 {
		ctx = append(ctx, fmt.Sprintf("24H VOLUME: $%.0f", m.Volume24h))
	}
	if port != nil {
		ctx = append(ctx, fmt.Sprintf("PORTFOLIO CONTEXT: balance %s, %d open positions",
			port.Balance.Round(2), len(port.Positions)))
	}

	return fmt.Sprintf(`You are an expert prediction market analyst. Analyze this market and provide a probability estimate.

MARKET QUESTION: %s

%s

TASK:
1. Search the web for current news, data, and expert opinions relevant to this question
2. Consider the resolution criteria carefully
3. Analyze price momentum (recent price changes may indicate new information)
4. Estimate the TRUE probability this event will resolve YES

Return your analysis as a JSON object with this EXACT structure:
{
    "estimated_probability": <float between 0.0 and 1.0>,
    "confidence": "<low|medium|high>",
    "reasoning": "<detailed multi-paragraph analysis with line breaks between sections>",
    "key_events": ["<upcoming event/date 1>", "<upcoming event/date 2>"],
    "risks": ["<risk to your thesis 1>", "<risk to your thesis 2>"],
    "sources": ["<url1>", "<url2>"]
}

GUIDELINES:
- Be precise with probability. Don't default to 50%%.
- If the market has moved significantly, explain why (new information?)
- For "confidence": use "high" only if evidence is strong and recent
- List specific upcoming dates/events that could move the market
- Acknowledge risks that could invalidate your analysis
- Use line breaks in reasoning for readability

Only return the JSON object, no other text.`, m.Question, strings.Join(ctx, "\n"))
}

func trendWord(change decimal.Decimal) string {
	if change.IsPositive() {
		return "up"
	}
	return "down"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
