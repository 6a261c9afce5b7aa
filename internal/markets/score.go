package markets

import (
	"math"
	"sort"
	"time"

	"github.com/polyagent/sim-engine/internal/model"
)

// Opportunity scoring. Ranking heuristics work in float64; only entry and
// mark prices need exact decimals, and these scores never touch money.
//
// Each component is scaled to 0-100, then combined with fixed weights:
// momentum 25%, volume 20%, liquidity 15%, spread 10%, uncertainty 15%,
// timing 10%, engagement 5%.

// Rank scores the given markets and returns the top n by opportunity
// score, highest first. The input slice is not modified.
func Rank(ms []model.Market, n int) []model.Market {
	return rankAt(ms, n, time.Now().UTC())
}

func rankAt(ms []model.Market, n int, now time.Time) []model.Market {
	scored := make([]model.Market, len(ms))
	copy(scored, ms)
	for i := range scored {
		scored[i].OpportunityScore, scored[i].ScoreBreakdown = scoreAt(scored[i], now)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].OpportunityScore > scored[j].OpportunityScore
	})

	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func scoreAt(m model.Market, now time.Time) (float64, *model.ScoreBreakdown) {
	price := m.YesPrice.InexactFloat64()
	spread := m.Spread.InexactFloat64()
	if spread == 0 {
		spread = 0.05
	}

	// Recent price movement signals news flow.
	change24h := math.Abs(m.OneDayChange.InexactFloat64())
	change1w := math.Abs(m.OneWeekChange.InexactFloat64())
	momentum := math.Min(100, change24h*500+change1w*200)

	// Log scales: volume and liquidity vary over orders of magnitude.
	volume := math.Min(100, math.Log10(math.Max(1, m.Volume24h))*15)
	liquidity := math.Min(100, math.Log10(math.Max(1, m.Liquidity))*15)

	// Tighter spread means better execution.
	spreadScore := math.Max(0, 100-spread*2000)

	// Prices near 0.5 leave the most room for an informational edge.
	uncertainty := 100 - math.Abs(price-0.5)*200

	// Prefer markets resolving soon, but not within a day.
	timing := 50.0
	if end, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		days := int(end.Sub(now).Hours() / 24)
		if days < 0 {
			days = 0
		}
		switch {
		case days < 1:
			timing = 30
		case days < 7:
			timing = 100
		case days < 30:
			timing = 80
		case days < 90:
			timing = 60
		default:
			timing = 40
		}
	}

	engagement := math.Min(100, math.Log10(math.Max(1, float64(m.CommentCount)))*30)
	if m.Featured {
		engagement = math.Min(100, engagement+20)
	}

	total := momentum*0.25 + volume*0.20 + liquidity*0.15 +
		spreadScore*0.10 + uncertainty*0.15 + timing*0.10 + engagement*0.05

	return round1(total), &model.ScoreBreakdown{
		Momentum:    round1(momentum),
		Volume:      round1(volume),
		Liquidity:   round1(liquidity),
		Spread:      round1(spreadScore),
		Uncertainty: round1(uncertainty),
		Timing:      round1(timing),
		Engagement:  round1(engagement),
	}
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
