package markets

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
)

var (
	half     = decimal.NewFromFloat(0.5)
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	minPrice = decimal.NewFromFloat(0.001)
	maxPrice = decimal.NewFromFloat(0.999)
)

// yesPrice resolves the current YES probability for a market. Source
// priority: last trade, then order-book midpoint, then the quoted outcome
// prices, then 0.5 when nothing is available. The result is clamped to
// [0.001, 0.999] so it is always usable as an entry price and a NO
// position can never be free.
func yesPrice(m gammaMarket) decimal.Decimal {
	if m.LastTradePrice != nil && m.LastTradePrice.IsPositive() {
		return clampPrice(*m.LastTradePrice)
	}
	if m.BestBid != nil && m.BestAsk != nil && m.BestBid.IsPositive() && m.BestAsk.IsPositive() {
		return clampPrice(m.BestBid.Add(*m.BestAsk).Div(two))
	}
	if p, ok := firstOutcomePrice(m.OutcomePrices); ok {
		return clampPrice(p)
	}
	return half
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(minPrice) {
		return minPrice
	}
	if p.GreaterThan(maxPrice) {
		return maxPrice
	}
	return p
}

// firstOutcomePrice extracts the YES price from Gamma's outcomePrices
// field. It arrives either as a JSON array of price strings or, on some
// endpoints, as that array serialized once more into a single string.
func firstOutcomePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	var prices []decimal.Decimal
	if err := json.Unmarshal(raw, &prices); err != nil || len(prices) == 0 {
		return decimal.Zero, false
	}
	if !prices[0].IsPositive() {
		return decimal.Zero, false
	}
	return prices[0], true
}

// toModel converts a Gamma market plus its parent event into the domain
// representation. Event fields fill in what the market record omits.
func toModel(ev gammaEvent, m gammaMarket) model.Market {
	yes := yesPrice(m)

	question := m.Question
	if question == "" {
		question = ev.Title
	}
	description := m.Description
	if description == "" {
		description = ev.Description
	}
	endDate := m.EndDate
	if endDate == "" {
		endDate = ev.EndDate
	}
	image := m.Image
	if image == "" {
		image = ev.Image
	}

	liquidity := m.LiquidityNum
	if liquidity.IsZero() {
		liquidity = m.Liquidity
	}

	return model.Market{
		ID:             m.marketID(),
		Question:       question,
		Description:    description,
		YesPrice:       yes,
		NoPrice:        one.Sub(yes),
		BestBid:        m.BestBid,
		BestAsk:        m.BestAsk,
		LastTradePrice: m.LastTradePrice,
		Spread:         m.Spread,
		Volume:         m.Volume.InexactFloat64(),
		Volume24h:      m.Volume24h.InexactFloat64(),
		Liquidity:      liquidity.InexactFloat64(),
		OneDayChange:   m.OneDayChange,
		OneWeekChange:  m.OneWeekChange,
		OneMonthChange: m.OneMonthChange,
		EndDate:        endDate,
		Image:          image,
		CommentCount:   ev.CommentCount,
		Featured:       ev.Featured,
	}
}

// flatten expands events into their tradeable markets, preserving event
// order (Gamma already orders by the requested sort key).
func flatten(events []gammaEvent) []model.Market {
	out := make([]model.Market, 0, len(events))
	for _, ev := range events {
		for _, m := range ev.Markets {
			if !m.tradeable() {
				continue
			}
			out = append(out, toModel(ev, m))
		}
	}
	return out
}
