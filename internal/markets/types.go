package markets

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Raw DTOs for the Gamma API. Gamma returns some numeric fields as JSON
// numbers and others as quoted strings; decimal's unmarshaler accepts both
// forms, so every numeric field decodes through it.

// gammaEvent is one event from GET /events. An event groups one or more
// binary markets (outcomes).
type gammaEvent struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	EndDate      string          `json:"endDate"`
	Image        string          `json:"image"`
	Featured     bool            `json:"featured"`
	CommentCount int             `json:"commentCount"`
	Markets      []gammaMarket   `json:"markets"`
	Tags         []gammaEventTag `json:"tags"`
}

type gammaEventTag struct {
	Label string `json:"label"`
}

// gammaMarket is one binary market inside an event.
type gammaMarket struct {
	ID              string           `json:"id"`
	ConditionID     string           `json:"conditionId"`
	Question        string           `json:"question"`
	Description     string           `json:"description"`
	BestBid         *decimal.Decimal `json:"bestBid"`
	BestAsk         *decimal.Decimal `json:"bestAsk"`
	LastTradePrice  *decimal.Decimal `json:"lastTradePrice"`
	OutcomePrices   json.RawMessage  `json:"outcomePrices"` // JSON array, sometimes doubly encoded
	Spread          decimal.Decimal  `json:"spread"`
	Volume          decimal.Decimal  `json:"volume"`
	Volume24h       decimal.Decimal  `json:"volume24hr"`
	Volume1w        decimal.Decimal  `json:"volume1wk"`
	Liquidity       decimal.Decimal  `json:"liquidity"`
	LiquidityNum    decimal.Decimal  `json:"liquidityNum"`
	Competitive     decimal.Decimal  `json:"competitive"`
	OneHourChange   decimal.Decimal  `json:"oneHourPriceChange"`
	OneDayChange    decimal.Decimal  `json:"oneDayPriceChange"`
	OneWeekChange   decimal.Decimal  `json:"oneWeekPriceChange"`
	OneMonthChange  decimal.Decimal  `json:"oneMonthPriceChange"`
	EndDate         string           `json:"endDate"`
	Image           string           `json:"image"`
	Active          *bool            `json:"active"`
	AcceptingOrders *bool            `json:"acceptingOrders"`
}

// tradeable reports whether the market is open for orders. Gamma omits the
// flags on some responses; missing means tradeable.
func (m gammaMarket) tradeable() bool {
	if m.Active != nil && !*m.Active {
		return false
	}
	if m.AcceptingOrders != nil && !*m.AcceptingOrders {
		return false
	}
	return true
}

// marketID prefers the condition ID, the stable cross-API identifier.
func (m gammaMarket) marketID() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.ID
}

// searchResponse is the shape of GET /public-search.
type searchResponse struct {
	Events []gammaEvent `json:"events"`
}
