// Package model defines the core domain types shared across the simulator.
// All monetary and probability values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a binary outcome a position bets on.
// It is a closed two-variant type: only YES and NO exist.
type Direction string

const (
	Yes Direction = "YES"
	No  Direction = "NO"
)

// Valid reports whether d is one of the two known variants.
func (d Direction) Valid() bool {
	return d == Yes || d == No
}

var one = decimal.NewFromInt(1)

// SidePrice converts a YES-quoted market price into the price of this side.
// YES positions mark against the quoted price directly; NO positions mark
// against the complementary price 1-p.
func (d Direction) SidePrice(yesPrice decimal.Decimal) decimal.Decimal {
	if d == No {
		return one.Sub(yesPrice)
	}
	return yesPrice
}

// Position is one open simulated trade against a market.
//
// Direction and entry price are immutable after creation; only the current
// price changes, via batch price refreshes. Prices are quoted on the
// position's own side: a NO position's entry and current price are NO prices.
type Position struct {
	ID             string          `json:"id" db:"id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	MarketQuestion string          `json:"market_question" db:"market_question"`
	Direction      Direction       `json:"direction" db:"direction"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`               // staked, debited at entry
	EntryPrice     decimal.Decimal `json:"entry_price" db:"entry_price"`     // in (0, 1]
	CurrentPrice   decimal.Decimal `json:"current_price" db:"current_price"` // refreshed on demand
	PnL            decimal.Decimal `json:"pnl"`                              // derived, never stored
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Contracts returns the number of contracts the stake bought at entry.
func (p Position) Contracts() decimal.Decimal {
	return p.Amount.Div(p.EntryPrice)
}

// CurrentValue marks the position to the latest observed price.
func (p Position) CurrentValue() decimal.Decimal {
	return p.Contracts().Mul(p.CurrentPrice)
}

// UnrealizedPnL is the mark-to-market profit or loss: current value minus stake.
func (p Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentValue().Sub(p.Amount)
}

// Portfolio is the single virtual portfolio: cash balance plus open
// positions. Total P&L is derived from the positions, never stored.
type Portfolio struct {
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
	TotalPnL  decimal.Decimal `json:"total_pnl"`
}

// Market is a tradeable binary market as reported by the market-data
// collaborator. Prices are probabilities in [0, 1]; volume, liquidity, and
// the opportunity score are display/ranking metadata and stay float64.
type Market struct {
	ID             string           `json:"id"`
	Question       string           `json:"question"`
	Description    string           `json:"description,omitempty"`
	YesPrice       decimal.Decimal  `json:"yes_price"`
	NoPrice        decimal.Decimal  `json:"no_price"`
	BestBid        *decimal.Decimal `json:"best_bid,omitempty"`
	BestAsk        *decimal.Decimal `json:"best_ask,omitempty"`
	LastTradePrice *decimal.Decimal `json:"last_trade_price,omitempty"`
	Spread         decimal.Decimal  `json:"spread"`
	Volume         float64          `json:"volume"`
	Volume24h      float64          `json:"volume_24h"`
	Liquidity      float64          `json:"liquidity"`
	OneDayChange   decimal.Decimal  `json:"one_day_change"`
	OneWeekChange  decimal.Decimal  `json:"one_week_change"`
	OneMonthChange decimal.Decimal  `json:"one_month_change"`
	EndDate        string           `json:"end_date,omitempty"`
	Image          string           `json:"image,omitempty"`
	CommentCount   int              `json:"comment_count,omitempty"`
	Featured       bool             `json:"featured,omitempty"`

	// Set only by the opportunity ranking.
	OpportunityScore float64         `json:"opportunity_score,omitempty"`
	ScoreBreakdown   *ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// ScoreBreakdown itemizes the weighted components of an opportunity score.
type ScoreBreakdown struct {
	Momentum    float64 `json:"momentum"`
	Volume      float64 `json:"volume"`
	Liquidity   float64 `json:"liquidity"`
	Spread      float64 `json:"spread"`
	Uncertainty float64 `json:"uncertainty"`
	Timing      float64 `json:"timing"`
	Engagement  float64 `json:"engagement"`
}

// Analysis is one AI probability estimate for a market, logged after each
// successful analysis call. Records are immutable; they are only ever
// created or deleted.
type Analysis struct {
	ID             string          `json:"id" db:"id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	MarketQuestion string          `json:"market_question" db:"market_question"`
	MarketPrice    decimal.Decimal `json:"market_price" db:"market_price"`
	Probability    decimal.Decimal `json:"estimated_probability" db:"ai_probability"`
	Edge           decimal.Decimal `json:"edge" db:"edge"` // probability minus market price
	Confidence     string          `json:"confidence" db:"confidence"`
	Reasoning      string          `json:"reasoning" db:"reasoning"`
	KeyEvents      []string        `json:"key_events" db:"key_events"`
	Risks          []string        `json:"risks" db:"risks"`
	Sources        []string        `json:"sources" db:"sources"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
