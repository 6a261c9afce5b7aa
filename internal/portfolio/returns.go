package portfolio

import "github.com/shopspring/decimal"

// Return describes the best-case outcome of a prospective trade: every
// contract pays out 1 unit if the chosen side resolves true.
type Return struct {
	Contracts decimal.Decimal `json:"contracts"`
	Payout    decimal.Decimal `json:"potential_payout"`
	Profit    decimal.Decimal `json:"potential_profit"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

var hundred = decimal.NewFromInt(100)

// PotentialReturn computes the payoff of staking amount at the given
// side-quoted price. Pure; shares the engine's validation rules.
func PotentialReturn(amount, price decimal.Decimal) (*Return, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !price.IsPositive() || price.GreaterThan(one) {
		return nil, ErrInvalidPrice
	}

	contracts := amount.Div(price)
	profit := contracts.Sub(amount)
	return &Return{
		Contracts: contracts,
		Payout:    contracts,
		Profit:    profit,
		ReturnPct: profit.Div(amount).Mul(hundred).Round(2),
	}, nil
}
