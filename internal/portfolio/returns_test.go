package portfolio_test

import (
	"testing"

	"github.com/polyagent/sim-engine/internal/portfolio"
)

func TestPotentialReturn(t *testing.T) {
	ret, err := portfolio.PotentialReturn(d(100), d(0.40))
	if err != nil {
		t.Fatalf("PotentialReturn: %v", err)
	}

	if !ret.Contracts.Equal(d(250)) {
		t.Errorf("contracts = %s, want 250", ret.Contracts)
	}
	if !ret.Payout.Equal(d(250)) {
		t.Errorf("payout = %s, want 250", ret.Payout)
	}
	if !ret.Profit.Equal(d(150)) {
		t.Errorf("profit = %s, want 150", ret.Profit)
	}
	if !ret.ReturnPct.Equal(d(150)) {
		t.Errorf("return pct = %s, want 150", ret.ReturnPct)
	}
}

func TestPotentialReturn_AtPriceOne(t *testing.T) {
	// A sure thing pays out exactly the stake.
	ret, err := portfolio.PotentialReturn(d(100), d(1))
	if err != nil {
		t.Fatalf("PotentialReturn: %v", err)
	}
	if !ret.Profit.IsZero() || !ret.ReturnPct.IsZero() {
		t.Errorf("profit = %s, pct = %s, want both 0", ret.Profit, ret.ReturnPct)
	}
}

func TestPotentialReturn_Validation(t *testing.T) {
	if _, err := portfolio.PotentialReturn(d(0), d(0.5)); err != portfolio.ErrInvalidAmount {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := portfolio.PotentialReturn(d(100), d(0)); err != portfolio.ErrInvalidPrice {
		t.Errorf("zero price: err = %v, want ErrInvalidPrice", err)
	}
	if _, err := portfolio.PotentialReturn(d(100), d(1.5)); err != portfolio.ErrInvalidPrice {
		t.Errorf("price > 1: err = %v, want ErrInvalidPrice", err)
	}
}
