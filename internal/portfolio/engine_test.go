package portfolio_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/portfolio"
	"github.com/polyagent/sim-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newEngine(t *testing.T, initial float64) *portfolio.Engine {
	t.Helper()
	e := portfolio.NewEngine(store.NewMemoryStore(), d(initial))
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return e
}

func TestPlaceTrade_DebitsExactStake(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	pos, newBalance, err := e.PlaceTrade(ctx, "m1", "Will it rain?", d(250), model.Yes, d(0.40))
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if !newBalance.Equal(d(99750)) {
		t.Errorf("balance = %s, want 99750", newBalance)
	}
	if !pos.EntryPrice.Equal(d(0.40)) || !pos.CurrentPrice.Equal(d(0.40)) {
		t.Errorf("entry/current = %s/%s, want 0.4/0.4", pos.EntryPrice, pos.CurrentPrice)
	}
	if !pos.PnL.IsZero() {
		t.Errorf("new position P&L = %s, want 0", pos.PnL)
	}
}

func TestPlaceTrade_Validation(t *testing.T) {
	e := newEngine(t, 1000)
	ctx := context.Background()

	cases := []struct {
		name      string
		amount    decimal.Decimal
		direction model.Direction
		price     decimal.Decimal
		wantErr   error
	}{
		{"zero amount", d(0), model.Yes, d(0.5), portfolio.ErrInvalidAmount},
		{"negative amount", d(-10), model.Yes, d(0.5), portfolio.ErrInvalidAmount},
		{"zero price", d(10), model.Yes, d(0), portfolio.ErrInvalidPrice},
		{"price above one", d(10), model.Yes, d(1.01), portfolio.ErrInvalidPrice},
		{"bad direction", d(10), model.Direction("MAYBE"), d(0.5), portfolio.ErrInvalidDirection},
		{"overdraft", d(1001), model.No, d(0.5), portfolio.ErrInsufficientFunds},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := e.PlaceTrade(ctx, "m1", "q", tc.amount, tc.direction, tc.price)
			if err != tc.wantErr {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Nothing was persisted by the rejected trades.
	port, err := e.Portfolio(ctx)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if !port.Balance.Equal(d(1000)) || len(port.Positions) != 0 {
		t.Errorf("rejections must not change state: balance=%s positions=%d", port.Balance, len(port.Positions))
	}
}

func TestPlaceTrade_FullBalanceAllowed(t *testing.T) {
	e := newEngine(t, 500)
	ctx := context.Background()

	_, newBalance, err := e.PlaceTrade(ctx, "m1", "q", d(500), model.Yes, d(0.5))
	if err != nil {
		t.Fatalf("stake equal to balance must be accepted: %v", err)
	}
	if !newBalance.IsZero() {
		t.Errorf("balance = %s, want 0", newBalance)
	}
}

func TestPnL_YesPosition(t *testing.T) {
	// 100 on YES at 0.40, price moves to 0.60: 250 contracts now worth 150.
	e := newEngine(t, 100000)
	ctx := context.Background()

	pos, _, err := e.PlaceTrade(ctx, "m1", "q", d(100), model.Yes, d(0.40))
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if !pos.Contracts().Equal(d(250)) {
		t.Errorf("contracts = %s, want 250", pos.Contracts())
	}

	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.60)}); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}

	port, err := e.Portfolio(ctx)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if !port.Positions[0].PnL.Equal(d(50)) {
		t.Errorf("PnL = %s, want 50", port.Positions[0].PnL)
	}
	if !port.TotalPnL.Equal(d(50)) {
		t.Errorf("TotalPnL = %s, want 50", port.TotalPnL)
	}
}

func TestPnL_NoPosition(t *testing.T) {
	// 100 on NO with YES at 0.70: entry is the NO price 0.30. YES dropping
	// to 0.50 moves the NO price to 0.50, a gain.
	e := newEngine(t, 100000)
	ctx := context.Background()

	pos, _, err := e.PlaceTrade(ctx, "m1", "q", d(100), model.No, d(0.30))
	if err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}

	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.50)}); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}

	port, err := e.Portfolio(ctx)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}

	// contracts = 100/0.30, value = contracts * 0.50, pnl = value - 100
	want, _ := decimal.NewFromString("66.6666666666666667")
	got := port.Positions[0].PnL
	if got.Sub(want).Abs().GreaterThan(d(0.0001)) {
		t.Errorf("PnL = %s, want ≈ %s", got, want)
	}
	if pos.Direction != model.No {
		t.Errorf("direction = %s, want NO", pos.Direction)
	}
}

func TestPnL_NoPositionDriftDown(t *testing.T) {
	// 100 on NO at 0.70: the NO mark falling to 0.50 loses about 28.57.
	e := newEngine(t, 100000)
	ctx := context.Background()

	if _, _, err := e.PlaceTrade(ctx, "m1", "q", d(100), model.No, d(0.70)); err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	// YES at 0.50 puts the NO price at 0.50.
	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.50)}); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}

	port, _ := e.Portfolio(ctx)
	got := port.Positions[0].PnL
	if got.Sub(d(-28.5714)).Abs().GreaterThan(d(0.001)) {
		t.Errorf("PnL = %s, want ≈ -28.57", got)
	}
}

func TestPnL_NoPositionLoss(t *testing.T) {
	// NO at YES=0.70 (entry 0.30), YES rises to 0.90: NO price falls to
	// 0.10 and two thirds of the stake is gone.
	e := newEngine(t, 100000)
	ctx := context.Background()

	if _, _, err := e.PlaceTrade(ctx, "m1", "q", d(90), model.No, d(0.30)); err != nil {
		t.Fatalf("PlaceTrade: %v", err)
	}
	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.90)}); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}

	port, _ := e.Portfolio(context.Background())
	if !port.Positions[0].PnL.Equal(d(-60)) {
		t.Errorf("PnL = %s, want -60", port.Positions[0].PnL)
	}
}

func TestUpdatePrices_PartialRefreshIsolation(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	if _, _, err := e.PlaceTrade(ctx, "m1", "q1", d(100), model.Yes, d(0.40)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.PlaceTrade(ctx, "m2", "q2", d(100), model.Yes, d(0.50)); err != nil {
		t.Fatal(err)
	}

	// Only m1 appears in the refresh; m2 keeps its last known price.
	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.45)}); err != nil {
		t.Fatalf("UpdatePrices: %v", err)
	}

	port, _ := e.Portfolio(ctx)
	for _, p := range port.Positions {
		switch p.MarketID {
		case "m1":
			if !p.CurrentPrice.Equal(d(0.45)) {
				t.Errorf("m1 price = %s, want 0.45", p.CurrentPrice)
			}
		case "m2":
			if !p.CurrentPrice.Equal(d(0.50)) {
				t.Errorf("m2 price = %s, want unchanged 0.50", p.CurrentPrice)
			}
		}
	}
}

func TestUpdatePrices_NoSideConversion(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	if _, _, err := e.PlaceTrade(ctx, "m1", "q", d(100), model.No, d(0.30)); err != nil {
		t.Fatal(err)
	}

	// Refresh quotes YES at 0.25; the NO position must mark at 0.75.
	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"m1": d(0.25)}); err != nil {
		t.Fatal(err)
	}

	port, _ := e.Portfolio(ctx)
	if !port.Positions[0].CurrentPrice.Equal(d(0.75)) {
		t.Errorf("NO mark = %s, want 0.75", port.Positions[0].CurrentPrice)
	}
}

func TestReset_RestoresInitialState(t *testing.T) {
	e := newEngine(t, 100000)
	ctx := context.Background()

	if _, _, err := e.PlaceTrade(ctx, "m1", "q", d(5000), model.Yes, d(0.5)); err != nil {
		t.Fatal(err)
	}

	port, err := e.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !port.Balance.Equal(d(100000)) {
		t.Errorf("balance = %s, want 100000", port.Balance)
	}
	if len(port.Positions) != 0 {
		t.Errorf("positions = %d, want 0", len(port.Positions))
	}

	// Idempotent.
	port, err = e.Reset(ctx)
	if err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if !port.Balance.Equal(d(100000)) || len(port.Positions) != 0 {
		t.Errorf("reset is not idempotent: balance=%s positions=%d", port.Balance, len(port.Positions))
	}
}

func TestPlaceTrade_ConcurrentNeverOverdraws(t *testing.T) {
	// 20 goroutines race to stake 100 each from a balance of 1000. Exactly
	// 10 can succeed; the balance must never go negative.
	e := newEngine(t, 1000)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.PlaceTrade(ctx, "m1", "q", d(100), model.Yes, d(0.5))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if err != portfolio.ErrInsufficientFunds {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("succeeded = %d, want 10", succeeded)
	}

	port, _ := e.Portfolio(ctx)
	if !port.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", port.Balance)
	}
	if len(port.Positions) != 10 {
		t.Errorf("positions = %d, want 10", len(port.Positions))
	}
}

func TestBalanceConservation(t *testing.T) {
	// balance + sum(amounts staked) stays equal to the initial balance no
	// matter how prices move.
	e := newEngine(t, 10000)
	ctx := context.Background()

	stakes := []float64{123.45, 678.9, 0.01, 2500}
	for i, amt := range stakes {
		id := string(rune('a' + i))
		if _, _, err := e.PlaceTrade(ctx, id, "q", d(amt), model.Yes, d(0.5)); err != nil {
			t.Fatalf("trade %d: %v", i, err)
		}
	}

	if err := e.UpdatePrices(ctx, map[string]decimal.Decimal{"a": d(0.9), "b": d(0.1)}); err != nil {
		t.Fatal(err)
	}

	port, _ := e.Portfolio(ctx)
	staked := decimal.Zero
	for _, p := range port.Positions {
		staked = staked.Add(p.Amount)
	}
	if !port.Balance.Add(staked).Equal(d(10000)) {
		t.Errorf("balance %s + staked %s != 10000", port.Balance, staked)
	}
}
