// Package portfolio implements the virtual portfolio engine: the single
// authoritative owner of the simulated cash balance and the set of open
// positions. No other component mutates money state.
//
// All monetary values use shopspring/decimal, never float64.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/store"
)

var (
	// ErrInvalidAmount is returned when the stake is zero or negative.
	ErrInvalidAmount = errors.New("portfolio: amount must be positive")

	// ErrInvalidPrice is returned when the entry price is outside (0, 1].
	ErrInvalidPrice = errors.New("portfolio: price must be in (0, 1]")

	// ErrInvalidDirection is returned for any direction other than YES or NO.
	ErrInvalidDirection = errors.New("portfolio: direction must be YES or NO")

	// ErrInsufficientFunds is returned when the stake exceeds the balance.
	ErrInsufficientFunds = errors.New("portfolio: amount exceeds available balance")
)

var one = decimal.NewFromInt(1)

// Engine owns the portfolio state. A mutex serializes the mutating
// operations so two concurrent trades cannot both pass the balance check
// before either debits, the classic check-then-act race.
type Engine struct {
	store          store.Store
	initialBalance decimal.Decimal
	mu             sync.Mutex
}

// NewEngine creates an engine backed by the given store.
func NewEngine(st store.Store, initialBalance decimal.Decimal) *Engine {
	return &Engine{
		store:          st,
		initialBalance: initialBalance,
	}
}

// Init creates the portfolio with the configured starting balance if it
// does not exist yet. Called once at startup; idempotent.
func (e *Engine) Init(ctx context.Context) error {
	return e.store.InitPortfolio(ctx, e.initialBalance)
}

// InitialBalance returns the configured starting balance.
func (e *Engine) InitialBalance() decimal.Decimal {
	return e.initialBalance
}

// Portfolio returns the current balance, open positions with their
// mark-to-market P&L, and the aggregate P&L. Read-only.
func (e *Engine) Portfolio(ctx context.Context) (*model.Portfolio, error) {
	balance, err := e.store.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: load balance: %w", err)
	}
	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: load positions: %w", err)
	}
	if positions == nil {
		positions = []model.Position{}
	}

	totalPnL := decimal.Zero
	for i := range positions {
		positions[i].PnL = positions[i].UnrealizedPnL()
		totalPnL = totalPnL.Add(positions[i].PnL)
	}

	return &model.Portfolio{
		Balance:   balance,
		Positions: positions,
		TotalPnL:  totalPnL,
	}, nil
}

// PlaceTrade validates and executes a paper trade: debits the balance by
// exactly the staked amount and opens a position at the given side-quoted
// price. The current price starts equal to the entry price until the next
// refresh. Returns the created position and the new balance.
func (e *Engine) PlaceTrade(ctx context.Context, marketID, question string, amount decimal.Decimal, direction model.Direction, price decimal.Decimal) (*model.Position, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	if !price.IsPositive() || price.GreaterThan(one) {
		return nil, decimal.Zero, ErrInvalidPrice
	}
	if !direction.Valid() {
		return nil, decimal.Zero, ErrInvalidDirection
	}

	// Serialize the balance-check-and-debit sequence.
	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.store.Balance(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("portfolio: load balance: %w", err)
	}
	if amount.GreaterThan(balance) {
		return nil, decimal.Zero, ErrInsufficientFunds
	}

	position := &model.Position{
		ID:             uuid.New().String(),
		MarketID:       marketID,
		MarketQuestion: question,
		Direction:      direction,
		Amount:         amount,
		EntryPrice:     price,
		CurrentPrice:   price,
		CreatedAt:      time.Now().UTC(),
	}

	newBalance := balance.Sub(amount)
	if err := e.store.CreatePosition(ctx, position, newBalance); err != nil {
		return nil, decimal.Zero, fmt.Errorf("portfolio: persist trade: %w", err)
	}

	position.PnL = decimal.Zero
	return position, newBalance, nil
}

// UpdatePrices marks every open position whose market appears in the
// YES-quoted price lookup. NO positions mark against the complementary
// price. Markets absent from the lookup keep their last known price. The
// batch applies all-or-nothing, so a reader never sees a half-refreshed
// portfolio.
func (e *Engine) UpdatePrices(ctx context.Context, yesPrices map[string]decimal.Decimal) error {
	if len(yesPrices) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: load positions: %w", err)
	}

	updates := make(map[string]decimal.Decimal)
	for _, p := range positions {
		yes, ok := yesPrices[p.MarketID]
		if !ok {
			continue
		}
		updates[p.ID] = p.Direction.SidePrice(yes)
	}

	if err := e.store.UpdatePositionPrices(ctx, updates); err != nil {
		return fmt.Errorf("portfolio: apply price refresh: %w", err)
	}
	return nil
}

// Reset discards all positions and restores the configured starting
// balance. Irreversible; idempotent. Confirmation belongs to the caller.
func (e *Engine) Reset(ctx context.Context) (*model.Portfolio, error) {
	e.mu.Lock()
	if err := e.store.ResetPortfolio(ctx, e.initialBalance); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("portfolio: reset: %w", err)
	}
	e.mu.Unlock()

	return e.Portfolio(ctx)
}
