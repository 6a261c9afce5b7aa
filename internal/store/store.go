// Package store defines the persistence interface for the simulator.
// Implementations include SQLite (default), PostgreSQL, and in-memory
// (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. The portfolio is a singleton row;
// positions and analysis records hang off it.
//
// CreatePosition, ResetPortfolio, and UpdatePositionPrices must each apply
// atomically: a reader never observes a debited balance without its position,
// or a half-refreshed batch of prices.
type Store interface {
	// --- Portfolio ---

	// InitPortfolio creates the singleton portfolio row with the given
	// balance if it does not exist yet. Idempotent.
	InitPortfolio(ctx context.Context, balance decimal.Decimal) error

	// Balance returns the current cash balance.
	Balance(ctx context.Context) (decimal.Decimal, error)

	// CreatePosition persists a new position and the post-debit balance in
	// one transaction.
	CreatePosition(ctx context.Context, p *model.Position, newBalance decimal.Decimal) error

	// OpenPositions returns all open positions, oldest first.
	OpenPositions(ctx context.Context) ([]model.Position, error)

	// UpdatePositionPrices sets current_price for each position ID in the
	// map, all-or-nothing. Positions absent from the map are untouched.
	UpdatePositionPrices(ctx context.Context, prices map[string]decimal.Decimal) error

	// ResetPortfolio restores the balance and deletes all positions in one
	// transaction.
	ResetPortfolio(ctx context.Context, balance decimal.Decimal) error

	// --- Analysis history (optional side store) ---

	// InsertAnalysis appends an immutable analysis record.
	InsertAnalysis(ctx context.Context, a *model.Analysis) error

	// ListAnalyses returns the most recent analysis records, newest first.
	ListAnalyses(ctx context.Context, limit int) ([]model.Analysis, error)

	// DeleteAnalysis removes one record by ID.
	DeleteAnalysis(ctx context.Context, id string) error

	// ClearAnalyses removes all records.
	ClearAnalyses(ctx context.Context) error
}
