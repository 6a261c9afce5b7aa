package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makePosition(id, marketID string, direction model.Direction) *model.Position {
	return &model.Position{
		ID:             id,
		MarketID:       marketID,
		MarketQuestion: "Will X happen?",
		Direction:      direction,
		Amount:         d(100),
		EntryPrice:     d(0.40),
		CurrentPrice:   d(0.40),
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func makeAnalysis(id string, createdAt time.Time) *model.Analysis {
	return &model.Analysis{
		ID:             id,
		MarketID:       "m1",
		MarketQuestion: "Will X happen?",
		MarketPrice:    d(0.40),
		Probability:    d(0.55),
		Edge:           d(0.15),
		Confidence:     "medium",
		Reasoning:      "because",
		KeyEvents:      []string{"event"},
		Risks:          []string{"risk"},
		Sources:        []string{"https://example.com"},
		CreatedAt:      createdAt,
	}
}

func TestSQLite_InitPortfolioIdempotent(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.InitPortfolio(ctx, d(100000)))
	// A second init with another balance must not overwrite.
	require.NoError(t, db.InitPortfolio(ctx, d(5)))

	balance, err := db.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(100000)), "balance = %s", balance)
}

func TestSQLite_BalanceBeforeInit(t *testing.T) {
	db := newSQLite(t)

	_, err := db.Balance(context.Background())
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSQLite_CreatePositionDebitsAtomically(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.InitPortfolio(ctx, d(1000)))

	p := makePosition("p1", "m1", model.Yes)
	require.NoError(t, db.CreatePosition(ctx, p, d(900)))

	balance, err := db.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(900)))

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "p1", positions[0].ID)
	assert.Equal(t, model.Yes, positions[0].Direction)
	assert.True(t, positions[0].Amount.Equal(d(100)))
	assert.True(t, positions[0].EntryPrice.Equal(d(0.40)))
	assert.Equal(t, p.CreatedAt.UTC(), positions[0].CreatedAt.UTC())
}

func TestSQLite_OpenPositionsOldestFirst(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.InitPortfolio(ctx, d(1000)))

	first := makePosition("p1", "m1", model.Yes)
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	second := makePosition("p2", "m2", model.No)

	require.NoError(t, db.CreatePosition(ctx, second, d(900)))
	require.NoError(t, db.CreatePosition(ctx, first, d(800)))

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "p1", positions[0].ID)
	assert.Equal(t, "p2", positions[1].ID)
}

func TestSQLite_UpdatePositionPrices(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.InitPortfolio(ctx, d(1000)))
	require.NoError(t, db.CreatePosition(ctx, makePosition("p1", "m1", model.Yes), d(900)))
	require.NoError(t, db.CreatePosition(ctx, makePosition("p2", "m2", model.No), d(800)))

	err := db.UpdatePositionPrices(ctx, map[string]decimal.Decimal{
		"p1": d(0.55),
	})
	require.NoError(t, err)

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	for _, p := range positions {
		switch p.ID {
		case "p1":
			assert.True(t, p.CurrentPrice.Equal(d(0.55)), "p1 = %s", p.CurrentPrice)
		case "p2":
			assert.True(t, p.CurrentPrice.Equal(d(0.40)), "p2 = %s", p.CurrentPrice)
		}
	}

	// Empty batch is a no-op.
	assert.NoError(t, db.UpdatePositionPrices(ctx, nil))
}

func TestSQLite_ResetPortfolio(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.InitPortfolio(ctx, d(1000)))
	require.NoError(t, db.CreatePosition(ctx, makePosition("p1", "m1", model.Yes), d(900)))

	require.NoError(t, db.ResetPortfolio(ctx, d(1000)))

	balance, err := db.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(1000)))

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSQLite_DecimalRoundTripExact(t *testing.T) {
	// TEXT storage must preserve decimals that float64 cannot.
	db := newSQLite(t)
	ctx := context.Background()
	require.NoError(t, db.InitPortfolio(ctx, d(1000)))

	p := makePosition("p1", "m1", model.Yes)
	p.Amount, _ = decimal.NewFromString("0.1")
	p.EntryPrice, _ = decimal.NewFromString("0.3")
	p.CurrentPrice, _ = decimal.NewFromString("0.30000000000000004")
	require.NoError(t, db.CreatePosition(ctx, p, d(999.9)))

	positions, err := db.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.1", positions[0].Amount.String())
	assert.Equal(t, "0.3", positions[0].EntryPrice.String())
	assert.Equal(t, "0.30000000000000004", positions[0].CurrentPrice.String())
}

func TestSQLite_AnalysisLog(t *testing.T) {
	db := newSQLite(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.InsertAnalysis(ctx, makeAnalysis("a1", now.Add(-2*time.Minute))))
	require.NoError(t, db.InsertAnalysis(ctx, makeAnalysis("a2", now.Add(-time.Minute))))
	require.NoError(t, db.InsertAnalysis(ctx, makeAnalysis("a3", now)))

	// Newest first, limit respected.
	analyses, err := db.ListAnalyses(ctx, 2)
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "a3", analyses[0].ID)
	assert.Equal(t, "a2", analyses[1].ID)
	assert.Equal(t, []string{"event"}, analyses[0].KeyEvents)
	assert.Equal(t, []string{"https://example.com"}, analyses[0].Sources)

	require.NoError(t, db.DeleteAnalysis(ctx, "a2"))
	err = db.DeleteAnalysis(ctx, "a2")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, db.ClearAnalyses(ctx))
	analyses, err = db.ListAnalyses(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, analyses)
}
