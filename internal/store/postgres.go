package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS portfolio (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    balance    NUMERIC NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id              TEXT PRIMARY KEY,
    market_id       TEXT NOT NULL,
    market_question TEXT,
    direction       TEXT NOT NULL CHECK (direction IN ('YES', 'NO')),
    amount          NUMERIC NOT NULL,
    entry_price     NUMERIC NOT NULL,
    current_price   NUMERIC NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_market  ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_positions_created ON positions(created_at);

CREATE TABLE IF NOT EXISTS analysis_log (
    id              TEXT PRIMARY KEY,
    market_id       TEXT NOT NULL,
    market_question TEXT,
    market_price    NUMERIC NOT NULL,
    ai_probability  NUMERIC NOT NULL,
    edge            NUMERIC NOT NULL,
    confidence      TEXT,
    reasoning       TEXT,
    key_events      JSONB,
    risks           JSONB,
    sources         JSONB,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_market_created ON analysis_log(market_id, created_at);
`

// PostgresStore implements Store using PostgreSQL. Monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store and applies the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("store.NewPostgresStore: apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) InitPortfolio(ctx context.Context, balance decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolio (id, balance, updated_at) VALUES (1, $1::NUMERIC, $2)
		 ON CONFLICT (id) DO NOTHING`,
		balance.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.InitPortfolio: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `SELECT balance::TEXT FROM portfolio WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("balance: %w", ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("store.Balance: %w", err)
	}
	return parseDecimal(raw)
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position, newBalance decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.CreatePosition: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO positions
			(id, market_id, market_question, direction, amount, entry_price, current_price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		p.ID, p.MarketID, p.MarketQuestion, string(p.Direction),
		p.Amount.String(), p.EntryPrice.String(), p.CurrentPrice.String(),
		p.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("store.CreatePosition: insert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE portfolio SET balance = $1::NUMERIC, updated_at = $2 WHERE id = 1`,
		newBalance.String(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("store.CreatePosition: debit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store.CreatePosition: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, market_question, direction,
		        amount::TEXT, entry_price::TEXT, current_price::TEXT, created_at
		 FROM positions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var direction, amount, entry, current string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.MarketQuestion, &direction,
			&amount, &entry, &current, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.OpenPositions: scan: %w", err)
		}
		p.Direction = model.Direction(direction)
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if p.EntryPrice, err = parseDecimal(entry); err != nil {
			return nil, err
		}
		if p.CurrentPrice, err = parseDecimal(current); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) UpdatePositionPrices(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.UpdatePositionPrices: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for id, price := range prices {
		if _, err := tx.Exec(ctx,
			`UPDATE positions SET current_price = $1::NUMERIC WHERE id = $2`,
			price.String(), id,
		); err != nil {
			return fmt.Errorf("store.UpdatePositionPrices: update %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store.UpdatePositionPrices: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetPortfolio(ctx context.Context, balance decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.ResetPortfolio: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("store.ResetPortfolio: delete positions: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO portfolio (id, balance, updated_at) VALUES (1, $1::NUMERIC, $2)
		 ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		balance.String(), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("store.ResetPortfolio: restore balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store.ResetPortfolio: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertAnalysis(ctx context.Context, a *model.Analysis) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_log
			(id, market_id, market_question, market_price, ai_probability, edge,
			 confidence, reasoning, key_events, risks, sources, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9::JSONB, $10::JSONB, $11::JSONB, $12)`,
		a.ID, a.MarketID, a.MarketQuestion,
		a.MarketPrice.String(), a.Probability.String(), a.Edge.String(),
		a.Confidence, a.Reasoning,
		jsonList(a.KeyEvents), jsonList(a.Risks), jsonList(a.Sources),
		a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store.InsertAnalysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, market_question,
		        market_price::TEXT, ai_probability::TEXT, edge::TEXT,
		        confidence, reasoning, key_events::TEXT, risks::TEXT, sources::TEXT, created_at
		 FROM analysis_log ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListAnalyses: query: %w", err)
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		var price, prob, edge, keyEvents, risks, sources string
		if err := rows.Scan(&a.ID, &a.MarketID, &a.MarketQuestion,
			&price, &prob, &edge,
			&a.Confidence, &a.Reasoning, &keyEvents, &risks, &sources, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.ListAnalyses: scan: %w", err)
		}
		if a.MarketPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if a.Probability, err = parseDecimal(prob); err != nil {
			return nil, err
		}
		if a.Edge, err = parseDecimal(edge); err != nil {
			return nil, err
		}
		a.KeyEvents = parseList(keyEvents)
		a.Risks = parseList(risks)
		a.Sources = parseList(sources)
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM analysis_log WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store.DeleteAnalysis: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ClearAnalyses(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM analysis_log`); err != nil {
		return fmt.Errorf("store.ClearAnalyses: %w", err)
	}
	return nil
}
