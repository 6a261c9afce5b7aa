package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/polyagent/sim-engine/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS portfolio (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    balance    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id              TEXT PRIMARY KEY,
    market_id       TEXT NOT NULL,
    market_question TEXT,
    direction       TEXT NOT NULL CHECK (direction IN ('YES', 'NO')),
    amount          TEXT NOT NULL,
    entry_price     TEXT NOT NULL,
    current_price   TEXT NOT NULL,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_market  ON positions(market_id);
CREATE INDEX IF NOT EXISTS idx_positions_created ON positions(created_at);

CREATE TABLE IF NOT EXISTS analysis_log (
    id              TEXT PRIMARY KEY,
    market_id       TEXT NOT NULL,
    market_question TEXT,
    market_price    TEXT NOT NULL,
    ai_probability  TEXT NOT NULL,
    edge            TEXT NOT NULL,
    confidence      TEXT,
    reasoning       TEXT,
    key_events      TEXT,
    risks           TEXT,
    sources         TEXT,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_market_created ON analysis_log(market_id, created_at);
`

// SQLiteStore implements Store using SQLite (pure Go driver, no CGo).
// Monetary values are stored as decimal strings, never REAL, so repeated
// refreshes cannot drift.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and
// applies the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.NewSQLiteStore: open %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InitPortfolio(ctx context.Context, balance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolio (id, balance, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		balance.String(), timeString(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store.InitPortfolio: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Balance(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM portfolio WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("balance: %w", ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("store.Balance: %w", err)
	}
	return parseDecimal(raw)
}

func (s *SQLiteStore) CreatePosition(ctx context.Context, p *model.Position, newBalance decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.CreatePosition: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO positions
			(id, market_id, market_question, direction, amount, entry_price, current_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MarketID, p.MarketQuestion, string(p.Direction),
		p.Amount.String(), p.EntryPrice.String(), p.CurrentPrice.String(),
		timeString(p.CreatedAt),
	); err != nil {
		return fmt.Errorf("store.CreatePosition: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE portfolio SET balance = ?, updated_at = ? WHERE id = 1`,
		newBalance.String(), timeString(time.Now()),
	); err != nil {
		return fmt.Errorf("store.CreatePosition: debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.CreatePosition: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, market_id, market_question, direction, amount, entry_price, current_price, created_at
		 FROM positions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store.OpenPositions: query: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var direction, amount, entry, current, created string
		if err := rows.Scan(&p.ID, &p.MarketID, &p.MarketQuestion, &direction,
			&amount, &entry, &current, &created); err != nil {
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
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *SQLiteStore) UpdatePositionPrices(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.UpdatePositionPrices: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE positions SET current_price = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("store.UpdatePositionPrices: prepare: %w", err)
	}
	defer stmt.Close()

	for id, price := range prices {
		if _, err := stmt.ExecContext(ctx, price.String(), id); err != nil {
			return fmt.Errorf("store.UpdatePositionPrices: update %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.UpdatePositionPrices: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResetPortfolio(ctx context.Context, balance decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.ResetPortfolio: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("store.ResetPortfolio: delete positions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO portfolio (id, balance, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		balance.String(), timeString(time.Now()),
	); err != nil {
		return fmt.Errorf("store.ResetPortfolio: restore balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store.ResetPortfolio: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertAnalysis(ctx context.Context, a *model.Analysis) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_log
			(id, market_id, market_question, market_price, ai_probability, edge,
			 confidence, reasoning, key_events, risks, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MarketID, a.MarketQuestion,
		a.MarketPrice.String(), a.Probability.String(), a.Edge.String(),
		a.Confidence, a.Reasoning,
		jsonList(a.KeyEvents), jsonList(a.Risks), jsonList(a.Sources),
		timeString(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store.InsertAnalysis: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, market_id, market_question, market_price, ai_probability, edge,
		        confidence, reasoning, key_events, risks, sources, created_at
		 FROM analysis_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.ListAnalyses: query: %w", err)
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		var price, prob, edge, keyEvents, risks, sources, created string
		if err := rows.Scan(&a.ID, &a.MarketID, &a.MarketQuestion,
			&price, &prob, &edge,
			&a.Confidence, &a.Reasoning, &keyEvents, &risks, &sources, &created); err != nil {
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
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_log WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store.DeleteAnalysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ClearAnalyses(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analysis_log`); err != nil {
		return fmt.Errorf("store.ClearAnalyses: %w", err)
	}
	return nil
}

// --- helpers ---

func timeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: corrupt decimal %q: %w", raw, err)
	}
	return d, nil
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func parseList(raw string) []string {
	var items []string
	if json.Unmarshal([]byte(raw), &items) != nil || items == nil {
		return []string{}
	}
	return items
}
