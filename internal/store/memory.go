package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/model"
)

// MemoryStore implements Store with in-memory state. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	balance     decimal.Decimal
	positions   []model.Position
	analyses    []model.Analysis
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InitPortfolio(_ context.Context, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.balance = balance
	s.initialized = true
	return nil
}

func (s *MemoryStore) Balance(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return decimal.Zero, fmt.Errorf("balance: %w", ErrNotFound)
	}
	return s.balance, nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position, newBalance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = append(s.positions, *p)
	s.balance = newBalance
	return nil
}

func (s *MemoryStore) OpenPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

func (s *MemoryStore) UpdatePositionPrices(_ context.Context, prices map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.positions {
		if price, ok := prices[s.positions[i].ID]; ok {
			s.positions[i].CurrentPrice = price
		}
	}
	return nil
}

func (s *MemoryStore) ResetPortfolio(_ context.Context, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balance = balance
	s.positions = nil
	s.initialized = true
	return nil
}

func (s *MemoryStore) InsertAnalysis(_ context.Context, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = append(s.analyses, *a)
	return nil
}

func (s *MemoryStore) ListAnalyses(_ context.Context, limit int) ([]model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	out := make([]model.Analysis, 0, len(s.analyses))
	for i := len(s.analyses) - 1; i >= 0; i-- {
		out = append(out, s.analyses[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteAnalysis(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.analyses {
		if a.ID == id {
			s.analyses = append(s.analyses[:i], s.analyses[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("analysis %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ClearAnalyses(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analyses = nil
	return nil
}
