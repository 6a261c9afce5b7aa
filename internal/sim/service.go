// Package sim provides the HTTP surface of the simulator: market browsing,
// AI analysis, paper trading, and portfolio inspection.
package sim

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/polyagent/sim-engine/internal/analysis"
	"github.com/polyagent/sim-engine/internal/markets"
	"github.com/polyagent/sim-engine/internal/portfolio"
	"github.com/polyagent/sim-engine/internal/store"
	"github.com/polyagent/sim-engine/internal/upstream"
)

// Service wires the portfolio engine, the market-data provider, and the
// analyzer behind HTTP handlers. The engine owns all money state; handlers
// never touch the store's portfolio tables directly.
type Service struct {
	engine   *portfolio.Engine
	markets  markets.Provider
	analyzer analysis.Analyzer // nil when no API key is configured
	store    store.Store
	log      *slog.Logger
}

// NewService creates the HTTP service. analyzer may be nil; the analyze
// endpoint then reports that analysis is disabled.
func NewService(engine *portfolio.Engine, provider markets.Provider, analyzer analysis.Analyzer, st store.Store, log *slog.Logger) *Service {
	return &Service{
		engine:   engine,
		markets:  provider,
		analyzer: analyzer,
		store:    st,
		log:      log,
	}
}

// Health handles GET /health.
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"app":    "polyagent-sim",
	})
}

// --- helpers ---

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps domain errors onto HTTP statuses: validation
// failures and overdrafts are client errors, upstream trouble is a bad
// gateway, rate limiting passes through as 429.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrInvalidAmount),
		errors.Is(err, portfolio.ErrInvalidPrice),
		errors.Is(err, portfolio.ErrInvalidDirection),
		errors.Is(err, portfolio.ErrInsufficientFunds):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, markets.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, upstream.ErrRateLimited):
		writeError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, upstream.ErrAuth), errors.Is(err, upstream.ErrUnavailable):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
