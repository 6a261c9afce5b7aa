package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/markets"
	"github.com/polyagent/sim-engine/internal/metrics"
	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/portfolio"
)

// --- Request/Response types ---

// SimulateTradeRequest is the JSON body for POST /simulate-trade. Price is
// quoted on the chosen side: a NO trade at 0.30 costs 0.30 per contract.
type SimulateTradeRequest struct {
	MarketID       string          `json:"market_id"`
	MarketQuestion string          `json:"market_question"`
	Direction      model.Direction `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	Price          decimal.Decimal `json:"price"`
}

// TradeResponse is the JSON body returned from POST /simulate-trade.
type TradeResponse struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Trade      *model.Position `json:"trade"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// CalculateReturnRequest is the JSON body for POST /calculate-return.
type CalculateReturnRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// --- Market data handlers ---

// ListMarkets handles GET /markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 30)

	ms, err := s.markets.ActiveMarkets(r.Context(), limit)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("active_markets", "error").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.UpstreamRequests.WithLabelValues("active_markets", "ok").Inc()

	writeJSON(w, http.StatusOK, ms)
}

// SearchMarkets handles GET /markets/search?q=<query>
func (s *Service) SearchMarkets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}
	limit := queryInt(r, "limit", 20)

	ms, err := s.markets.Search(r.Context(), query, limit)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("search", "error").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.UpstreamRequests.WithLabelValues("search", "ok").Inc()

	writeJSON(w, http.StatusOK, ms)
}

// TopOpportunities handles GET /markets/top
// Scores a wide slice of active markets and returns the highest ranked.
func (s *Service) TopOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	ms, err := s.markets.ActiveMarkets(r.Context(), 100)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("top_opportunities", "error").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.UpstreamRequests.WithLabelValues("top_opportunities", "ok").Inc()

	writeJSON(w, http.StatusOK, markets.Rank(ms, limit))
}

// --- Portfolio handlers ---

// SimulateTrade handles POST /simulate-trade
func (s *Service) SimulateTrade(w http.ResponseWriter, r *http.Request) {
	var req SimulateTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MarketID == "" {
		writeError(w, "market_id is required", http.StatusBadRequest)
		return
	}

	position, newBalance, err := s.engine.PlaceTrade(
		r.Context(), req.MarketID, req.MarketQuestion, req.Amount, req.Direction, req.Price)
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeDomainError(w, err)
		return
	}

	metrics.TradesTotal.WithLabelValues(string(req.Direction)).Inc()
	metrics.PortfolioBalance.Set(newBalance.InexactFloat64())

	s.log.Info("trade simulated",
		"trade_id", position.ID,
		"market_id", req.MarketID,
		"direction", req.Direction,
		"amount", req.Amount.String(),
		"price", req.Price.String(),
		"new_balance", newBalance.String(),
	)

	writeJSON(w, http.StatusOK, TradeResponse{
		Success:    true,
		Message:    fmt.Sprintf("Placed $%s on %s", req.Amount.StringFixed(2), req.Direction),
		Trade:      position,
		NewBalance: newBalance,
	})
}

// GetPortfolio handles GET /portfolio
// Refreshes position marks from live prices first; a failed refresh is
// logged and the last known prices are served.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.refreshPrices(ctx)

	port, err := s.engine.Portfolio(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.PortfolioBalance.Set(port.Balance.InexactFloat64())

	writeJSON(w, http.StatusOK, port)
}

// ResetPortfolio handles POST /reset-portfolio
func (s *Service) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	port, err := s.engine.Reset(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.PortfolioBalance.Set(port.Balance.InexactFloat64())

	s.log.Info("portfolio reset", "balance", port.Balance.String())

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"balance": port.Balance,
	})
}

// CalculateReturn handles POST /calculate-return
func (s *Service) CalculateReturn(w http.ResponseWriter, r *http.Request) {
	var req CalculateReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ret, err := portfolio.PotentialReturn(req.Amount, req.Price)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ret)
}

// refreshPrices marks open positions to live prices. Best effort: any
// failure leaves the stored marks in place.
func (s *Service) refreshPrices(ctx context.Context) {
	port, err := s.engine.Portfolio(ctx)
	if err != nil || len(port.Positions) == 0 {
		return
	}

	seen := make(map[string]bool, len(port.Positions))
	ids := make([]string, 0, len(port.Positions))
	for _, p := range port.Positions {
		if !seen[p.MarketID] {
			seen[p.MarketID] = true
			ids = append(ids, p.MarketID)
		}
	}

	prices, err := s.markets.Prices(ctx, ids)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("prices", "error").Inc()
		s.log.Warn("price refresh failed, serving stored marks", "err", err)
		return
	}
	metrics.UpstreamRequests.WithLabelValues("prices", "ok").Inc()

	if err := s.engine.UpdatePrices(ctx, prices); err != nil {
		s.log.Warn("price refresh not applied", "err", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case err == portfolio.ErrInvalidAmount:
		return "invalid_amount"
	case err == portfolio.ErrInvalidPrice:
		return "invalid_price"
	case err == portfolio.ErrInvalidDirection:
		return "invalid_direction"
	case err == portfolio.ErrInsufficientFunds:
		return "insufficient_funds"
	default:
		return "other"
	}
}
