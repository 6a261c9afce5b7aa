package sim

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polyagent/sim-engine/internal/metrics"
	"github.com/polyagent/sim-engine/internal/model"
)

// AnalyzeRequest is the JSON body for POST /analyze. The caller supplies
// the market snapshot it is looking at, so the analysis matches what is on
// screen rather than a possibly fresher upstream state.
type AnalyzeRequest struct {
	MarketID      string          `json:"market_id"`
	Question      string          `json:"question"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Description   string          `json:"description,omitempty"`
	EndDate       string          `json:"end_date,omitempty"`
	OneDayChange  decimal.Decimal `json:"one_day_change,omitempty"`
	OneWeekChange decimal.Decimal `json:"one_week_change,omitempty"`
	Volume24h     float64         `json:"volume_24h,omitempty"`
}

// AnalysisResponse is the JSON body returned from POST /analyze.
type AnalysisResponse struct {
	EstimatedProbability decimal.Decimal `json:"estimated_probability"`
	Confidence           string          `json:"confidence"`
	Reasoning            string          `json:"reasoning"`
	KeyEvents            []string        `json:"key_events"`
	Risks                []string        `json:"risks"`
	Sources              []string        `json:"sources"`
	Edge                 decimal.Decimal `json:"edge"`
}

// Analyze handles POST /analyze
// Runs the AI probability estimate and logs the result.
func (s *Service) Analyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, "analysis is disabled: no API key configured", http.StatusServiceUnavailable)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.CurrentPrice.IsNegative() || req.CurrentPrice.GreaterThan(decimal.NewFromInt(1)) {
		writeError(w, "current_price must be in [0, 1]", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	m := model.Market{
		ID:            req.MarketID,
		Question:      req.Question,
		Description:   req.Description,
		YesPrice:      req.CurrentPrice,
		EndDate:       req.EndDate,
		OneDayChange:  req.OneDayChange,
		OneWeekChange: req.OneWeekChange,
		Volume24h:     req.Volume24h,
	}

	// Portfolio context is optional input to the prompt.
	port, err := s.engine.Portfolio(ctx)
	if err != nil {
		port = nil
	}

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, m, port)
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("error").Inc()
		writeDomainError(w, err)
		return
	}
	metrics.AnalysesTotal.WithLabelValues("ok").Inc()

	edge := result.Probability.Sub(req.CurrentPrice)

	record := &model.Analysis{
		ID:             uuid.New().String(),
		MarketID:       req.MarketID,
		MarketQuestion: req.Question,
		MarketPrice:    req.CurrentPrice,
		Probability:    result.Probability,
		Edge:           edge,
		Confidence:     result.Confidence,
		Reasoning:      result.Reasoning,
		KeyEvents:      result.KeyEvents,
		Risks:          result.Risks,
		Sources:        result.Sources,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.InsertAnalysis(ctx, record); err != nil {
		// The caller still gets the analysis; only the log entry is lost.
		s.log.Warn("analysis not logged", "market_id", req.MarketID, "err", err)
	}

	writeJSON(w, http.StatusOK, AnalysisResponse{
		EstimatedProbability: result.Probability,
		Confidence:           result.Confidence,
		Reasoning:            result.Reasoning,
		KeyEvents:            result.KeyEvents,
		Risks:                result.Risks,
		Sources:              result.Sources,
		Edge:                 edge,
	})
}

// AnalysisHistory handles GET /analysis-history
func (s *Service) AnalysisHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	analyses, err := s.store.ListAnalyses(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if analyses == nil {
		analyses = []model.Analysis{}
	}

	writeJSON(w, http.StatusOK, analyses)
}

// DeleteAnalysis handles DELETE /analysis-history/{analysisID}
func (s *Service) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")

	if err := s.store.DeleteAnalysis(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearAnalyses handles DELETE /analysis-history
func (s *Service) ClearAnalyses(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearAnalyses(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
