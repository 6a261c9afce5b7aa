// Package markets fetches market data from the Polymarket Gamma API and
// ranks markets by trading opportunity. It is the only component that talks
// to Gamma; everything downstream works with model.Market.
package markets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/polyagent/sim-engine/internal/model"
	"github.com/polyagent/sim-engine/internal/upstream"
)

// ErrNotFound is returned when a market ID does not resolve upstream.
var ErrNotFound = errors.New("markets: market not found")

// Provider is the read-only market-data surface the rest of the simulator
// depends on. *Client implements it against Gamma; tests substitute stubs.
type Provider interface {
	// ActiveMarkets returns open markets ordered by 24h volume.
	ActiveMarkets(ctx context.Context, limit int) ([]model.Market, error)

	// Search returns open markets matching a free-text query.
	Search(ctx context.Context, query string, limit int) ([]model.Market, error)

	// MarketByID resolves a single market by condition ID.
	MarketByID(ctx context.Context, id string) (*model.Market, error)

	// Prices returns the current YES price for each requested market.
	// Markets that cannot be resolved are absent from the result.
	Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

const (
	defaultLimit = 50
	maxRetries   = 3

	// Gamma rejects overly long condition_ids lists.
	priceBatchSize = 20
)

// Client is a rate-limited Gamma API client with retry on transient
// failures.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewClient creates a Gamma client. baseURL has no trailing slash, e.g.
// "https://gamma-api.polymarket.com".
func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     log,
	}
}

func (c *Client) ActiveMarkets(ctx context.Context, limit int) ([]model.Market, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("order", "volume24hr")
	q.Set("ascending", "false")
	q.Set("limit", strconv.Itoa(limit))

	var events []gammaEvent
	if err := c.getJSON(ctx, "/events", q, &events); err != nil {
		return nil, err
	}

	markets := flatten(events)
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.Market, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit_per_type", strconv.Itoa(limit))
	q.Set("events_status", "active")

	var resp searchResponse
	if err := c.getJSON(ctx, "/public-search", q, &resp); err != nil {
		return nil, err
	}

	markets := flatten(resp.Events)
	if len(markets) > limit {
		markets = markets[:limit]
	}
	return markets, nil
}

func (c *Client) MarketByID(ctx context.Context, id string) (*model.Market, error) {
	raw, err := c.marketsByConditionIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m := toModel(gammaEvent{}, raw[0])
	return &m, nil
}

func (c *Client) Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(ids))
	for start := 0; start < len(ids); start += priceBatchSize {
		end := start + priceBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		raw, err := c.marketsByConditionIDs(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, m := range raw {
			prices[m.marketID()] = yesPrice(m)
		}
	}
	return prices, nil
}

func (c *Client) marketsByConditionIDs(ctx context.Context, ids []string) ([]gammaMarket, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("condition_ids", id)
	}

	var raw []gammaMarket
	if err := c.getJSON(ctx, "/markets", q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// getJSON performs one rate-limited GET with retries on transient failures.
// Status codes map onto the upstream error taxonomy so handlers can pick
// response codes without knowing about HTTP clients.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			c.log.Warn("gamma request retry",
				"path", path, "attempt", attempt, "backoff", backoff, "err", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("markets: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(v)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("%w: decode %s: %v", upstream.ErrUnavailable, path, err)
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("%w: gamma returned %d", upstream.ErrAuth, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: gamma returned 429", upstream.ErrRateLimited)
			continue
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: gamma returned %d", upstream.ErrUnavailable, resp.StatusCode)
			continue
		default:
			resp.Body.Close()
			return fmt.Errorf("%w: gamma returned %d", upstream.ErrUnavailable, resp.StatusCode)
		}
	}
	return lastErr
}
