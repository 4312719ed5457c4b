package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vehicle-orders/internal/infrastructure/cache"
)

const cacheNamespace = "fx"

// RateProvider returns how many units of `to` one unit of `from` buys.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Store
	ttl        time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type Options struct {
	BaseURL           string
	Timeout           time.Duration
	CacheTTL          time.Duration
	RequestsPerSecond float64
}

func NewClient(opts Options, store cache.Store, logger *zap.Logger) *Client {
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		cache:      store,
		ttl:        opts.CacheTTL,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

type latestResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
	Error    string                     `json:"error-type"`
}

func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	key := from + ":" + to

	var cached decimal.Decimal
	err := c.cache.GetJSON(ctx, cacheNamespace, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("FX cache read failed, falling back to API", zap.String("pair", key), zap.Error(err))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("fx rate limiter: %w", err)
	}

	rates, err := c.fetch(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	value, ok := rates[to]
	if !ok || !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("fx rate %s not available", key)
	}

	if err := c.cache.SetJSON(ctx, cacheNamespace, key, value, c.ttl); err != nil {
		c.logger.Warn("FX cache write failed", zap.String("pair", key), zap.Error(err))
	}
	c.logger.Info("Fetched FX rate", zap.String("pair", key), zap.String("rate", value.String()))
	return value, nil
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/latest/%s", c.baseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fx request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fx request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx API returned status %d", resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode fx response: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("fx API error: %s", body.Error)
	}
	return body.Rates, nil
}

// Static serves fixed rates, for local runs without network access.
type Static map[string]decimal.Decimal

func (s Static) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if v, ok := s[from+":"+to]; ok {
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("fx rate %s:%s not configured", from, to)
}
