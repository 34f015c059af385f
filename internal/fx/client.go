// Package fx proxies the national-bank middle exchange rate for the
// offer builder. The upstream is slow and occasionally down, so calls go
// through a circuit breaker with a short timeout.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mveljko/backend-cenik/internal/common"
	"github.com/mveljko/backend-cenik/internal/obs"
	"github.com/mveljko/backend-cenik/internal/resilience"
)

// Rate is the upstream middle-rate document, trimmed to what the offer
// builder needs.
type Rate struct {
	Code           string          `json:"code"`
	Date           string          `json:"date"`
	ExchangeMiddle decimal.Decimal `json:"exchange_middle"`
}

// Client fetches the current middle rate.
type Client struct {
	url    string
	client resilience.HTTPClient
}

// NewClient constructs a Client against the given rate URL.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url: url,
		client: resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     resilience.NewBreaker(4, 0.5, 30*time.Second).WithTarget("fx"),
			MaxAttempts: 2,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
	}
}

// CurrentRate returns today's middle rate. An open breaker or upstream
// failure surfaces as a 503 so the frontend can fall back to a manually
// entered rate.
func (c *Client) CurrentRate(ctx context.Context) (Rate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Rate{}, fmt.Errorf("fx: build request: %w", err)
	}
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		obs.CountFXRequest("error")
		if errors.Is(err, resilience.ErrOpenCircuit) {
			return Rate{}, unavailable("exchange rate service is cooling down", err)
		}
		return Rate{}, unavailable("exchange rate service unavailable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		obs.CountFXRequest("error")
		return Rate{}, unavailable("exchange rate service unavailable", fmt.Errorf("fx: upstream status %s", resp.Status))
	}
	var rate Rate
	if err := json.NewDecoder(resp.Body).Decode(&rate); err != nil {
		obs.CountFXRequest("error")
		return Rate{}, unavailable("exchange rate service returned malformed data", err)
	}
	if rate.ExchangeMiddle.Sign() <= 0 {
		obs.CountFXRequest("error")
		return Rate{}, unavailable("exchange rate service returned no rate", nil)
	}
	obs.CountFXRequest("ok")
	return rate, nil
}

func unavailable(message string, err error) *common.AppError {
	return common.NewAppError("UPSTREAM_UNAVAILABLE", message, http.StatusServiceUnavailable, err)
}
