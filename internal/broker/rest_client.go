package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"vwap-options-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Interface is the order gateway consumed by the trading engine. The
// engine only ever talks to the brokerage through this narrow surface.
type Interface interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetOptionChain(ctx context.Context, symbol string) ([]OptionContract, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (string, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
}

// RestClient is a REST client for the brokerage API.
// It implements the Interface.
type RestClient struct {
	client       *resty.Client
	logger       *zap.Logger
	limiter      *rate.Limiter
	orderTimeout time.Duration
}

// ensure RestClient implements the interface
var _ Interface = (*RestClient)(nil)

// NewRestClient creates a new brokerage REST API client.
func NewRestClient(cfg *config.Broker, logger *zap.Logger) *RestClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:       client,
		logger:       logger,
		limiter:      limiter,
		orderTimeout: time.Duration(cfg.OrderTimeout) * time.Second,
	}
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			// Never blindly retry a timed-out call; the request may have
			// executed. The caller reconciles before resubmitting.
			return nil, fmt.Errorf("request timed out: %w", err)
		}

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return resp, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetQuote fetches a level-1 quote for a symbol (underlying or contract).
func (c *RestClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	var quote Quote

	req := c.client.R().
		SetResult(&quote).
		SetQueryParam("symbol", symbol)

	if _, err := c.doRequest(ctx, "GET", "/markets/quotes", req); err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	return &quote, nil
}

// chainResponse wraps the option chain payload.
type chainResponse struct {
	Contracts []OptionContract `json:"contracts"`
}

// GetOptionChain fetches the full chain snapshot for an underlying,
// covering the nearest expirations with per-strike bid/ask.
func (c *RestClient) GetOptionChain(ctx context.Context, symbol string) ([]OptionContract, error) {
	var chain chainResponse

	req := c.client.R().
		SetResult(&chain).
		SetQueryParam("symbol", symbol)

	if _, err := c.doRequest(ctx, "GET", "/markets/options/chains", req); err != nil {
		return nil, fmt.Errorf("failed to get option chain for %s: %w", symbol, err)
	}

	return chain.Contracts, nil
}

// SubmitOrder places an order and waits synchronously for its outcome.
// A missing response within the configured order timeout surfaces as
// ErrOrderTimeout; broker-side refusals map to the typed order errors.
func (c *RestClient) SubmitOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.orderTimeout)
	defer cancel()

	var result OrderResponse
	req := c.client.R().
		SetBody(order).
		SetResult(&result).
		SetError(&result)

	resp, err := c.doRequest(ctx, "POST", "/orders", req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("submit %s %s: %w", order.Action, order.OptionSymbol, ErrOrderTimeout)
		}
		if resp != nil && resp.StatusCode() == http.StatusUnprocessableEntity {
			return nil, c.refusalError(&order, &result)
		}
		return nil, fmt.Errorf("submit %s %s: %w", order.Action, order.OptionSymbol, err)
	}

	if result.Status == OrderStatusRejected || result.Status == OrderStatusCanceled {
		return nil, c.refusalError(&order, &result)
	}

	return &result, nil
}

// refusalError maps a broker refusal onto the typed order errors.
func (c *RestClient) refusalError(order *OrderRequest, result *OrderResponse) error {
	c.logger.Warn("Order refused by broker",
		zap.String("option_symbol", order.OptionSymbol),
		zap.String("action", order.Action),
		zap.String("status", result.Status),
		zap.String("reason", result.Reason))

	if result.Reason == "insufficient_liquidity" {
		return fmt.Errorf("submit %s %s: %w", order.Action, order.OptionSymbol, ErrInsufficientLiquidity)
	}
	return fmt.Errorf("submit %s %s (%s): %w", order.Action, order.OptionSymbol, result.Reason, ErrRejectedByBroker)
}

// GetOrderStatus fetches the current status of a previously placed order.
func (c *RestClient) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	var result OrderResponse

	req := c.client.R().SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", "/orders/"+orderID, req); err != nil {
		return "", fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	return result.Status, nil
}

// positionsResponse wraps the broker positions payload.
type positionsResponse struct {
	Positions []BrokerPosition `json:"positions"`
}

// GetPositions returns the broker's authoritative view of held contracts.
// Used to reconcile after an order timeout before assuming the open never
// happened.
func (c *RestClient) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	var result positionsResponse

	req := c.client.R().SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", "/positions", req); err != nil {
		return nil, fmt.Errorf("failed to get broker positions: %w", err)
	}

	return result.Positions, nil
}
