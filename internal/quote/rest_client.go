// Package quote fetches current underlying prices from a REST quote service.
package quote

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"options-anomaly-trader/internal/config"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	quotePath      = "/v7/finance/quote"
	// maxSymbols is how many symbols go into one quote request.
	maxSymbols = 50
)

// RestClientInterface defines the interface for the quote REST API client.
type RestClientInterface interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// RestClient is a client for the quote REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff time.Duration
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new quote REST API client.
func NewRestClient(cfg *config.Quote, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = defaultBaseURL
	}
	client := resty.New().
		SetBaseURL(url).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		logger:  logger.Named("quote"),
		limiter: limiter,
		backoff: time.Second,
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// Prices fetches the latest price for each symbol. Symbols the service does
// not know are missing from the result.
func (c *RestClient) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	for start := 0; start < len(symbols); start += maxSymbols {
		end := min(start+maxSymbols, len(symbols))
		batch := symbols[start:end]

		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("symbols", strings.Join(batch, ",")).
			SetResult(&quoteResponse{})

		resp, err := c.doRequest(ctx, http.MethodGet, quotePath, req)
		if err != nil {
			return prices, fmt.Errorf("failed to get quotes: %w", err)
		}

		result := resp.Result().(*quoteResponse)
		if e := result.QuoteResponse.Error; e != nil {
			return prices, fmt.Errorf("failed to get quotes: %s: %s", e.Code, e.Description)
		}
		for _, q := range result.QuoteResponse.Result {
			if q.RegularMarketPrice > 0 {
				prices[strings.ToUpper(q.Symbol)] = q.RegularMarketPrice
			}
		}
	}
	return prices, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var lastErr error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err := req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err != nil {
			// Network or other client-side errors
			shouldRetry = true
			lastErr = err
		} else {
			statusCode := resp.StatusCode()
			lastErr = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		}

		if !shouldRetry {
			return nil, lastErr
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}
