package marketmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// tickerPriceFetcher implements PriceFetcher over a Binance-compatible
// public ticker endpoint.
type tickerPriceFetcher struct {
	client  *http.Client
	cfg     *Config
	logger  *slog.Logger
	baseURL string
}

// tickerResponse represents the response from the ticker price endpoint
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewPriceFetcher creates a new PriceFetcher against the configured source
func NewPriceFetcher(cfg *Config, logger *slog.Logger) (PriceFetcher, error) {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
		},
	}

	return &tickerPriceFetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "tickerPriceFetcher"),
		baseURL: cfg.PriceSourceURL,
	}, nil
}

// FetchPrice fetches the current price, retrying transient failures with
// linear backoff.
func (f *tickerPriceFetcher) FetchPrice(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.baseURL, f.cfg.ExternalSymbol)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		price, err := f.fetchOnce(req)
		if err == nil {
			f.logger.Debug("Successfully fetched price",
				"symbol", f.cfg.ExternalSymbol,
				"price", price,
				"attempt", attempt)
			return price, nil
		}

		lastErr = err
		f.logger.Warn("Price fetch failed",
			"attempt", attempt,
			"max_retries", f.cfg.MaxRetries,
			"error", err)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}

	return 0, fmt.Errorf("failed to fetch price after %d attempts: %w", f.cfg.MaxRetries, lastErr)
}

func (f *tickerPriceFetcher) fetchOnce(req *http.Request) (float64, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP request returned non-200 status: %d", resp.StatusCode)
	}

	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// Close implements PriceFetcher
func (f *tickerPriceFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
