package marketmaker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fetcherConfig(url string) *Config {
	return &Config{
		ExternalSymbol: "TONUSDT",
		PriceSourceURL: url,
		HTTPTimeout:    5 * time.Second,
		MaxRetries:     3,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickerPriceFetcher_FetchPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("Expected path /api/v3/ticker/price, got %s", r.URL.Path)
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if symbol := r.URL.Query().Get("symbol"); symbol != "TONUSDT" {
			t.Errorf("Expected symbol TONUSDT, got %s", symbol)
			http.Error(w, "Invalid symbol", http.StatusBadRequest)
			return
		}

		json.NewEncoder(w).Encode(tickerResponse{Symbol: "TONUSDT", Price: "5.43"})
	}))
	defer server.Close()

	fetcher, err := NewPriceFetcher(fetcherConfig(server.URL), testLogger())
	if err != nil {
		t.Fatalf("Failed to create price fetcher: %v", err)
	}
	defer fetcher.Close()

	price, err := fetcher.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("FetchPrice failed: %v", err)
	}
	if price != 5.43 {
		t.Errorf("Expected price 5.43, got %f", price)
	}
}

func TestTickerPriceFetcher_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(tickerResponse{Symbol: "TONUSDT", Price: "5.00"})
	}))
	defer server.Close()

	fetcher, err := NewPriceFetcher(fetcherConfig(server.URL), testLogger())
	if err != nil {
		t.Fatalf("Failed to create price fetcher: %v", err)
	}
	defer fetcher.Close()

	price, err := fetcher.FetchPrice(context.Background())
	if err != nil {
		t.Fatalf("FetchPrice failed after retries: %v", err)
	}
	if price != 5.0 {
		t.Errorf("Expected price 5.0, got %f", price)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestTickerPriceFetcher_GivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fetcherConfig(server.URL)
	cfg.MaxRetries = 2

	fetcher, err := NewPriceFetcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create price fetcher: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.FetchPrice(context.Background()); err == nil {
		t.Errorf("Expected error after exhausting retries")
	}
}

func TestTickerPriceFetcher_RejectsMalformedPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tickerResponse{Symbol: "TONUSDT", Price: "not-a-number"})
	}))
	defer server.Close()

	cfg := fetcherConfig(server.URL)
	cfg.MaxRetries = 1

	fetcher, err := NewPriceFetcher(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create price fetcher: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.FetchPrice(context.Background()); err == nil {
		t.Errorf("Expected error for malformed price")
	}
}
