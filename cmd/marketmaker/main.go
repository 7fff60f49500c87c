package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/exchange"
	"github.com/zametkikostik/tonhub-exchange/pkg/marketmaker"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
)

// Runs the market maker against an in-process exchange. Useful as a demo
// and as a realistic feed for the order book projection.
func main() {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load configuration
	cfg, err := marketmaker.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := setupExchange(cfg)
	if err != nil {
		logger.Error("Failed to create exchange", "error", err)
		os.Exit(1)
	}
	svc.Start(ctx)

	// Initialize the price fetcher
	priceFetcher, err := marketmaker.NewPriceFetcher(cfg, logger)
	if err != nil {
		logger.Error("Failed to create price fetcher", "error", err)
		os.Exit(1)
	}
	defer priceFetcher.Close()

	// Initialize the market maker strategy
	strategy, err := marketmaker.NewLayeredSymmetricQuoting(cfg, logger)
	if err != nil {
		logger.Error("Failed to create strategy", "error", err)
		os.Exit(1)
	}

	// Create and start the market maker service
	mm, err := marketmaker.NewMarketMaker(cfg, logger, svc, priceFetcher, strategy)
	if err != nil {
		logger.Error("Failed to create market maker", "error", err)
		os.Exit(1)
	}

	if err := mm.Start(ctx); err != nil {
		logger.Error("Failed to start market maker", "error", err)
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mm.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping exchange", "error", err)
		os.Exit(1)
	}

	logger.Info("Market maker service stopped successfully")
}

func setupExchange(cfg *marketmaker.Config) (*exchange.Service, error) {
	exCfg := config.Default()
	exCfg.Exchange.Pairs = []string{cfg.Pair}

	svc, err := exchange.New(exCfg, memory.NewMemoryBackend(), messaging.NewMockEventSender(),
		book.NewMemoryCache(exCfg.Exchange.BookCacheTTL), zerolog.Nop())
	if err != nil {
		return nil, err
	}

	// Fund the quoting account on both sides.
	pair, err := core.ParsePair(cfg.Pair)
	if err != nil {
		return nil, err
	}
	funding := fpdecimal.FromInt(1_000_000)
	if err := svc.Ledger().Credit(cfg.UserID, pair.Base(), funding); err != nil {
		return nil, err
	}
	if err := svc.Ledger().Credit(cfg.UserID, pair.Quote(), funding); err != nil {
		return nil, err
	}
	return svc, nil
}
