package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

// MarketMaker keeps a ladder of symmetric quotes on one pair. Each cycle
// it fetches the external price, cancels the previous ladder and places a
// fresh one through the exchange.
type MarketMaker struct {
	cfg          *Config
	logger       *slog.Logger
	orderPlacer  OrderPlacer
	priceFetcher PriceFetcher
	strategy     MarketMakerStrategy
	activeOrders sync.Map // map[string]bool - tracks active order IDs
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewMarketMaker creates a new market maker service
func NewMarketMaker(cfg *Config, logger *slog.Logger, orderPlacer OrderPlacer, priceFetcher PriceFetcher, strategy MarketMakerStrategy) (*MarketMaker, error) {
	return &MarketMaker{
		cfg:          cfg,
		logger:       logger.With("component", "MarketMaker"),
		orderPlacer:  orderPlacer,
		priceFetcher: priceFetcher,
		strategy:     strategy,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start begins the market making process
func (m *MarketMaker) Start(ctx context.Context) error {
	m.logger.Info("Starting market maker service",
		"pair", m.cfg.Pair,
		"update_interval", m.cfg.UpdateInterval)

	m.wg.Add(1)
	go m.run(ctx)

	return nil
}

// Stop gracefully shuts down the market maker and pulls its quotes.
func (m *MarketMaker) Stop(ctx context.Context) error {
	m.logger.Info("Stopping market maker service")

	close(m.stopCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Market maker stopped successfully")
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for market maker to stop: %w", ctx.Err())
	}

	if err := m.cancelAllOrders(ctx); err != nil {
		m.logger.Error("Failed to cancel all orders during shutdown", "error", err)
		return fmt.Errorf("failed to cancel orders during shutdown: %w", err)
	}

	return nil
}

// run is the main market making loop
func (m *MarketMaker) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping market maker loop")
			return
		case <-m.stopCh:
			m.logger.Info("Stop signal received, stopping market maker loop")
			return
		case <-ticker.C:
			if err := m.updateOrders(ctx); err != nil {
				m.logger.Error("Failed to update orders", "error", err)
				// Continue running despite errors
			}
		}
	}
}

// updateOrders performs a single iteration of the market making process
func (m *MarketMaker) updateOrders(ctx context.Context) error {
	price, err := m.priceFetcher.FetchPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	orders, err := m.strategy.CalculateOrders(ctx, price)
	if err != nil {
		return fmt.Errorf("failed to calculate orders: %w", err)
	}

	// Pull the old ladder before quoting the new one so the two never
	// cross each other.
	if err := m.cancelAllOrders(ctx); err != nil {
		return fmt.Errorf("failed to cancel existing orders: %w", err)
	}

	for _, params := range orders {
		placed, err := m.orderPlacer.PlaceOrder(ctx, params)
		if err != nil {
			m.logger.Error("Failed to place order",
				"side", params.Side.String(),
				"price", params.Price.String(),
				"error", err)
			continue
		}

		m.activeOrders.Store(placed.ID(), true)

		m.logger.Debug("Successfully placed order",
			"order_id", placed.ID(),
			"side", params.Side.String(),
			"price", params.Price.String())
	}

	return nil
}

// cancelAllOrders cancels all tracked active orders
func (m *MarketMaker) cancelAllOrders(ctx context.Context) error {
	var lastErr error
	m.activeOrders.Range(func(key, _ interface{}) bool {
		orderID := key.(string)

		_, err := m.orderPlacer.CancelOrder(ctx, orderID, m.cfg.UserID)
		if errors.Is(err, core.ErrOrderTerminal) || errors.Is(err, core.ErrOrderNotFound) {
			// Quote already traded; nothing left to pull.
			m.activeOrders.Delete(orderID)
			return true
		}
		if err != nil {
			m.logger.Error("Failed to cancel order",
				"order_id", orderID,
				"error", err)
			lastErr = err
			// Continue canceling other orders even if one fails
			return true
		}

		m.activeOrders.Delete(orderID)
		m.logger.Debug("Successfully cancelled order", "order_id", orderID)
		return true
	})

	return lastErr
}
