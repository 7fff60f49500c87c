package marketmaker

import (
	"context"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current market price for the configured symbol
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling orders.
// The exchange service satisfies it.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, p store.PlaceOrderParams) (*core.Order, error)
	CancelOrder(ctx context.Context, orderID string, userID int64) (*core.Order, error)
}

// MarketMakerStrategy defines the interface for market making strategies
type MarketMakerStrategy interface {
	// CalculateOrders calculates the orders to be placed based on the current price
	CalculateOrders(ctx context.Context, currentPrice float64) ([]store.PlaceOrderParams, error)
}
