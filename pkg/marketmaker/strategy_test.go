package marketmaker

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

func testStrategyConfig() *Config {
	return &Config{
		Pair:              "TON/USDT",
		UserID:            42,
		NumLevels:         3,
		BaseSpreadPercent: 0.1,
		PriceStepPercent:  0.05,
		OrderSize:         "2.5",
	}
}

func TestMarketMakerStrategy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	strategy, err := NewLayeredSymmetricQuoting(testStrategyConfig(), logger)
	if err != nil {
		t.Fatalf("NewLayeredSymmetricQuoting failed: %v", err)
	}

	t.Run("Basic order creation", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 5.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		if len(orders) != 6 {
			t.Errorf("Expected 6 orders (3 bids + 3 asks), got %d", len(orders))
		}

		if orders[0].Side != core.Buy {
			t.Errorf("Expected first order to be a buy order")
		}
		if orders[1].Side != core.Sell {
			t.Errorf("Expected second order to be a sell order")
		}

		for _, order := range orders {
			if order.Type != core.TypeLimit {
				t.Errorf("Expected LIMIT order type")
			}
			if order.UserID != 42 {
				t.Errorf("Expected orders to carry the configured user id")
			}
			if order.Quantity != fpdecimal.FromFloat(2.5) {
				t.Errorf("Expected quantity 2.5, got %s", order.Quantity)
			}
		}
	})

	t.Run("Quotes straddle the mid price", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 5.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		mid := fpdecimal.FromFloat(5.0)
		for _, order := range orders {
			if order.Side == core.Buy && !order.Price.LessThan(mid) {
				t.Errorf("Bid %s is not below mid", order.Price)
			}
			if order.Side == core.Sell && !order.Price.GreaterThan(mid) {
				t.Errorf("Ask %s is not above mid", order.Price)
			}
		}
	})

	t.Run("Levels widen outward", func(t *testing.T) {
		orders, err := strategy.CalculateOrders(context.Background(), 5.0)
		if err != nil {
			t.Fatalf("CalculateOrders failed: %v", err)
		}

		// Bids occupy the even indexes, best level first.
		for i := 2; i < len(orders); i += 2 {
			if !orders[i].Price.LessThan(orders[i-2].Price) {
				t.Errorf("Expected bid level %d below level %d", i/2, i/2-1)
			}
		}
	})
}
