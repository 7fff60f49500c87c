package marketmaker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// LayeredSymmetricQuoting implements a symmetric market making strategy with multiple price levels
type LayeredSymmetricQuoting struct {
	cfg    *Config
	pair   core.Pair
	size   fpdecimal.Decimal
	logger *slog.Logger
}

// NewLayeredSymmetricQuoting creates a new LayeredSymmetricQuoting strategy
func NewLayeredSymmetricQuoting(cfg *Config, logger *slog.Logger) (*LayeredSymmetricQuoting, error) {
	pair, err := core.ParsePair(cfg.Pair)
	if err != nil {
		return nil, fmt.Errorf("invalid pair %q: %w", cfg.Pair, err)
	}
	size, err := fpdecimal.FromString(cfg.OrderSize)
	if err != nil {
		return nil, fmt.Errorf("invalid order size %q: %w", cfg.OrderSize, err)
	}

	return &LayeredSymmetricQuoting{
		cfg:    cfg,
		pair:   pair,
		size:   size,
		logger: logger.With("component", "LayeredSymmetricQuoting"),
	}, nil
}

// CalculateOrders implements MarketMakerStrategy. Levels are quoted
// symmetrically around the current price, spaced by PriceStepPercent.
func (s *LayeredSymmetricQuoting) CalculateOrders(ctx context.Context, currentPrice float64) ([]store.PlaceOrderParams, error) {
	baseHalfSpread := currentPrice * (s.cfg.BaseSpreadPercent / 2 / 100)
	priceStep := currentPrice * (s.cfg.PriceStepPercent / 100)

	orders := make([]store.PlaceOrderParams, 0, s.cfg.NumLevels*2)

	for i := 1; i <= s.cfg.NumLevels; i++ {
		bidPrice := currentPrice - baseHalfSpread - float64(i-1)*priceStep
		askPrice := currentPrice + baseHalfSpread + float64(i-1)*priceStep
		if bidPrice <= 0 {
			return nil, fmt.Errorf("bid price at level %d is not positive: %f", i, bidPrice)
		}

		orders = append(orders, store.PlaceOrderParams{
			UserID:   s.cfg.UserID,
			Pair:     s.pair,
			Side:     core.Buy,
			Type:     core.TypeLimit,
			Price:    fpdecimal.FromFloat(bidPrice),
			Quantity: s.size,
		})
		orders = append(orders, store.PlaceOrderParams{
			UserID:   s.cfg.UserID,
			Pair:     s.pair,
			Side:     core.Sell,
			Type:     core.TypeLimit,
			Price:    fpdecimal.FromFloat(askPrice),
			Quantity: s.size,
		})

		s.logger.Debug("Calculated order pair",
			"level", i,
			"bid_price", bidPrice,
			"ask_price", askPrice,
			"quantity", s.cfg.OrderSize)
	}

	return orders, nil
}
