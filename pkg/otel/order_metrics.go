package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// orderBookMetrics holds the singleton instance
	orderBookMetrics *OrderBookMetrics
	// meter is the global meter for order book metrics
	meter = otel.GetMeterProvider().Meter(instrumentationName)
)

// OrderBookMetrics holds metrics for matching engine activity
type OrderBookMetrics struct {
	// Tracks the total number of matched trades per pair
	matchedOrdersTotal metric.Int64Counter
	// Tracks the total number of settled deposits per currency
	settledDepositsTotal metric.Int64Counter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton
func GetOrderBookMetrics() *OrderBookMetrics {
	if orderBookMetrics == nil {
		// Initialize metrics
		matchedOrdersTotal, err := meter.Int64Counter(
			"orderbook.matched_orders.total",
			metric.WithDescription("Total number of orders matched"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		settledDepositsTotal, err := meter.Int64Counter(
			"settlement.deposits.total",
			metric.WithDescription("Total number of deposits settled"),
			metric.WithUnit("{deposit}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		orderBookMetrics = &OrderBookMetrics{
			matchedOrdersTotal:   matchedOrdersTotal,
			settledDepositsTotal: settledDepositsTotal,
		}
	}

	return orderBookMetrics
}

// RecordMatchedOrders increments the matched orders counter
func (m *OrderBookMetrics) RecordMatchedOrders(ctx context.Context, pair string, count int64) {
	if m.matchedOrdersTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pair", pair),
	}
	m.matchedOrdersTotal.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordSettledDeposit increments the settled deposits counter
func (m *OrderBookMetrics) RecordSettledDeposit(ctx context.Context, currency string) {
	if m.settledDepositsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("currency", currency),
	}
	m.settledDepositsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}
