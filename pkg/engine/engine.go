package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	pkgotel "github.com/zametkikostik/tonhub-exchange/pkg/otel"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// Engine runs one matching cycle at a time per pair: load the open
// orders, cross the best bid against the best ask while they overlap,
// settle each crossing through the store and publish the resulting
// events. Pairs never share state, so a failure on one pair cannot
// stall another.
type Engine struct {
	store  *store.OrderStore
	ledger *ledger.Ledger
	sender messaging.EventSender
	fee    fpdecimal.Decimal
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a matching engine. feeRate is a fraction of the traded
// amount, e.g. 0.001 for 0.1%.
func New(orderStore *store.OrderStore, ldgr *ledger.Ledger, sender messaging.EventSender, feeRate fpdecimal.Decimal, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  orderStore,
		ledger: ldgr,
		sender: sender,
		fee:    feeRate,
		logger: logger.With().Str("component", "engine").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// MatchPair runs one matching cycle for a pair and returns the trades
// it produced. Book order: bids sorted by price descending, asks by
// price ascending, ties on either side broken by creation time. A
// market sell carries a zero price and therefore sorts ahead of every
// ask; a market buy's reference price caps it like a limit.
func (e *Engine) MatchPair(ctx context.Context, pair core.Pair) ([]*core.Trade, error) {
	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanMatchOrder,
		attribute.String("pair", pair.String()))
	if span != nil {
		defer span.End()
	}

	bids := e.store.OpenOrders(pair, core.Buy)
	asks := e.store.OpenOrders(pair, core.Sell)
	sortBids(bids)
	sortAsks(asks)

	var produced []*core.Trade
	var firstErr error
	i, j := 0, 0
	for i < len(bids) && j < len(asks) {
		bid, ask := bids[i], asks[j]
		if !bid.IsOpen() {
			i++
			continue
		}
		if !ask.IsOpen() {
			j++
			continue
		}
		if bid.Price().LessThan(ask.Price()) {
			// Best bid below best ask: nothing else can cross.
			break
		}

		qty := bid.Remaining()
		if ask.Remaining().LessThan(qty) {
			qty = ask.Remaining()
		}

		price, buyMaker := tradePrice(bid, ask)
		total := price.Mul(qty)

		trades, err := e.store.ExecuteMatch(store.Match{
			Buy:       bid,
			Sell:      ask,
			Price:     price,
			Quantity:  qty,
			BuyerFee:  qty.Mul(e.fee),
			SellerFee: total.Mul(e.fee),
			BuyMaker:  buyMaker,
		})
		if errors.Is(err, core.ErrOrderTerminal) {
			// A cancellation won the race; re-read positions.
			continue
		}
		if err != nil {
			// An abandoned match is an accounting bug, not a transient
			// condition. Log loudly, skip both orders for the rest of the
			// cycle and keep matching the remaining book.
			e.logger.Error().Err(err).
				Str("pair", pair.String()).
				Str("buy_order_id", bid.ID()).
				Str("sell_order_id", ask.ID()).
				Str("quantity", qty.String()).
				Str("price", price.String()).
				Msg("match settlement failed")
			if firstErr == nil {
				firstErr = err
			}
			i++
			j++
			continue
		}

		produced = append(produced, trades...)
		e.publishMatch(ctx, bid, ask, trades)

		if !bid.IsOpen() {
			i++
		}
		if !ask.IsOpen() {
			j++
		}
	}

	if len(produced) > 0 {
		pkgotel.GetOrderBookMetrics().RecordMatchedOrders(ctx, pair.String(), int64(len(produced)/2))
		e.logger.Debug().
			Str("pair", pair.String()).
			Int("trades", len(produced)/2).
			Msg("matching cycle produced trades")
	}
	return produced, firstErr
}

// Task returns a scheduler task running MatchPair for one pair.
func (e *Engine) Task(pair core.Pair) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := e.MatchPair(ctx, pair)
		return err
	}
}

func (e *Engine) publishMatch(ctx context.Context, bid, ask *core.Order, trades []*core.Trade) {
	now := e.now()
	pair := bid.Pair()

	events := []*messaging.Event{
		messaging.NewOrderEvent(bid, now),
		messaging.NewOrderEvent(ask, now),
	}
	for _, t := range trades {
		owner := bid.UserID()
		if t.OrderID == ask.ID() {
			owner = ask.UserID()
		}
		events = append(events, messaging.NewTradeEvent(owner, t, now))
	}
	for _, userID := range []int64{bid.UserID(), ask.UserID()} {
		for _, currency := range []string{pair.Base(), pair.Quote()} {
			events = append(events, messaging.NewBalanceEvent(e.ledger.Balance(userID, currency), now))
		}
	}

	for _, event := range events {
		if err := e.sender.Send(ctx, event); err != nil {
			e.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish event")
		}
	}
}

// tradePrice picks the execution price: the resting order (the earlier
// of the two) sets it, so the taker never does worse than its own
// limit. A resting market sell has no price of its own and takes the
// bid's.
func tradePrice(bid, ask *core.Order) (fpdecimal.Decimal, bool) {
	buyMaker := bid.CreatedAt().Before(ask.CreatedAt())
	if buyMaker {
		return bid.Price(), true
	}
	if ask.Price().Equal(fpdecimal.Zero) {
		return bid.Price(), false
	}
	return ask.Price(), false
}

func sortBids(orders []*core.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].Price().Equal(orders[j].Price()) {
			return orders[j].Price().LessThan(orders[i].Price())
		}
		return orders[i].CreatedAt().Before(orders[j].CreatedAt())
	})
}

func sortAsks(orders []*core.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].Price().Equal(orders[j].Price()) {
			return orders[i].Price().LessThan(orders[j].Price())
		}
		return orders[i].CreatedAt().Before(orders[j].CreatedAt())
	})
}
