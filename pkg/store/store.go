package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
)

// OrderStore owns order lifecycle: placement with balance reservation,
// cancellation with refund of the unfilled remainder, and fill application
// on behalf of the matching engine. A store-level transition lock makes a
// cancellation racing a fill either fully precede or fully follow it —
// the in-process equivalent of the database transaction around both.
type OrderStore struct {
	backend Backend
	ledger  *ledger.Ledger
	pairs   core.PairSet
	feeRate fpdecimal.Decimal
	logger  zerolog.Logger
	now     func() time.Time

	// mu serializes order state transitions against each other and
	// against the engine's settlement step.
	mu sync.Mutex
}

// New creates an OrderStore over the given backend and ledger. feeRate is
// a fraction of the traded amount, e.g. 0.001 for 0.1%.
func New(backend Backend, ldgr *ledger.Ledger, pairs core.PairSet, feeRate fpdecimal.Decimal, logger zerolog.Logger) *OrderStore {
	return &OrderStore{
		backend: backend,
		ledger:  ldgr,
		pairs:   pairs,
		feeRate: feeRate,
		logger:  logger.With().Str("component", "order_store").Logger(),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Tests only.
func (s *OrderStore) SetClock(now func() time.Time) { s.now = now }

// PlaceOrderParams carries validated user input into Create.
type PlaceOrderParams struct {
	UserID   int64
	Pair     core.Pair
	Side     core.Side
	Type     core.OrderType
	Price    fpdecimal.Decimal
	Quantity fpdecimal.Decimal
}

// Create validates the order, reserves the backing balance and persists
// it. On a failed reservation nothing is persisted; on a failed persist
// the reservation is rolled back.
func (s *OrderStore) Create(p PlaceOrderParams) (*core.Order, error) {
	if !s.pairs.Contains(p.Pair) {
		return nil, core.ErrUnsupportedPair
	}

	now := s.now()
	var (
		order *core.Order
		err   error
	)
	switch p.Type {
	case core.TypeLimit:
		order, err = core.NewLimitOrder(uuid.NewString(), p.UserID, p.Pair, p.Side, p.Quantity, p.Price, now)
	case core.TypeMarket:
		order, err = core.NewMarketOrder(uuid.NewString(), p.UserID, p.Pair, p.Side, p.Quantity, p.Price, now)
	default:
		return nil, core.ErrInvalidQuantity
	}
	if err != nil {
		return nil, err
	}
	order.SetFee(p.Quantity.Mul(s.feeRate))

	currency, amount := s.reservation(order, order.Remaining())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Reserve(p.UserID, currency, amount); err != nil {
		return nil, err
	}
	if err := s.backend.InsertOrder(order); err != nil {
		if relErr := s.ledger.Release(p.UserID, currency, amount); relErr != nil {
			s.logger.Error().Err(relErr).Str("order_id", order.ID()).Msg("failed to roll back reservation")
		}
		return nil, err
	}

	s.logger.Info().
		Str("order_id", order.ID()).
		Int64("user_id", p.UserID).
		Str("pair", p.Pair.String()).
		Str("side", p.Side.String()).
		Str("quantity", p.Quantity.String()).
		Str("price", order.Price().String()).
		Msg("order placed")
	return order.Clone(), nil
}

// Cancel flips an open order owned by userID to CANCELLED and releases
// the reservation backing its unfilled remainder, atomically.
func (s *OrderStore) Cancel(orderID string, userID int64) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := s.backend.Order(orderID)
	if order == nil || order.UserID() != userID {
		return nil, core.ErrOrderNotFound
	}
	if !order.IsOpen() {
		return nil, core.ErrOrderTerminal
	}

	currency, amount := s.reservation(order, order.Remaining())
	if err := s.ledger.Release(userID, currency, amount); err != nil {
		return nil, err
	}
	if err := order.MarkCancelled(s.now()); err != nil {
		return nil, err
	}
	if err := s.backend.UpdateOrder(order); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_id", orderID).
		Str("refunded", amount.String()).
		Str("currency", currency).
		Msg("order cancelled")
	return order.Clone(), nil
}

// Match describes one crossing computed by the engine, ready to settle.
type Match struct {
	Buy       *core.Order
	Sell      *core.Order
	Price     fpdecimal.Decimal
	Quantity  fpdecimal.Decimal
	BuyerFee  fpdecimal.Decimal // base currency
	SellerFee fpdecimal.Decimal // quote currency
	BuyMaker  bool
}

// ExecuteMatch applies one match as a single all-or-nothing step: both
// fills, both trade records and the ledger settlement. The engine hands
// in its book-read copies, which a durable backend returns detached, so
// both orders are re-fetched by ID under the transition lock; the checks
// and fills run on the committed state, and a cancellation that won the
// race aborts the match cleanly. Only the matching engine calls this.
func (s *OrderStore) ExecuteMatch(m Match) ([]*core.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buy := s.backend.Order(m.Buy.ID())
	sell := s.backend.Order(m.Sell.ID())
	if buy == nil || sell == nil {
		return nil, core.ErrOrderNotFound
	}
	// Sync the caller's copies with the committed state before any check,
	// so a caller skipping past a terminal order sees which one it was.
	if m.Buy != buy {
		*m.Buy = *buy
	}
	if m.Sell != sell {
		*m.Sell = *sell
	}
	if !buy.IsOpen() || !sell.IsOpen() {
		return nil, core.ErrOrderTerminal
	}
	if m.Quantity.LessThanOrEqual(fpdecimal.Zero) ||
		m.Quantity.GreaterThan(buy.Remaining()) ||
		m.Quantity.GreaterThan(sell.Remaining()) {
		return nil, core.ErrInvalidQuantity
	}

	pair := buy.Pair()
	total := m.Price.Mul(m.Quantity)

	// The buyer's reservation was taken at the buy order's own price; the
	// trade may settle cheaper, so release the surplus first.
	if buy.Price().GreaterThan(m.Price) {
		surplus := buy.Price().Sub(m.Price).Mul(m.Quantity)
		if err := s.ledger.Release(buy.UserID(), pair.Quote(), surplus); err != nil {
			return nil, err
		}
	}

	if err := s.ledger.Settle(
		buy.UserID(), sell.UserID(),
		pair.Base(), pair.Quote(),
		m.Quantity, total,
		m.BuyerFee, m.SellerFee,
	); err != nil {
		return nil, err
	}

	now := s.now()
	if err := buy.Fill(m.Quantity, now); err != nil {
		return nil, err
	}
	if err := sell.Fill(m.Quantity, now); err != nil {
		return nil, err
	}

	trades := []*core.Trade{
		{
			ID:             uuid.NewString(),
			OrderID:        buy.ID(),
			CounterOrderID: sell.ID(),
			Pair:           pair,
			Price:          m.Price,
			Quantity:       m.Quantity,
			Fee:            m.BuyerFee,
			FeeCurrency:    pair.Base(),
			IsMaker:        m.BuyMaker,
			CreatedAt:      now,
		},
		{
			ID:             uuid.NewString(),
			OrderID:        sell.ID(),
			CounterOrderID: buy.ID(),
			Pair:           pair,
			Price:          m.Price,
			Quantity:       m.Quantity,
			Fee:            m.SellerFee,
			FeeCurrency:    pair.Quote(),
			IsMaker:        !m.BuyMaker,
			CreatedAt:      now,
		},
	}
	for _, t := range trades {
		if err := s.backend.InsertTrade(t); err != nil {
			return nil, err
		}
	}
	if err := s.backend.UpdateOrder(buy); err != nil {
		return nil, err
	}
	if err := s.backend.UpdateOrder(sell); err != nil {
		return nil, err
	}

	// Second sync: the engine's sweep and events see the fills just
	// applied.
	if m.Buy != buy {
		*m.Buy = *buy
	}
	if m.Sell != sell {
		*m.Sell = *sell
	}
	return trades, nil
}

// Order returns a detached copy of an order owned by userID.
func (s *OrderStore) Order(orderID string, userID int64) (*core.Order, error) {
	order := s.backend.Order(orderID)
	if order == nil || order.UserID() != userID {
		return nil, core.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// Orders returns detached copies matching the query.
func (s *OrderStore) Orders(q OrderQuery) []*core.Order {
	return s.backend.Orders(q)
}

// OpenOrders returns the live open orders for one side of a pair.
func (s *OrderStore) OpenOrders(pair core.Pair, side core.Side) []*core.Order {
	return s.backend.OpenOrders(pair, side)
}

// Trades returns recent trades matching the query.
func (s *OrderStore) Trades(q TradeQuery) []*core.Trade {
	return s.backend.Trades(q)
}

// reservation computes the currency and amount that back the given
// remainder of an order: quantity*price of quote for a buy, quantity of
// base for a sell.
func (s *OrderStore) reservation(order *core.Order, remaining fpdecimal.Decimal) (string, fpdecimal.Decimal) {
	if order.Side() == core.Buy {
		return order.Pair().Quote(), remaining.Mul(order.Price())
	}
	return order.Pair().Base(), remaining
}
