package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/engine"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	pkgotel "github.com/zametkikostik/tonhub-exchange/pkg/otel"
	"github.com/zametkikostik/tonhub-exchange/pkg/settlement"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// Service is the exchange facade: order placement and cancellation,
// book and balance reads, deposits and withdrawals. It owns the
// background scheduler driving the matching engine and the deposit
// watcher.
type Service struct {
	cfg        *config.Config
	pairs      core.PairSet
	ledger     *ledger.Ledger
	store      *store.OrderStore
	engine     *engine.Engine
	settlement *settlement.Service
	watcher    *settlement.Watcher
	books      *book.CachedProjector
	scheduler  *engine.Scheduler
	sender     messaging.EventSender
	logger     zerolog.Logger
	now        func() time.Time

	limiterMu sync.Mutex
	limiters  map[int64]*rate.Limiter
}

// New wires the exchange from its storage backend, event sender and
// book cache.
func New(cfg *config.Config, backend store.Backend, sender messaging.EventSender, cache book.Cache, logger zerolog.Logger) (*Service, error) {
	pairs, err := core.NewPairSet(cfg.Exchange.Pairs)
	if err != nil {
		return nil, err
	}

	feeRate := fpdecimal.FromFloat(cfg.Exchange.FeeRate)
	ldgr := ledger.New(logger)
	orderStore := store.New(backend, ldgr, pairs, feeRate, logger)
	matchEngine := engine.New(orderStore, ldgr, sender, feeRate, logger)
	settle := settlement.New(backend, ldgr, sender, pairs.Currencies(), settlement.Config{
		RequiredConfirmations: cfg.Exchange.RequiredConfirmations,
		WithdrawalFee:         fpdecimal.FromFloat(cfg.Exchange.WithdrawalFee),
		DailyWithdrawalLimit:  fpdecimal.FromFloat(cfg.Exchange.DailyWithdrawalLimit),
	}, logger)

	svc := &Service{
		cfg:        cfg,
		pairs:      pairs,
		ledger:     ldgr,
		store:      orderStore,
		engine:     matchEngine,
		settlement: settle,
		watcher:    settlement.NewWatcher(backend, settle, logger),
		books:      book.NewCachedProjector(book.NewProjector(orderStore, cfg.Exchange.BookDepth), cache),
		scheduler:  engine.NewScheduler(logger),
		sender:     sender,
		logger:     logger.With().Str("component", "exchange").Logger(),
		now:        time.Now,
		limiters:   make(map[int64]*rate.Limiter),
	}

	for pair := range pairs {
		svc.scheduler.Add(engine.Task{
			Name:     "match:" + pair.String(),
			Interval: cfg.Exchange.MatchInterval,
			Run:      matchEngine.Task(pair),
		})
	}
	svc.scheduler.Add(engine.Task{
		Name:     "deposit-watcher",
		Interval: cfg.Exchange.WatchInterval,
		Run:      svc.watcher.Task(),
	})

	return svc, nil
}

// Start launches the background matching and watch tasks.
func (s *Service) Start(ctx context.Context) {
	s.scheduler.Start(ctx)
	s.logger.Info().
		Strs("pairs", s.cfg.Exchange.Pairs).
		Dur("match_interval", s.cfg.Exchange.MatchInterval).
		Msg("exchange started")
}

// Stop shuts the background tasks down, bounded by the context.
func (s *Service) Stop(ctx context.Context) error {
	return s.scheduler.Stop(ctx)
}

// PlaceOrder validates, reserves and persists a new order. Placement is
// rate limited per user.
func (s *Service) PlaceOrder(ctx context.Context, p store.PlaceOrderParams) (*core.Order, error) {
	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanCreateOrder,
		attribute.String(pkgotel.AttributeOrderSide, p.Side.String()),
		attribute.String("pair", p.Pair.String()))
	if span != nil {
		defer span.End()
	}

	if !s.limiter(p.UserID).Allow() {
		return nil, core.ErrRateLimited
	}

	order, err := s.store.Create(p)
	if err != nil {
		return nil, err
	}
	if span != nil {
		pkgotel.AddAttributes(span, attribute.String(pkgotel.AttributeOrderID, order.ID()))
	}
	s.publish(ctx, messaging.NewOrderEvent(order, s.now()))
	return order, nil
}

// CancelOrder cancels an open order owned by userID and releases the
// unfilled remainder.
func (s *Service) CancelOrder(ctx context.Context, orderID string, userID int64) (*core.Order, error) {
	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanCancelOrder,
		attribute.String(pkgotel.AttributeOrderID, orderID))
	if span != nil {
		defer span.End()
	}

	order, err := s.store.Cancel(orderID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.publish(ctx, messaging.NewOrderEvent(order, now))
	currency := order.Pair().Quote()
	if order.Side() == core.Sell {
		currency = order.Pair().Base()
	}
	s.publish(ctx, messaging.NewBalanceEvent(s.ledger.Balance(userID, currency), now))
	return order, nil
}

// GetOrder returns one of the user's orders.
func (s *Service) GetOrder(orderID string, userID int64) (*core.Order, error) {
	return s.store.Order(orderID, userID)
}

// GetOrders returns the user's orders matching the query.
func (s *Service) GetOrders(q store.OrderQuery) []*core.Order {
	return s.store.Orders(q)
}

// GetOrderBook returns the aggregated book for a pair.
func (s *Service) GetOrderBook(ctx context.Context, pair core.Pair) (*book.Snapshot, error) {
	if !s.pairs.Contains(pair) {
		return nil, core.ErrUnsupportedPair
	}
	return s.books.Snapshot(ctx, pair), nil
}

// GetRecentTrades returns the latest trades for a pair, newest first.
func (s *Service) GetRecentTrades(pair core.Pair, limit int) ([]*core.Trade, error) {
	if !s.pairs.Contains(pair) {
		return nil, core.ErrUnsupportedPair
	}
	return s.store.Trades(store.TradeQuery{Pair: pair, Limit: limit}), nil
}

// GetBalances returns all balances of a user.
func (s *Service) GetBalances(userID int64) []core.Balance {
	return s.ledger.Balances(userID)
}

// RecordDeposit registers an observed on-chain deposit.
func (s *Service) RecordDeposit(ctx context.Context, userID int64, currency string, amount fpdecimal.Decimal, txHash string) (*core.Transaction, error) {
	return s.settlement.RecordDeposit(ctx, userID, currency, amount, txHash)
}

// RequestWithdrawal starts a withdrawal, debiting amount plus fee.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, currency string, amount fpdecimal.Decimal, toAddress string) (*core.Transaction, error) {
	ctx, span := pkgotel.StartOrderSpan(ctx, pkgotel.SpanWithdraw,
		attribute.String("currency", currency))
	if span != nil {
		defer span.End()
	}
	return s.settlement.RequestWithdrawal(ctx, userID, currency, amount, toAddress)
}

// GetTransactionHistory returns the user's deposits and withdrawals
// matching the query.
func (s *Service) GetTransactionHistory(q store.TransactionQuery) []*core.Transaction {
	return s.settlement.Transactions(q)
}

// Settlement exposes the settlement service for chain-facing callers.
func (s *Service) Settlement() *settlement.Service {
	return s.settlement
}

// Ledger exposes the balance ledger.
func (s *Service) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Service) limiter(userID int64) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	lim, ok := s.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.Exchange.OrderRateLimit), s.cfg.Exchange.OrderRateBurst)
		s.limiters[userID] = lim
	}
	return lim
}

func (s *Service) publish(ctx context.Context, event *messaging.Event) {
	if err := s.sender.Send(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to publish event")
	}
}
