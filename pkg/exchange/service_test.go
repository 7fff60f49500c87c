package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/exchange"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

const (
	tonUSDT = core.Pair("TON/USDT")

	alice int64 = 1
	bob   int64 = 2
)

func newExchange(t *testing.T, mutate func(*config.Config)) (*exchange.Service, *messaging.MockEventSender) {
	t.Helper()
	cfg := config.Default()
	cfg.Exchange.Pairs = []string{"TON/USDT"}
	cfg.Exchange.MatchInterval = 10 * time.Millisecond
	cfg.Exchange.WatchInterval = 10 * time.Millisecond
	cfg.Exchange.BookCacheTTL = time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	sender := messaging.NewMockEventSender()
	svc, err := exchange.New(cfg, memory.NewMemoryBackend(), sender, book.NewMemoryCache(cfg.Exchange.BookCacheTTL), zerolog.Nop())
	require.NoError(t, err)
	return svc, sender
}

func placeParams(userID int64, side core.Side, qty, price float64) store.PlaceOrderParams {
	return store.PlaceOrderParams{
		UserID:   userID,
		Pair:     tonUSDT,
		Side:     side,
		Type:     core.TypeLimit,
		Price:    fpdecimal.FromFloat(price),
		Quantity: fpdecimal.FromFloat(qty),
	}
}

func TestPlaceOrderPublishesEvent(t *testing.T) {
	svc, sender := newExchange(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "USDT", fpdecimal.FromInt(100)))

	order, err := svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 10, 5))
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, order.Status())

	events := sender.EventsOfType(messaging.EventOrderUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID(), events[0].Order.ID)
}

func TestPlaceOrderRateLimited(t *testing.T) {
	svc, _ := newExchange(t, func(cfg *config.Config) {
		cfg.Exchange.OrderRateLimit = 1
		cfg.Exchange.OrderRateBurst = 2
	})
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "USDT", fpdecimal.FromInt(1000)))
	require.NoError(t, svc.Ledger().Credit(bob, "USDT", fpdecimal.FromInt(1000)))

	var limited bool
	for i := 0; i < 5; i++ {
		_, err := svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 1, 1))
		if err == core.ErrRateLimited {
			limited = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, limited)

	// Limits are per user: bob is unaffected by alice's burst.
	_, err := svc.PlaceOrder(ctx, placeParams(bob, core.Buy, 1, 1))
	require.NoError(t, err)
}

func TestCancelOrderPublishesBalance(t *testing.T) {
	svc, sender := newExchange(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "USDT", fpdecimal.FromInt(100)))

	order, err := svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 10, 5))
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(ctx, order.ID(), alice)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, cancelled.Status())
	assert.NotEmpty(t, sender.EventsOfType(messaging.EventBalanceUpdated))
}

func TestBackgroundMatchingEndToEnd(t *testing.T) {
	svc, sender := newExchange(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "USDT", fpdecimal.FromInt(50)))
	require.NoError(t, svc.Ledger().Credit(bob, "TON", fpdecimal.FromInt(10)))

	svc.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, svc.Stop(stopCtx))
	}()

	_, err := svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 10, 5))
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, placeParams(bob, core.Sell, 10, 5))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(sender.EventsOfType(messaging.EventTradeCreated)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, fpdecimal.FromFloat(9.99), svc.Ledger().Balance(alice, "TON").Available)
}

func TestDepositFlowEndToEnd(t *testing.T) {
	svc, _ := newExchange(t, func(cfg *config.Config) {
		cfg.Exchange.RequiredConfirmations = 2
	})
	ctx := context.Background()

	svc.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, svc.Stop(stopCtx))
	}()

	tx, err := svc.RecordDeposit(ctx, alice, "TON", fpdecimal.FromInt(25), "hash-42")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := svc.Settlement().Transaction(tx.ID(), alice)
		return err == nil && got.Status() == core.TxCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, fpdecimal.FromInt(25), svc.Ledger().Balance(alice, "TON").Available)
}

func TestGetOrderBook(t *testing.T) {
	svc, _ := newExchange(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "USDT", fpdecimal.FromInt(100)))

	_, err := svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 10, 5))
	require.NoError(t, err)

	// The cache TTL in this fixture is tiny, so the fresh order shows up.
	time.Sleep(2 * time.Millisecond)
	snap, err := svc.GetOrderBook(ctx, tonUSDT)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, fpdecimal.FromInt(5), snap.Bids[0].Price)

	_, err = svc.GetOrderBook(ctx, core.Pair("DOGE/USDT"))
	assert.ErrorIs(t, err, core.ErrUnsupportedPair)
}

func TestWithdrawalThroughFacade(t *testing.T) {
	svc, _ := newExchange(t, func(cfg *config.Config) {
		cfg.Exchange.WithdrawalFee = 0
	})
	ctx := context.Background()
	require.NoError(t, svc.Ledger().Credit(alice, "TON", fpdecimal.FromInt(100)))

	tx, err := svc.RequestWithdrawal(ctx, alice, "TON", fpdecimal.FromInt(40), "EQAddr")
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, tx.Status())
	assert.Equal(t, fpdecimal.FromInt(60), svc.Ledger().Balance(alice, "TON").Available)

	history := svc.GetTransactionHistory(store.TransactionQuery{UserID: alice})
	require.Len(t, history, 1)
	assert.Equal(t, tx.ID(), history[0].ID())
}
