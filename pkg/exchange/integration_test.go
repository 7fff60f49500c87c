package exchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/config"
	redisbackend "github.com/zametkikostik/tonhub-exchange/pkg/backend/redis"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/exchange"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/testutil"
)

// End-to-end flow against real Redis: deposit, trade, withdraw, with both
// the backend and the book cache living in Redis.
func TestExchangeRedisIntegration(t *testing.T) {
	testutil.SkipIfRedisUnavailable(t, "localhost:6379")

	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	defer client.Close()
	require.NoError(t, client.FlushDB(context.Background()).Err())

	cfg := config.Default()
	cfg.Exchange.Pairs = []string{"TON/USDT"}
	cfg.Exchange.MatchInterval = 20 * time.Millisecond
	cfg.Exchange.WatchInterval = 20 * time.Millisecond
	cfg.Exchange.RequiredConfirmations = 2
	cfg.Exchange.WithdrawalFee = 0

	backend := redisbackend.NewRedisBackend(client, "it", zerolog.Nop())
	cache := book.NewRedisCache(client, "it", 50*time.Millisecond, zerolog.Nop())
	sender := messaging.NewMockEventSender()

	svc, err := exchange.New(cfg, backend, sender, cache, zerolog.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	svc.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		require.NoError(t, svc.Stop(stopCtx))
	}()

	// Deposit settles once the watcher has advanced it to the threshold.
	dep, err := svc.RecordDeposit(ctx, alice, "USDT", fpdecimal.FromInt(100), "hash-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := svc.Settlement().Transaction(dep.ID(), alice)
		return err == nil && got.Status() == core.TxCompleted
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Ledger().Credit(bob, "TON", fpdecimal.FromInt(10)))

	// Cross two orders and wait for the background engine.
	_, err = svc.PlaceOrder(ctx, placeParams(alice, core.Buy, 10, 5))
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, placeParams(bob, core.Sell, 10, 5))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sender.EventsOfType(messaging.EventTradeCreated)) == 2
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, fpdecimal.FromFloat(9.99), svc.Ledger().Balance(alice, "TON").Available)

	// Withdraw the sale proceeds; the backend records it durably.
	wd, err := svc.RequestWithdrawal(ctx, bob, "USDT", fpdecimal.FromInt(40), "EQAddr")
	require.NoError(t, err)
	got := backend.Transaction(wd.ID())
	require.NotNil(t, got)
	assert.Equal(t, core.TxPending, got.Status())

	// The book snapshot round-trips through the Redis cache.
	snap, err := svc.GetOrderBook(ctx, tonUSDT)
	require.NoError(t, err)
	assert.NotNil(t, snap)
}
