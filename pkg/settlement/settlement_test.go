package settlement_test

import (
	"context"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/settlement"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

const userID int64 = 7

func newService(t *testing.T, cfg settlement.Config) (*settlement.Service, *ledger.Ledger, *memory.MemoryBackend, *messaging.MockEventSender) {
	t.Helper()
	backend := memory.NewMemoryBackend()
	ldgr := ledger.New(zerolog.Nop())
	sender := messaging.NewMockEventSender()
	svc := settlement.New(backend, ldgr, sender, []string{"TON", "USDT"}, cfg, zerolog.Nop())
	return svc, ldgr, backend, sender
}

func TestDepositSettlesAtThreshold(t *testing.T) {
	svc, ldgr, _, sender := newService(t, settlement.Config{RequiredConfirmations: 3})
	ctx := context.Background()

	tx, err := svc.RecordDeposit(ctx, userID, "TON", fpdecimal.FromInt(100), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, tx.Status())
	assert.Equal(t, fpdecimal.Zero, ldgr.Balance(userID, "TON").Available)

	tx, err = svc.ApplyConfirmation(ctx, tx.ID(), 2)
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, tx.Status())
	assert.Equal(t, fpdecimal.Zero, ldgr.Balance(userID, "TON").Available)

	tx, err = svc.ApplyConfirmation(ctx, tx.ID(), 3)
	require.NoError(t, err)
	assert.Equal(t, core.TxCompleted, tx.Status())
	assert.Equal(t, fpdecimal.FromInt(100), ldgr.Balance(userID, "TON").Available)

	assert.NotEmpty(t, sender.EventsOfType(messaging.EventBalanceUpdated))
}

func TestDepositSettlesExactlyOnce(t *testing.T) {
	svc, ldgr, _, _ := newService(t, settlement.Config{RequiredConfirmations: 1})
	ctx := context.Background()

	tx, err := svc.RecordDeposit(ctx, userID, "TON", fpdecimal.FromInt(100), "hash-1")
	require.NoError(t, err)

	// The same chain height reported repeatedly must credit once.
	for i := 0; i < 5; i++ {
		_, err = svc.ApplyConfirmation(ctx, tx.ID(), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, fpdecimal.FromInt(100), ldgr.Balance(userID, "TON").Available)
}

func TestDepositConfirmationsNeverDecrease(t *testing.T) {
	svc, _, backend, _ := newService(t, settlement.Config{RequiredConfirmations: 10})
	ctx := context.Background()

	tx, err := svc.RecordDeposit(ctx, userID, "TON", fpdecimal.FromInt(1), "hash-1")
	require.NoError(t, err)

	_, err = svc.ApplyConfirmation(ctx, tx.ID(), 5)
	require.NoError(t, err)
	got, err := svc.ApplyConfirmation(ctx, tx.ID(), 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Confirmations())

	require.Len(t, backend.PendingDeposits(), 1)
}

func TestDepositUnknownCurrency(t *testing.T) {
	svc, _, _, _ := newService(t, settlement.Config{RequiredConfirmations: 1})

	_, err := svc.RecordDeposit(context.Background(), userID, "DOGE", fpdecimal.FromInt(1), "hash-1")
	assert.ErrorIs(t, err, core.ErrUnsupportedPair)
}

func TestWithdrawalDebitsUpFront(t *testing.T) {
	svc, ldgr, _, _ := newService(t, settlement.Config{
		RequiredConfirmations: 1,
		WithdrawalFee:         fpdecimal.FromFloat(0.01),
	})
	ctx := context.Background()
	require.NoError(t, ldgr.Credit(userID, "TON", fpdecimal.FromInt(200)))

	tx, err := svc.RequestWithdrawal(ctx, userID, "TON", fpdecimal.FromInt(100), "EQAddr")
	require.NoError(t, err)
	assert.Equal(t, core.TxPending, tx.Status())
	assert.Equal(t, fpdecimal.FromInt(1), tx.Fee())

	// 100 plus 1 fee is gone immediately.
	assert.Equal(t, fpdecimal.FromInt(99), ldgr.Balance(userID, "TON").Available)

	_, err = svc.CompleteWithdrawal(ctx, tx.ID())
	require.NoError(t, err)
	assert.Equal(t, fpdecimal.FromInt(99), ldgr.Balance(userID, "TON").Available)
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	svc, ldgr, backend, _ := newService(t, settlement.Config{RequiredConfirmations: 1})
	require.NoError(t, ldgr.Credit(userID, "TON", fpdecimal.FromInt(50)))

	_, err := svc.RequestWithdrawal(context.Background(), userID, "TON", fpdecimal.FromInt(100), "EQAddr")
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
	assert.Empty(t, backend.Transactions(store.TransactionQuery{UserID: userID}))
}

func TestWithdrawalFailureRefunds(t *testing.T) {
	svc, ldgr, _, _ := newService(t, settlement.Config{
		RequiredConfirmations: 1,
		WithdrawalFee:         fpdecimal.FromFloat(0.01),
	})
	ctx := context.Background()
	require.NoError(t, ldgr.Credit(userID, "TON", fpdecimal.FromInt(200)))

	tx, err := svc.RequestWithdrawal(ctx, userID, "TON", fpdecimal.FromInt(100), "EQAddr")
	require.NoError(t, err)

	got, err := svc.FailWithdrawal(ctx, tx.ID())
	require.NoError(t, err)
	assert.Equal(t, core.TxFailed, got.Status())

	// Full amount plus fee is back.
	assert.Equal(t, fpdecimal.FromInt(200), ldgr.Balance(userID, "TON").Available)

	_, err = svc.FailWithdrawal(ctx, tx.ID())
	assert.ErrorIs(t, err, core.ErrTxTerminal)
}

func TestWithdrawalDailyLimit(t *testing.T) {
	svc, ldgr, _, _ := newService(t, settlement.Config{
		RequiredConfirmations: 1,
		DailyWithdrawalLimit:  fpdecimal.FromInt(150),
	})
	ctx := context.Background()
	require.NoError(t, ldgr.Credit(userID, "TON", fpdecimal.FromInt(1000)))

	_, err := svc.RequestWithdrawal(ctx, userID, "TON", fpdecimal.FromInt(100), "EQAddr")
	require.NoError(t, err)

	_, err = svc.RequestWithdrawal(ctx, userID, "TON", fpdecimal.FromInt(100), "EQAddr")
	assert.ErrorIs(t, err, core.ErrWithdrawalLimit)

	// A smaller amount under the remaining headroom still works.
	_, err = svc.RequestWithdrawal(ctx, userID, "TON", fpdecimal.FromInt(50), "EQAddr")
	require.NoError(t, err)
}

func TestWatcherAdvancesPendingDeposits(t *testing.T) {
	svc, ldgr, backend, _ := newService(t, settlement.Config{RequiredConfirmations: 2})
	ctx := context.Background()

	tx, err := svc.RecordDeposit(ctx, userID, "TON", fpdecimal.FromInt(10), "hash-1")
	require.NoError(t, err)

	watcher := settlement.NewWatcher(backend, svc, zerolog.Nop())
	require.NoError(t, watcher.Poll(ctx))
	assert.Equal(t, fpdecimal.Zero, ldgr.Balance(userID, "TON").Available)

	require.NoError(t, watcher.Poll(ctx))
	assert.Equal(t, fpdecimal.FromInt(10), ldgr.Balance(userID, "TON").Available)

	got, err := svc.Transaction(tx.ID(), userID)
	require.NoError(t, err)
	assert.Equal(t, core.TxCompleted, got.Status())
	assert.Empty(t, backend.PendingDeposits())
}
