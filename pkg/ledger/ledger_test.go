package ledger_test

import (
	"sync"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
)

const (
	alice int64 = 1
	bob   int64 = 2
)

func dec(f float64) fpdecimal.Decimal {
	return fpdecimal.FromFloat(f)
}

func TestCreditAndDebit(t *testing.T) {
	l := ledger.New(zerolog.Nop())

	require.NoError(t, l.Credit(alice, "USDT", dec(100)))
	assert.Equal(t, dec(100), l.Balance(alice, "USDT").Available)

	require.NoError(t, l.Debit(alice, "USDT", dec(40)))
	assert.Equal(t, dec(60), l.Balance(alice, "USDT").Available)

	err := l.Debit(alice, "USDT", dec(100))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	err = l.Credit(alice, "USDT", fpdecimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestReserveAndRelease(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(100)))

	require.NoError(t, l.Reserve(alice, "USDT", dec(70)))
	b := l.Balance(alice, "USDT")
	assert.Equal(t, dec(30), b.Available)
	assert.Equal(t, dec(70), b.Locked)

	// Cannot reserve more than available, even with funds locked.
	err := l.Reserve(alice, "USDT", dec(31))
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)

	require.NoError(t, l.Release(alice, "USDT", dec(70)))
	b = l.Balance(alice, "USDT")
	assert.Equal(t, dec(100), b.Available)
	assert.Equal(t, fpdecimal.Zero, b.Locked)

	// Releasing a reservation twice is an internal bug, not a user error.
	err = l.Release(alice, "USDT", dec(1))
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
}

func TestSettleMovesLockedFundsAtomically(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(50)))
	require.NoError(t, l.Credit(bob, "TON", dec(10)))
	require.NoError(t, l.Reserve(alice, "USDT", dec(50)))
	require.NoError(t, l.Reserve(bob, "TON", dec(10)))

	// Alice buys 10 TON for 50 USDT, both sides pay a 0.1% fee.
	err := l.Settle(alice, bob, "TON", "USDT", dec(10), dec(50), dec(0.01), dec(0.05))
	require.NoError(t, err)

	assert.Equal(t, dec(9.99), l.Balance(alice, "TON").Available)
	assert.Equal(t, fpdecimal.Zero, l.Balance(alice, "USDT").Locked)
	assert.Equal(t, dec(49.95), l.Balance(bob, "USDT").Available)
	assert.Equal(t, fpdecimal.Zero, l.Balance(bob, "TON").Locked)
}

func TestSettleRejectsBeforeFirstWrite(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(50)))
	require.NoError(t, l.Reserve(alice, "USDT", dec(50)))

	// Seller has no locked base: nothing may move on either side.
	err := l.Settle(alice, bob, "TON", "USDT", dec(10), dec(50), fpdecimal.Zero, fpdecimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvariantViolation)
	assert.Equal(t, dec(50), l.Balance(alice, "USDT").Locked)

	// Fee larger than the leg it is taken from.
	err = l.Settle(alice, bob, "TON", "USDT", dec(10), dec(50), dec(11), fpdecimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestTotalSupplyUnchangedByTrading(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(50)))
	require.NoError(t, l.Credit(bob, "USDT", dec(20)))
	require.NoError(t, l.Credit(bob, "TON", dec(10)))

	assert.Equal(t, dec(70), l.TotalSupply("USDT"))

	require.NoError(t, l.Reserve(alice, "USDT", dec(50)))
	require.NoError(t, l.Reserve(bob, "TON", dec(10)))
	assert.Equal(t, dec(70), l.TotalSupply("USDT"))

	// Fees leave the ledger; supply shrinks by exactly the fee amounts.
	require.NoError(t, l.Settle(alice, bob, "TON", "USDT", dec(10), dec(50), dec(0.01), dec(0.05)))
	assert.Equal(t, dec(69.95), l.TotalSupply("USDT"))
	assert.Equal(t, dec(9.99), l.TotalSupply("TON"))
}

func TestBalancesSortedByCurrency(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(1)))
	require.NoError(t, l.Credit(alice, "BTC", dec(1)))
	require.NoError(t, l.Credit(alice, "TON", dec(1)))
	require.NoError(t, l.Credit(bob, "ETH", dec(1)))

	balances := l.Balances(alice)
	require.Len(t, balances, 3)
	assert.Equal(t, "BTC", balances[0].Currency)
	assert.Equal(t, "TON", balances[1].Currency)
	assert.Equal(t, "USDT", balances[2].Currency)
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	l := ledger.New(zerolog.Nop())
	require.NoError(t, l.Credit(alice, "USDT", dec(100)))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Only 100 of these can succeed.
			_ = l.Reserve(alice, "USDT", dec(1))
		}()
	}
	wg.Wait()

	b := l.Balance(alice, "USDT")
	assert.Equal(t, fpdecimal.Zero, b.Available)
	assert.Equal(t, dec(100), b.Locked)
	assert.Equal(t, dec(100), l.TotalSupply("USDT"))
}
