package ledger

import (
	"sort"
	"sync"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

type accountKey struct {
	userID   int64
	currency string
}

type account struct {
	available fpdecimal.Decimal
	locked    fpdecimal.Decimal
}

// Ledger owns every user's per-currency balance. Balances change only
// through the operations below; a single mutex linearizes all mutations,
// so no caller ever observes a partially applied transfer.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[accountKey]*account
	logger   zerolog.Logger
}

// New creates an empty ledger.
func New(logger zerolog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[accountKey]*account),
		logger:   logger.With().Str("component", "ledger").Logger(),
	}
}

// account returns the account for the key, creating a zero balance on
// first use. Callers must hold the write lock.
func (l *Ledger) account(key accountKey) *account {
	acc, ok := l.accounts[key]
	if !ok {
		acc = &account{available: fpdecimal.Zero, locked: fpdecimal.Zero}
		l.accounts[key] = acc
	}
	return acc
}

// Reserve moves amount from available to locked, backing an open order.
func (l *Ledger) Reserve(userID int64, currency string, amount fpdecimal.Decimal) error {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return core.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(accountKey{userID, currency})
	if acc.available.LessThan(amount) {
		return core.ErrInsufficientBalance
	}
	acc.available = acc.available.Sub(amount)
	acc.locked = acc.locked.Add(amount)
	return nil
}

// Release moves amount from locked back to available, refunding the
// unfilled remainder of a cancelled order. A shortfall in locked funds
// means a caller released or settled the same reservation twice; that is
// an internal bug, not a user error.
func (l *Ledger) Release(userID int64, currency string, amount fpdecimal.Decimal) error {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return core.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(accountKey{userID, currency})
	if acc.locked.LessThan(amount) {
		l.logger.Error().
			Int64("user_id", userID).
			Str("currency", currency).
			Str("amount", amount.String()).
			Str("locked", acc.locked.String()).
			Msg("release exceeds locked funds")
		return core.ErrInvariantViolation
	}
	acc.locked = acc.locked.Sub(amount)
	acc.available = acc.available.Add(amount)
	return nil
}

// Settle executes the balance movements of one trade: the buyer's locked
// quote pays for the seller's locked base, and each side receives the
// other currency minus its fee. All four mutations commit together or not
// at all; preconditions are checked before the first write.
func (l *Ledger) Settle(buyerID, sellerID int64, baseCurrency, quoteCurrency string, baseAmount, quoteAmount, buyerFee, sellerFee fpdecimal.Decimal) error {
	if baseAmount.LessThanOrEqual(fpdecimal.Zero) || quoteAmount.LessThanOrEqual(fpdecimal.Zero) {
		return core.ErrInvalidAmount
	}
	if buyerFee.LessThan(fpdecimal.Zero) || sellerFee.LessThan(fpdecimal.Zero) ||
		buyerFee.GreaterThan(baseAmount) || sellerFee.GreaterThan(quoteAmount) {
		return core.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	buyerQuote := l.account(accountKey{buyerID, quoteCurrency})
	sellerBase := l.account(accountKey{sellerID, baseCurrency})
	buyerBase := l.account(accountKey{buyerID, baseCurrency})
	sellerQuote := l.account(accountKey{sellerID, quoteCurrency})

	if buyerQuote.locked.LessThan(quoteAmount) || sellerBase.locked.LessThan(baseAmount) {
		l.logger.Error().
			Int64("buyer_id", buyerID).
			Int64("seller_id", sellerID).
			Str("base_amount", baseAmount.String()).
			Str("quote_amount", quoteAmount.String()).
			Str("buyer_locked_quote", buyerQuote.locked.String()).
			Str("seller_locked_base", sellerBase.locked.String()).
			Msg("settlement exceeds locked funds")
		return core.ErrInvariantViolation
	}

	buyerQuote.locked = buyerQuote.locked.Sub(quoteAmount)
	sellerBase.locked = sellerBase.locked.Sub(baseAmount)
	buyerBase.available = buyerBase.available.Add(baseAmount.Sub(buyerFee))
	sellerQuote.available = sellerQuote.available.Add(quoteAmount.Sub(sellerFee))
	return nil
}

// Credit adds amount to available. Used by deposit settlement.
func (l *Ledger) Credit(userID int64, currency string, amount fpdecimal.Decimal) error {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return core.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(accountKey{userID, currency})
	acc.available = acc.available.Add(amount)
	return nil
}

// Debit removes amount from available. Used by withdrawal settlement.
func (l *Ledger) Debit(userID int64, currency string, amount fpdecimal.Decimal) error {
	if amount.LessThanOrEqual(fpdecimal.Zero) {
		return core.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(accountKey{userID, currency})
	if acc.available.LessThan(amount) {
		return core.ErrInsufficientBalance
	}
	acc.available = acc.available.Sub(amount)
	return nil
}

// Balance returns a snapshot of one account, zero if never touched.
func (l *Ledger) Balance(userID int64, currency string) core.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b := core.Balance{
		UserID:    userID,
		Currency:  currency,
		Available: fpdecimal.Zero,
		Locked:    fpdecimal.Zero,
	}
	if acc, ok := l.accounts[accountKey{userID, currency}]; ok {
		b.Available = acc.available
		b.Locked = acc.locked
	}
	return b
}

// Balances returns snapshots of all of a user's accounts, sorted by
// currency for stable output.
func (l *Ledger) Balances(userID int64) []core.Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make([]core.Balance, 0)
	for key, acc := range l.accounts {
		if key.userID != userID {
			continue
		}
		balances = append(balances, core.Balance{
			UserID:    userID,
			Currency:  key.currency,
			Available: acc.available,
			Locked:    acc.locked,
		})
	}
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Currency < balances[j].Currency
	})
	return balances
}

// TotalSupply sums available plus locked across all users for one
// currency. Trading never changes it; only deposits and withdrawals do.
func (l *Ledger) TotalSupply(currency string) fpdecimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := fpdecimal.Zero
	for key, acc := range l.accounts {
		if key.currency == currency {
			total = total.Add(acc.available).Add(acc.locked)
		}
	}
	return total
}
