package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// MemoryBackend implements store.Backend with in-memory storage. Insertion
// order is preserved so that time priority falls out of iteration order.
type MemoryBackend struct {
	sync.RWMutex
	orders       map[string]*core.Order
	orderSeq     []*core.Order
	trades       []*core.Trade
	transactions map[string]*core.Transaction
	txSeq        []*core.Transaction
}

// NewMemoryBackend creates new instance of MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		orders:       make(map[string]*core.Order),
		transactions: make(map[string]*core.Transaction),
	}
}

// InsertOrder stores a new order
func (b *MemoryBackend) InsertOrder(order *core.Order) error {
	b.Lock()
	defer b.Unlock()

	if _, exists := b.orders[order.ID()]; exists {
		return core.ErrOrderExists
	}
	b.orders[order.ID()] = order
	b.orderSeq = append(b.orderSeq, order)
	return nil
}

// Order retrieves an order by ID, nil if unknown.
func (b *MemoryBackend) Order(orderID string) *core.Order {
	b.RLock()
	defer b.RUnlock()
	return b.orders[orderID]
}

// UpdateOrder persists a mutated order. The memory backend mutates in
// place, so this only validates existence; durable backends overwrite.
func (b *MemoryBackend) UpdateOrder(order *core.Order) error {
	b.RLock()
	defer b.RUnlock()

	if _, exists := b.orders[order.ID()]; !exists {
		return core.ErrOrderNotFound
	}
	return nil
}

// OpenOrders returns the live open orders for one side of a pair in
// insertion order. Callers mutate the returned orders under the
// OrderStore's transition lock.
func (b *MemoryBackend) OpenOrders(pair core.Pair, side core.Side) []*core.Order {
	b.RLock()
	defer b.RUnlock()

	orders := make([]*core.Order, 0)
	for _, o := range b.orderSeq {
		if o.Pair() == pair && o.Side() == side && o.IsOpen() {
			orders = append(orders, o)
		}
	}
	return orders
}

// Orders returns detached copies matching the query, newest first.
func (b *MemoryBackend) Orders(q store.OrderQuery) []*core.Order {
	b.RLock()
	defer b.RUnlock()

	matched := make([]*core.Order, 0)
	for _, o := range b.orderSeq {
		if q.UserID != 0 && o.UserID() != q.UserID {
			continue
		}
		if q.Pair != "" && o.Pair() != q.Pair {
			continue
		}
		if q.Side != nil && o.Side() != *q.Side {
			continue
		}
		if q.Status != "" && o.Status() != q.Status {
			continue
		}
		matched = append(matched, o)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})

	return clonePage(matched, q.Offset, q.Limit)
}

// InsertTrade appends an immutable trade record.
func (b *MemoryBackend) InsertTrade(trade *core.Trade) error {
	b.Lock()
	defer b.Unlock()

	b.trades = append(b.trades, trade)
	return nil
}

// Trades returns the most recent trades for a pair, newest first.
func (b *MemoryBackend) Trades(q store.TradeQuery) []*core.Trade {
	b.RLock()
	defer b.RUnlock()

	matched := make([]*core.Trade, 0)
	for i := len(b.trades) - 1; i >= 0; i-- {
		t := b.trades[i]
		if q.Pair != "" && t.Pair != q.Pair {
			continue
		}
		matched = append(matched, t)
		if q.Limit > 0 && len(matched) >= q.Limit {
			break
		}
	}
	return matched
}

// InsertTransaction stores a new deposit or withdrawal record.
func (b *MemoryBackend) InsertTransaction(tx *core.Transaction) error {
	b.Lock()
	defer b.Unlock()

	if _, exists := b.transactions[tx.ID()]; exists {
		return core.ErrTxExists
	}
	b.transactions[tx.ID()] = tx
	b.txSeq = append(b.txSeq, tx)
	return nil
}

// Transaction retrieves a transaction by ID, nil if unknown.
func (b *MemoryBackend) Transaction(txID string) *core.Transaction {
	b.RLock()
	defer b.RUnlock()
	return b.transactions[txID]
}

// UpdateTransaction persists a mutated transaction.
func (b *MemoryBackend) UpdateTransaction(tx *core.Transaction) error {
	b.RLock()
	defer b.RUnlock()

	if _, exists := b.transactions[tx.ID()]; !exists {
		return core.ErrTxNotFound
	}
	return nil
}

// Transactions returns detached copies matching the query, newest first.
func (b *MemoryBackend) Transactions(q store.TransactionQuery) []*core.Transaction {
	b.RLock()
	defer b.RUnlock()

	matched := make([]*core.Transaction, 0)
	for _, tx := range b.txSeq {
		if q.UserID != 0 && tx.UserID() != q.UserID {
			continue
		}
		if q.Type != "" && tx.Type() != q.Type {
			continue
		}
		if q.Status != "" && tx.Status() != q.Status {
			continue
		}
		if q.Currency != "" && tx.Currency() != q.Currency {
			continue
		}
		matched = append(matched, tx)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := make([]*core.Transaction, 0, end-start)
	for _, tx := range matched[start:end] {
		page = append(page, tx.Clone())
	}
	return page
}

// PendingDeposits returns the live deposits still awaiting confirmations.
func (b *MemoryBackend) PendingDeposits() []*core.Transaction {
	b.RLock()
	defer b.RUnlock()

	pending := make([]*core.Transaction, 0)
	for _, tx := range b.txSeq {
		if tx.Type() == core.TxDeposit && tx.Status() == core.TxPending {
			pending = append(pending, tx)
		}
	}
	return pending
}

// WithdrawnSince sums amount plus fee of the user's withdrawals created at
// or after the cutoff, failed ones excluded. Pending withdrawals count:
// their funds already left the available balance.
func (b *MemoryBackend) WithdrawnSince(userID int64, currency string, since time.Time) fpdecimal.Decimal {
	b.RLock()
	defer b.RUnlock()

	total := fpdecimal.Zero
	for _, tx := range b.txSeq {
		if tx.Type() != core.TxWithdrawal || tx.UserID() != userID || tx.Currency() != currency {
			continue
		}
		if tx.Status() == core.TxFailed || tx.Status() == core.TxCancelled {
			continue
		}
		if tx.CreatedAt().Before(since) {
			continue
		}
		total = total.Add(tx.Amount()).Add(tx.Fee())
	}
	return total
}

func clonePage(orders []*core.Order, offset, limit int) []*core.Order {
	start := offset
	if start > len(orders) {
		start = len(orders)
	}
	end := len(orders)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := make([]*core.Order, 0, end-start)
	for _, o := range orders[start:end] {
		page = append(page, o.Clone())
	}
	return page
}
