package store

import (
	"time"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

// Backend defines the interface for order, trade and transaction storage.
// Backends only persist; lifecycle rules and balance reservations live in
// the OrderStore and the settlement service.
type Backend interface {
	// Order operations
	InsertOrder(order *core.Order) error
	Order(orderID string) *core.Order
	UpdateOrder(order *core.Order) error
	OpenOrders(pair core.Pair, side core.Side) []*core.Order
	Orders(q OrderQuery) []*core.Order

	// Trade operations
	InsertTrade(trade *core.Trade) error
	Trades(q TradeQuery) []*core.Trade

	// Transaction operations
	InsertTransaction(tx *core.Transaction) error
	Transaction(txID string) *core.Transaction
	UpdateTransaction(tx *core.Transaction) error
	Transactions(q TransactionQuery) []*core.Transaction
	PendingDeposits() []*core.Transaction
	WithdrawnSince(userID int64, currency string, since time.Time) fpdecimal.Decimal
}

// OrderQuery enumerates the legal order filter fields. Zero values mean
// "any"; results are newest first.
type OrderQuery struct {
	UserID int64
	Pair   core.Pair
	Side   *core.Side
	Status core.OrderStatus
	Limit  int
	Offset int
}

// TradeQuery selects recent trades for a pair, newest first.
type TradeQuery struct {
	Pair  core.Pair
	Limit int
}

// TransactionQuery enumerates the legal transaction filter fields.
type TransactionQuery struct {
	UserID   int64
	Type     core.TxType
	Status   core.TxStatus
	Currency string
	Limit    int
	Offset   int
}
