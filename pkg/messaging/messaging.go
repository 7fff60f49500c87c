package messaging

import (
	"context"
	"time"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
)

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	EventOrderUpdated   EventType = "order.updated"
	EventTradeCreated   EventType = "trade.created"
	EventBalanceUpdated EventType = "balance.updated"
	EventTxUpdated      EventType = "transaction.updated"
)

// EventSender defines an interface for publishing exchange events.
// This keeps the engine and settlement packages decoupled from the
// Kafka implementation in the kafka subpackage.
type EventSender interface {
	Send(ctx context.Context, event *Event) error
	Close() error
}

// Event is the message published for every user-visible state change.
// Decimal values are carried as strings to keep exact precision on the
// wire.
type Event struct {
	Type      EventType       `json:"type"`
	UserID    int64           `json:"userId"`
	Order     *OrderPayload   `json:"order,omitempty"`
	Trade     *TradePayload   `json:"trade,omitempty"`
	Balance   *BalancePayload `json:"balance,omitempty"`
	Tx        *TxPayload      `json:"transaction,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Key returns the Kafka partitioning key for the event. Events keyed by
// entity ID preserve per-entity ordering across partitions.
func (e *Event) Key() string {
	switch {
	case e.Order != nil:
		return e.Order.ID
	case e.Trade != nil:
		return e.Trade.OrderID
	case e.Tx != nil:
		return e.Tx.ID
	}
	return ""
}

type OrderPayload struct {
	ID        string `json:"id"`
	Pair      string `json:"pair"`
	Side      string `json:"side"`
	Status    string `json:"status"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	FilledQty string `json:"filledQty"`
}

type TradePayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	CounterOrderID string `json:"counterOrderId"`
	Pair           string `json:"pair"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	Fee            string `json:"fee"`
	FeeCurrency    string `json:"feeCurrency"`
	IsMaker        bool   `json:"isMaker"`
}

type BalancePayload struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

type TxPayload struct {
	ID            string `json:"id"`
	Type          string `json:"txType"`
	Status        string `json:"status"`
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	Confirmations int    `json:"confirmations"`
}

// NewOrderEvent builds an order.updated event from an order snapshot.
func NewOrderEvent(order *core.Order, now time.Time) *Event {
	return &Event{
		Type:   EventOrderUpdated,
		UserID: order.UserID(),
		Order: &OrderPayload{
			ID:        order.ID(),
			Pair:      order.Pair().String(),
			Side:      order.Side().String(),
			Status:    string(order.Status()),
			Price:     order.Price().String(),
			Quantity:  order.Quantity().String(),
			FilledQty: order.FilledQuantity().String(),
		},
		CreatedAt: now,
	}
}

// NewTradeEvent builds a trade.created event addressed to the trade
// owner.
func NewTradeEvent(userID int64, trade *core.Trade, now time.Time) *Event {
	return &Event{
		Type:   EventTradeCreated,
		UserID: userID,
		Trade: &TradePayload{
			ID:             trade.ID,
			OrderID:        trade.OrderID,
			CounterOrderID: trade.CounterOrderID,
			Pair:           trade.Pair.String(),
			Price:          trade.Price.String(),
			Quantity:       trade.Quantity.String(),
			Fee:            trade.Fee.String(),
			FeeCurrency:    trade.FeeCurrency,
			IsMaker:        trade.IsMaker,
		},
		CreatedAt: now,
	}
}

// NewBalanceEvent builds a balance.updated event from a balance
// snapshot.
func NewBalanceEvent(bal core.Balance, now time.Time) *Event {
	return &Event{
		Type:   EventBalanceUpdated,
		UserID: bal.UserID,
		Balance: &BalancePayload{
			Currency:  bal.Currency,
			Available: bal.Available.String(),
			Locked:    bal.Locked.String(),
		},
		CreatedAt: now,
	}
}

// NewTxEvent builds a transaction.updated event from a deposit or
// withdrawal snapshot.
func NewTxEvent(tx *core.Transaction, now time.Time) *Event {
	return &Event{
		Type:   EventTxUpdated,
		UserID: tx.UserID(),
		Tx: &TxPayload{
			ID:            tx.ID(),
			Type:          string(tx.Type()),
			Status:        string(tx.Status()),
			Currency:      tx.Currency(),
			Amount:        tx.Amount().String(),
			Confirmations: tx.Confirmations(),
		},
		CreatedAt: now,
	}
}
