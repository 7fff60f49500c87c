package core

import (
	"encoding/json"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Trade is one side of an executed match. Two records are produced per
// match, linked through CounterOrderID. Trades are immutable once created.
type Trade struct {
	ID             string
	OrderID        string
	CounterOrderID string
	Pair           Pair
	Price          fpdecimal.Decimal
	Quantity       fpdecimal.Decimal
	Fee            fpdecimal.Decimal
	FeeCurrency    string
	IsMaker        bool
	CreatedAt      time.Time
}

// Total returns price times quantity in the quote currency.
func (t *Trade) Total() fpdecimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// MarshalJSON implements Marshaler interface
func (t *Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string    `json:"tradeId"`
		OrderID        string    `json:"orderId"`
		CounterOrderID string    `json:"counterOrderId"`
		Pair           string    `json:"pair"`
		Price          string    `json:"price"`
		Quantity       string    `json:"quantity"`
		Fee            string    `json:"fee"`
		FeeCurrency    string    `json:"feeCurrency"`
		IsMaker        bool      `json:"isMaker"`
		CreatedAt      time.Time `json:"createdAt"`
	}{
		ID:             t.ID,
		OrderID:        t.OrderID,
		CounterOrderID: t.CounterOrderID,
		Pair:           t.Pair.String(),
		Price:          t.Price.String(),
		Quantity:       t.Quantity.String(),
		Fee:            t.Fee.String(),
		FeeCurrency:    t.FeeCurrency,
		IsMaker:        t.IsMaker,
		CreatedAt:      t.CreatedAt,
	})
}

// UnmarshalJSON implements Unmarshaler interface
func (t *Trade) UnmarshalJSON(data []byte) error {
	var tj struct {
		ID             string    `json:"tradeId"`
		OrderID        string    `json:"orderId"`
		CounterOrderID string    `json:"counterOrderId"`
		Pair           string    `json:"pair"`
		Price          string    `json:"price"`
		Quantity       string    `json:"quantity"`
		Fee            string    `json:"fee"`
		FeeCurrency    string    `json:"feeCurrency"`
		IsMaker        bool      `json:"isMaker"`
		CreatedAt      time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}

	pair, err := ParsePair(tj.Pair)
	if err != nil {
		return err
	}

	t.ID = tj.ID
	t.OrderID = tj.OrderID
	t.CounterOrderID = tj.CounterOrderID
	t.Pair = pair
	t.Price = parseDecimal(tj.Price)
	t.Quantity = parseDecimal(tj.Quantity)
	t.Fee = parseDecimal(tj.Fee)
	t.FeeCurrency = tj.FeeCurrency
	t.IsMaker = tj.IsMaker
	t.CreatedAt = tj.CreatedAt
	return nil
}
