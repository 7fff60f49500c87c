package core

import (
	"encoding/json"
	"time"

	"github.com/nikolaydubina/fpdecimal"
)

// Side represents buy or sell side of the order
type Side int

// Order sides
const (
	Sell Side = iota
	Buy
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide converts a side string to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return Sell, ErrInvalidSide
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType represents type of the order
type OrderType string

// Order types
const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

// Order statuses. FILLED, CANCELLED and REJECTED are terminal; an order
// never leaves a terminal status.
const (
	StatusPending         OrderStatus = "PENDING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether the status is absorbing.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order stores information about an order resting in, or removed from, the
// book. All mutation goes through methods so that filledQuantity stays
// monotone and terminal statuses are absorbing.
type Order struct {
	id          string
	userID      int64
	pair        Pair
	side        Side
	orderType   OrderType
	status      OrderStatus
	price       fpdecimal.Decimal
	quantity    fpdecimal.Decimal
	filledQty   fpdecimal.Decimal
	fee         fpdecimal.Decimal
	createdAt   time.Time
	updatedAt   time.Time
	filledAt    *time.Time
	cancelledAt *time.Time
}

// NewLimitOrder creates a pending limit order.
func NewLimitOrder(id string, userID int64, pair Pair, side Side, quantity, price fpdecimal.Decimal, now time.Time) (*Order, error) {
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidPrice
	}

	return &Order{
		id:        id,
		userID:    userID,
		pair:      pair,
		side:      side,
		orderType: TypeLimit,
		status:    StatusPending,
		price:     price,
		quantity:  quantity,
		filledQty: fpdecimal.Zero,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// NewMarketOrder creates a pending market order. A market buy carries the
// caller-supplied reference price used for the quote reservation; the book
// is processed asynchronously, so there is no implicit best-price lookup.
// A market sell carries a zero price and crosses any bid.
func NewMarketOrder(id string, userID int64, pair Pair, side Side, quantity, refPrice fpdecimal.Decimal, now time.Time) (*Order, error) {
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return nil, ErrInvalidQuantity
	}

	price := fpdecimal.Zero
	if side == Buy {
		if refPrice.LessThanOrEqual(fpdecimal.Zero) {
			return nil, ErrPriceRequired
		}
		price = refPrice
	}

	return &Order{
		id:        id,
		userID:    userID,
		pair:      pair,
		side:      side,
		orderType: TypeMarket,
		status:    StatusPending,
		price:     price,
		quantity:  quantity,
		filledQty: fpdecimal.Zero,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ID returns the order id
func (o *Order) ID() string { return o.id }

// UserID returns the owning user's id
func (o *Order) UserID() int64 { return o.userID }

// Pair returns the trading pair
func (o *Order) Pair() Pair { return o.pair }

// Side returns the side of the order
func (o *Order) Side() Side { return o.side }

// Type returns the order type
func (o *Order) Type() OrderType { return o.orderType }

// Status returns the lifecycle status
func (o *Order) Status() OrderStatus { return o.status }

// Price returns the limit price, or the reference price for a market buy.
func (o *Order) Price() fpdecimal.Decimal { return o.price }

// Quantity returns the original quantity
func (o *Order) Quantity() fpdecimal.Decimal { return o.quantity }

// FilledQuantity returns the cumulative filled quantity
func (o *Order) FilledQuantity() fpdecimal.Decimal { return o.filledQty }

// Fee returns the fee estimated at placement
func (o *Order) Fee() fpdecimal.Decimal { return o.fee }

// CreatedAt returns the placement time, used for time priority.
func (o *Order) CreatedAt() time.Time { return o.createdAt }

// UpdatedAt returns the last mutation time
func (o *Order) UpdatedAt() time.Time { return o.updatedAt }

// FilledAt returns the fill completion time, if filled.
func (o *Order) FilledAt() *time.Time { return o.filledAt }

// CancelledAt returns the cancellation time, if cancelled.
func (o *Order) CancelledAt() *time.Time { return o.cancelledAt }

// Remaining returns quantity minus filledQuantity.
func (o *Order) Remaining() fpdecimal.Decimal {
	return o.quantity.Sub(o.filledQty)
}

// IsOpen reports whether the order can still match.
func (o *Order) IsOpen() bool {
	return o.status == StatusPending || o.status == StatusPartiallyFilled
}

// IsMarketOrder returns true if the order is MARKET
func (o *Order) IsMarketOrder() bool { return o.orderType == TypeMarket }

// IsLimitOrder returns true if the order is LIMIT
func (o *Order) IsLimitOrder() bool { return o.orderType == TypeLimit }

// SetFee records the fee estimated at placement.
func (o *Order) SetFee(fee fpdecimal.Decimal) { o.fee = fee }

// Fill applies an execution of the given quantity. filledQuantity never
// decreases and never exceeds quantity; reaching quantity flips the order
// to FILLED.
func (o *Order) Fill(quantity fpdecimal.Decimal, now time.Time) error {
	if !o.IsOpen() {
		return ErrOrderTerminal
	}
	if quantity.LessThanOrEqual(fpdecimal.Zero) || quantity.GreaterThan(o.Remaining()) {
		return ErrInvalidQuantity
	}

	o.filledQty = o.filledQty.Add(quantity)
	o.updatedAt = now
	if o.filledQty.GreaterThanOrEqual(o.quantity) {
		o.status = StatusFilled
		t := now
		o.filledAt = &t
	} else {
		o.status = StatusPartiallyFilled
	}
	return nil
}

// MarkCancelled flips an open order to CANCELLED.
func (o *Order) MarkCancelled(now time.Time) error {
	if !o.IsOpen() {
		return ErrOrderTerminal
	}
	o.status = StatusCancelled
	o.updatedAt = now
	t := now
	o.cancelledAt = &t
	return nil
}

// Clone returns a copy detached from the store's instance.
func (o *Order) Clone() *Order {
	c := *o
	if o.filledAt != nil {
		t := *o.filledAt
		c.filledAt = &t
	}
	if o.cancelledAt != nil {
		t := *o.cancelledAt
		c.cancelledAt = &t
	}
	return &c
}

// MarshalJSON implements custom JSON marshaling for Order
func (o *Order) MarshalJSON() ([]byte, error) {
	type orderJSON struct {
		ID             string      `json:"orderId"`
		UserID         int64       `json:"userId"`
		Pair           string      `json:"pair"`
		Side           string      `json:"side"`
		Type           OrderType   `json:"type"`
		Status         OrderStatus `json:"status"`
		Price          string      `json:"price"`
		Quantity       string      `json:"quantity"`
		FilledQuantity string      `json:"filledQuantity"`
		Fee            string      `json:"fee"`
		CreatedAt      time.Time   `json:"createdAt"`
		UpdatedAt      time.Time   `json:"updatedAt"`
		FilledAt       *time.Time  `json:"filledAt,omitempty"`
		CancelledAt    *time.Time  `json:"cancelledAt,omitempty"`
	}

	return json.Marshal(orderJSON{
		ID:             o.id,
		UserID:         o.userID,
		Pair:           o.pair.String(),
		Side:           o.side.String(),
		Type:           o.orderType,
		Status:         o.status,
		Price:          o.price.String(),
		Quantity:       o.quantity.String(),
		FilledQuantity: o.filledQty.String(),
		Fee:            o.fee.String(),
		CreatedAt:      o.createdAt,
		UpdatedAt:      o.updatedAt,
		FilledAt:       o.filledAt,
		CancelledAt:    o.cancelledAt,
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Order
func (o *Order) UnmarshalJSON(data []byte) error {
	type orderJSON struct {
		ID             string      `json:"orderId"`
		UserID         int64       `json:"userId"`
		Pair           string      `json:"pair"`
		Side           string      `json:"side"`
		Type           OrderType   `json:"type"`
		Status         OrderStatus `json:"status"`
		Price          string      `json:"price"`
		Quantity       string      `json:"quantity"`
		FilledQuantity string      `json:"filledQuantity"`
		Fee            string      `json:"fee"`
		CreatedAt      time.Time   `json:"createdAt"`
		UpdatedAt      time.Time   `json:"updatedAt"`
		FilledAt       *time.Time  `json:"filledAt,omitempty"`
		CancelledAt    *time.Time  `json:"cancelledAt,omitempty"`
	}

	var oj orderJSON
	if err := json.Unmarshal(data, &oj); err != nil {
		return err
	}

	pair, err := ParsePair(oj.Pair)
	if err != nil {
		return err
	}
	side, err := ParseSide(oj.Side)
	if err != nil {
		return err
	}

	o.id = oj.ID
	o.userID = oj.UserID
	o.pair = pair
	o.side = side
	o.orderType = oj.Type
	o.status = oj.Status
	o.price = parseDecimal(oj.Price)
	o.quantity = parseDecimal(oj.Quantity)
	o.filledQty = parseDecimal(oj.FilledQuantity)
	o.fee = parseDecimal(oj.Fee)
	o.createdAt = oj.CreatedAt
	o.updatedAt = oj.UpdatedAt
	o.filledAt = oj.FilledAt
	o.cancelledAt = oj.CancelledAt
	return nil
}

func parseDecimal(s string) fpdecimal.Decimal {
	d, err := fpdecimal.FromString(s)
	if err != nil {
		return fpdecimal.Zero
	}
	return d
}
