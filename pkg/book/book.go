package book

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nikolaydubina/fpdecimal"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// Level is one aggregated price level of the book.
type Level struct {
	Price    fpdecimal.Decimal `json:"-"`
	Quantity fpdecimal.Decimal `json:"-"`
}

// MarshalJSON renders the level as a ["price", "quantity"] tuple.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{l.Price.String(), l.Quantity.String()})
}

// UnmarshalJSON parses the ["price", "quantity"] tuple form.
func (l *Level) UnmarshalJSON(data []byte) error {
	var tuple [2]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	price, err := fpdecimal.FromString(tuple[0])
	if err != nil {
		return err
	}
	qty, err := fpdecimal.FromString(tuple[1])
	if err != nil {
		return err
	}
	l.Price = price
	l.Quantity = qty
	return nil
}

// Snapshot is a point-in-time aggregated view of one pair's book.
type Snapshot struct {
	Pair      core.Pair `json:"pair"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Projector builds book snapshots from the open orders in the store.
type Projector struct {
	store *store.OrderStore
	depth int
	now   func() time.Time
}

// NewProjector creates a projector truncating each side to depth
// levels. Zero depth keeps every level.
func NewProjector(orderStore *store.OrderStore, depth int) *Projector {
	return &Projector{
		store: orderStore,
		depth: depth,
		now:   time.Now,
	}
}

// Snapshot aggregates the open remainders by price: bids best (highest)
// first, asks best (lowest) first. Market sells carry no price and are
// not part of the projection.
func (p *Projector) Snapshot(pair core.Pair) *Snapshot {
	return &Snapshot{
		Pair:      pair,
		Bids:      p.side(pair, core.Buy),
		Asks:      p.side(pair, core.Sell),
		UpdatedAt: p.now(),
	}
}

func (p *Projector) side(pair core.Pair, side core.Side) []Level {
	byPrice := make(map[fpdecimal.Decimal]fpdecimal.Decimal)
	for _, order := range p.store.OpenOrders(pair, side) {
		if order.Price().Equal(fpdecimal.Zero) {
			continue
		}
		byPrice[order.Price()] = byPrice[order.Price()].Add(order.Remaining())
	}

	levels := make([]Level, 0, len(byPrice))
	for price, qty := range byPrice {
		if qty.GreaterThan(fpdecimal.Zero) {
			levels = append(levels, Level{Price: price, Quantity: qty})
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		if side == core.Buy {
			return levels[j].Price.LessThan(levels[i].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	if p.depth > 0 && len(levels) > p.depth {
		levels = levels[:p.depth]
	}
	return levels
}
