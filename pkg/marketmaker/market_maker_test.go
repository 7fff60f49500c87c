package marketmaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

type fixedPriceFetcher struct {
	price float64
}

func (f *fixedPriceFetcher) FetchPrice(ctx context.Context) (float64, error) { return f.price, nil }
func (f *fixedPriceFetcher) Close() error                                    { return nil }

type recordingPlacer struct {
	mu        sync.Mutex
	placed    []store.PlaceOrderParams
	cancelled []string
	filled    map[string]bool
}

func (p *recordingPlacer) PlaceOrder(ctx context.Context, params store.PlaceOrderParams) (*core.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, params)
	return core.NewLimitOrder(uuid.NewString(), params.UserID, params.Pair, params.Side, params.Quantity, params.Price, time.Now())
}

func (p *recordingPlacer) CancelOrder(ctx context.Context, orderID string, userID int64) (*core.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.filled[orderID] {
		return nil, core.ErrOrderTerminal
	}
	p.cancelled = append(p.cancelled, orderID)
	return nil, nil
}

func (p *recordingPlacer) counts() (placed, cancelled int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.placed), len(p.cancelled)
}

func newTestMarketMaker(t *testing.T, placer OrderPlacer) *MarketMaker {
	t.Helper()

	cfg := testStrategyConfig()
	cfg.UpdateInterval = 20 * time.Millisecond

	strategy, err := NewLayeredSymmetricQuoting(cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create strategy: %v", err)
	}

	mm, err := NewMarketMaker(cfg, testLogger(), placer, &fixedPriceFetcher{price: 5.0}, strategy)
	if err != nil {
		t.Fatalf("Failed to create market maker: %v", err)
	}
	return mm
}

func TestMarketMakerRefreshesQuotes(t *testing.T) {
	placer := &recordingPlacer{}
	mm := newTestMarketMaker(t, placer)

	ctx := context.Background()
	if err := mm.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		placed, _ := placer.counts()
		if placed >= 12 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Market maker never refreshed its ladder, placed %d orders", placed)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := mm.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Shutdown pulls the final ladder, so every placed order ends up
	// cancelled.
	placed, cancelled := placer.counts()
	if cancelled != placed {
		t.Errorf("Expected %d cancellations, got %d", placed, cancelled)
	}
}

func TestMarketMakerToleratesFilledQuotes(t *testing.T) {
	placer := &recordingPlacer{filled: map[string]bool{}}
	mm := newTestMarketMaker(t, placer)

	// Seed an already-filled quote; cancelAllOrders must treat it as gone
	// rather than fail.
	placer.filled["gone"] = true
	mm.activeOrders.Store("gone", true)

	if err := mm.cancelAllOrders(context.Background()); err != nil {
		t.Fatalf("cancelAllOrders failed on a filled quote: %v", err)
	}

	if _, tracked := mm.activeOrders.Load("gone"); tracked {
		t.Errorf("Expected filled quote to be dropped from tracking")
	}
}

var _ PriceFetcher = (*fixedPriceFetcher)(nil)
var _ OrderPlacer = (*recordingPlacer)(nil)
