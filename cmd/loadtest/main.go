package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/fatih/color"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/exchange"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// loadConfig holds all load test parameters, read from environment variables.
type loadConfig struct {
	NumUsers        int
	OrdersPerUser   int
	OrdersPerSecond float64
	Pair            string
	MidPrice        float64
	PriceSpread     float64
	MaxQuantity     float64
	Duration        time.Duration
}

func readLoadConfig() loadConfig {
	v := viper.New()
	v.SetDefault("LOAD_NUM_USERS", 100)
	v.SetDefault("LOAD_ORDERS_PER_USER", 100)
	v.SetDefault("LOAD_ORDERS_PER_SECOND", 5000)
	v.SetDefault("LOAD_PAIR", "TON/USDT")
	v.SetDefault("LOAD_MID_PRICE", 5.0)
	v.SetDefault("LOAD_PRICE_SPREAD", 0.5)
	v.SetDefault("LOAD_MAX_QUANTITY", 10.0)
	v.SetDefault("LOAD_DURATION_SECONDS", 60)
	v.AutomaticEnv()

	return loadConfig{
		NumUsers:        v.GetInt("LOAD_NUM_USERS"),
		OrdersPerUser:   v.GetInt("LOAD_ORDERS_PER_USER"),
		OrdersPerSecond: v.GetFloat64("LOAD_ORDERS_PER_SECOND"),
		Pair:            v.GetString("LOAD_PAIR"),
		MidPrice:        v.GetFloat64("LOAD_MID_PRICE"),
		PriceSpread:     v.GetFloat64("LOAD_PRICE_SPREAD"),
		MaxQuantity:     v.GetFloat64("LOAD_MAX_QUANTITY"),
		Duration:        time.Duration(v.GetInt("LOAD_DURATION_SECONDS")) * time.Second,
	}
}

func main() {
	lc := readLoadConfig()

	cfg := config.Default()
	cfg.Exchange.Pairs = []string{lc.Pair}
	cfg.Exchange.MatchInterval = 50 * time.Millisecond
	// The rate limiter under test is the pacing limiter below, not the
	// per-user one; lift the per-user limit out of the way.
	cfg.Exchange.OrderRateLimit = lc.OrdersPerSecond
	cfg.Exchange.OrderRateBurst = int(lc.OrdersPerSecond)

	sender := messaging.NewMockEventSender()
	svc, err := exchange.New(cfg, memory.NewMemoryBackend(), sender, book.NewMemoryCache(cfg.Exchange.BookCacheTTL), zerolog.Nop())
	if err != nil {
		log.Fatalf("Failed to create exchange: %v", err)
	}

	pair, err := core.ParsePair(lc.Pair)
	if err != nil {
		log.Fatalf("Invalid pair %q: %v", lc.Pair, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lc.Duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("Received interrupt signal, cleaning up...")
		cancel()
	}()

	// Fund every user generously on both sides so placement never fails on
	// balance.
	funding := fpdecimal.FromFloat(lc.MidPrice * lc.MaxQuantity * float64(lc.OrdersPerUser) * 2)
	for u := 1; u <= lc.NumUsers; u++ {
		userID := int64(u)
		if err := svc.Ledger().Credit(userID, pair.Quote(), funding); err != nil {
			log.Fatalf("Failed to fund user %d: %v", userID, err)
		}
		if err := svc.Ledger().Credit(userID, pair.Base(), funding); err != nil {
			log.Fatalf("Failed to fund user %d: %v", userID, err)
		}
	}

	svc.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(lc.OrdersPerSecond), int(lc.OrdersPerSecond/10)+1)
	hist := hdrhistogram.New(1, int64(10*time.Second/time.Microsecond), 3)
	var histMu sync.Mutex
	var placed, failed int64
	var wg sync.WaitGroup

	log.Printf("Starting %d users, %d orders per user at %.0f orders/sec on %s...",
		lc.NumUsers, lc.OrdersPerUser, lc.OrdersPerSecond, pair)
	start := time.Now()

	for u := 1; u <= lc.NumUsers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(userID))
			for j := 0; j < lc.OrdersPerUser; j++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				begin := time.Now()
				_, err := svc.PlaceOrder(ctx, randomOrder(rng, userID, pair, lc))
				elapsed := time.Since(begin)

				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&placed, 1)

				histMu.Lock()
				hist.RecordValue(elapsed.Microseconds())
				histMu.Unlock()
			}
		}(int64(u))
	}

	wg.Wait()
	duration := time.Since(start)

	report(svc, pair, hist, placed, failed, duration)
}

func randomOrder(rng *rand.Rand, userID int64, pair core.Pair, lc loadConfig) store.PlaceOrderParams {
	side := core.Buy
	if rng.Intn(2) == 1 {
		side = core.Sell
	}
	price := lc.MidPrice + (rng.Float64()*2-1)*lc.PriceSpread
	qty := rng.Float64()*lc.MaxQuantity + 0.001
	return store.PlaceOrderParams{
		UserID:   userID,
		Pair:     pair,
		Side:     side,
		Type:     core.TypeLimit,
		Price:    fpdecimal.FromFloat(price),
		Quantity: fpdecimal.FromFloat(qty),
	}
}

func report(svc *exchange.Service, pair core.Pair, hist *hdrhistogram.Histogram, placed, failed int64, duration time.Duration) {
	trades, _ := svc.GetRecentTrades(pair, 0)

	header := color.New(color.FgCyan, color.Bold)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	header.Println("\n=== Load Test Report ===")
	fmt.Printf("Duration:        %v\n", duration.Round(time.Millisecond))
	good.Printf("Orders placed:   %d (%.0f/sec)\n", placed, float64(placed)/duration.Seconds())
	if failed > 0 {
		bad.Printf("Orders failed:   %d\n", failed)
	}
	fmt.Printf("Trades executed: %d\n", len(trades))

	header.Println("\nPlacement latency (us):")
	fmt.Printf("  p50:  %d\n", hist.ValueAtQuantile(50))
	fmt.Printf("  p90:  %d\n", hist.ValueAtQuantile(90))
	fmt.Printf("  p99:  %d\n", hist.ValueAtQuantile(99))
	fmt.Printf("  max:  %d\n", hist.Max())
}
