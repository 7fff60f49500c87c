package main

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/engine"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// A demonstration of the matching engine: price levels, partial fills,
// price-time priority and a market order sweeping the book.
func main() {
	pair := core.Pair("TON/USDT")
	pairs, err := core.NewPairSet([]string{"TON/USDT"})
	if err != nil {
		panic(err)
	}

	ldgr := ledger.New(zerolog.Nop())
	feeRate := fpdecimal.FromFloat(0.001)
	orderStore := store.New(memory.NewMemoryBackend(), ldgr, pairs, feeRate, zerolog.Nop())
	eng := engine.New(orderStore, ldgr, messaging.NewMockEventSender(), feeRate, zerolog.Nop())
	books := book.NewProjector(orderStore, 10)
	ctx := context.Background()

	const maker, taker = 1, 2
	must(ldgr.Credit(maker, "TON", fpdecimal.FromInt(100)))
	must(ldgr.Credit(taker, "USDT", fpdecimal.FromInt(1000)))

	fmt.Println("===== ORDER MATCHING DEMONSTRATION =====")
	fmt.Println()

	// Step 1: rest asks at three price levels.
	fmt.Println("STEP 1: Adding sell orders to the order book")
	fmt.Println("------------------------------------------")

	for _, level := range []struct {
		price, qty float64
	}{
		{10.0, 5.0},
		{10.5, 3.0},
		{11.0, 7.0},
	} {
		order, err := orderStore.Create(store.PlaceOrderParams{
			UserID: maker, Pair: pair, Side: core.Sell, Type: core.TypeLimit,
			Price: fpdecimal.FromFloat(level.price), Quantity: fpdecimal.FromFloat(level.qty),
		})
		must(err)
		fmt.Printf("Added sell order: ID=%s, Price=%s, Quantity=%s\n",
			order.ID(), order.Price(), order.Quantity())
	}
	printBook(books, pair)

	// Step 2: a buy that crosses only the best ask, partially.
	fmt.Println("\nSTEP 2: Adding a buy order that matches the lowest sell price")
	fmt.Println("----------------------------------------------------------")

	partial, err := orderStore.Create(store.PlaceOrderParams{
		UserID: taker, Pair: pair, Side: core.Buy, Type: core.TypeLimit,
		Price: fpdecimal.FromInt(10), Quantity: fpdecimal.FromInt(3),
	})
	must(err)
	trades, err := eng.MatchPair(ctx, pair)
	must(err)
	printTrades(trades)

	partial, _ = orderStore.Order(partial.ID(), taker)
	fmt.Printf("Buy order status: %s, filled %s/%s\n",
		partial.Status(), partial.FilledQuantity(), partial.Quantity())
	printBook(books, pair)

	// Step 3: a market buy sweeping across the remaining levels.
	fmt.Println("\nSTEP 3: A market buy sweeping multiple price levels")
	fmt.Println("---------------------------------------------------")

	sweep, err := orderStore.Create(store.PlaceOrderParams{
		UserID: taker, Pair: pair, Side: core.Buy, Type: core.TypeMarket,
		Price: fpdecimal.FromInt(11), Quantity: fpdecimal.FromInt(6),
	})
	must(err)
	trades, err = eng.MatchPair(ctx, pair)
	must(err)
	printTrades(trades)

	sweep, _ = orderStore.Order(sweep.ID(), taker)
	fmt.Printf("Market order status: %s, filled %s/%s\n",
		sweep.Status(), sweep.FilledQuantity(), sweep.Quantity())
	printBook(books, pair)

	fmt.Println("\nFinal balances:")
	fmt.Printf("- Maker: %s TON, %s USDT\n",
		ldgr.Balance(maker, "TON").Available, ldgr.Balance(maker, "USDT").Available)
	fmt.Printf("- Taker: %s TON, %s USDT\n",
		ldgr.Balance(taker, "TON").Available, ldgr.Balance(taker, "USDT").Available)
}

func printTrades(trades []*core.Trade) {
	fmt.Printf("Executed %d trade records:\n", len(trades))
	for _, t := range trades {
		role := "taker"
		if t.IsMaker {
			role = "maker"
		}
		fmt.Printf("  %s: %s @ %s (%s, fee %s %s)\n",
			t.ID, t.Quantity, t.Price, role, t.Fee, t.FeeCurrency)
	}
}

func printBook(books *book.Projector, pair core.Pair) {
	snap := books.Snapshot(pair)

	fmt.Println("\nCurrent order book:")
	for _, level := range snap.Asks {
		fmt.Printf("  ask %s x %s\n", level.Price, level.Quantity)
	}
	for _, level := range snap.Bids {
		fmt.Printf("  bid %s x %s\n", level.Price, level.Quantity)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
