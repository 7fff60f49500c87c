package main

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/engine"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

func main() {
	pair := core.Pair("TON/USDT")
	pairs, err := core.NewPairSet([]string{"TON/USDT"})
	if err != nil {
		panic(err)
	}

	// Wire the ledger, order store and matching engine by hand.
	ldgr := ledger.New(zerolog.Nop())
	feeRate := fpdecimal.FromFloat(0.001)
	orderStore := store.New(memory.NewMemoryBackend(), ldgr, pairs, feeRate, zerolog.Nop())
	eng := engine.New(orderStore, ldgr, messaging.NewMockEventSender(), feeRate, zerolog.Nop())

	// Fund both sides.
	const seller, buyer = 1, 2
	if err := ldgr.Credit(seller, "TON", fpdecimal.FromInt(10)); err != nil {
		panic(err)
	}
	if err := ldgr.Credit(buyer, "USDT", fpdecimal.FromInt(100)); err != nil {
		panic(err)
	}

	// Rest a sell, then cross it with a smaller buy.
	sellOrder, err := orderStore.Create(store.PlaceOrderParams{
		UserID: seller, Pair: pair, Side: core.Sell, Type: core.TypeLimit,
		Price: fpdecimal.FromInt(10), Quantity: fpdecimal.FromInt(10),
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created sell order: %s\n", sellOrder.ID())

	buyOrder, err := orderStore.Create(store.PlaceOrderParams{
		UserID: buyer, Pair: pair, Side: core.Buy, Type: core.TypeLimit,
		Price: fpdecimal.FromInt(10), Quantity: fpdecimal.FromInt(5),
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created buy order: %s\n", buyOrder.ID())

	trades, err := eng.MatchPair(context.Background(), pair)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Executed %d trade records\n", len(trades))

	// Re-read the orders; the store mutates its own copies.
	sellOrder, _ = orderStore.Order(sellOrder.ID(), seller)
	buyOrder, _ = orderStore.Order(buyOrder.ID(), buyer)

	fmt.Println("\nSummary of orders:")
	fmt.Printf("- Sell Order: ID=%s, Status=%s, Filled=%s/%s\n",
		sellOrder.ID(), sellOrder.Status(), sellOrder.FilledQuantity(), sellOrder.Quantity())
	fmt.Printf("- Buy Order: ID=%s, Status=%s, Filled=%s/%s\n",
		buyOrder.ID(), buyOrder.Status(), buyOrder.FilledQuantity(), buyOrder.Quantity())

	fmt.Println("\nBalances after the match:")
	fmt.Printf("- Seller: %s TON, %s USDT\n",
		ldgr.Balance(seller, "TON").Available, ldgr.Balance(seller, "USDT").Available)
	fmt.Printf("- Buyer:  %s TON, %s USDT\n",
		ldgr.Balance(buyer, "TON").Available, ldgr.Balance(buyer, "USDT").Available)
}
