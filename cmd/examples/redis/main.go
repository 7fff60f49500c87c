package main

import (
	"context"
	"fmt"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	redisbackend "github.com/zametkikostik/tonhub-exchange/pkg/backend/redis"
	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/engine"
	"github.com/zametkikostik/tonhub-exchange/pkg/ledger"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

const (
	redisAddr = "localhost:6379"
	redisDB   = 0
	prefix    = "tonhub"
)

func main() {
	// Connect to Redis
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password set
		DB:       redisDB,
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	fmt.Printf("Redis connection established: %s\n", pong)

	// Flush the database to start fresh
	client.FlushDB(context.Background())

	// Same wiring as the basic example, but orders, trades and
	// transactions persist in Redis.
	pair := core.Pair("TON/USDT")
	pairs, err := core.NewPairSet([]string{"TON/USDT"})
	if err != nil {
		panic(err)
	}

	ldgr := ledger.New(zerolog.Nop())
	feeRate := fpdecimal.FromFloat(0.001)
	backend := redisbackend.NewRedisBackend(client, prefix, zerolog.Nop())
	orderStore := store.New(backend, ldgr, pairs, feeRate, zerolog.Nop())
	eng := engine.New(orderStore, ldgr, messaging.NewMockEventSender(), feeRate, zerolog.Nop())

	const seller, buyer = 1, 2
	if err := ldgr.Credit(seller, "TON", fpdecimal.FromInt(10)); err != nil {
		panic(err)
	}
	if err := ldgr.Credit(buyer, "USDT", fpdecimal.FromInt(100)); err != nil {
		panic(err)
	}

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

	// Print Redis storage details
	fmt.Println("\nOrders stored in Redis:")
	jsonData, _ := client.Get(context.Background(), fmt.Sprintf("%s:order:%s", prefix, sellOrder.ID())).Result()
	fmt.Printf("- Sell Order Redis data: %s\n", jsonData)

	// Re-read through the store; both reads come back from Redis.
	sellOrder, _ = orderStore.Order(sellOrder.ID(), seller)
	buyOrder, _ = orderStore.Order(buyOrder.ID(), buyer)

	fmt.Println("\nSummary of orders:")
	fmt.Printf("- Sell Order: ID=%s, Status=%s, Filled=%s/%s\n",
		sellOrder.ID(), sellOrder.Status(), sellOrder.FilledQuantity(), sellOrder.Quantity())
	fmt.Printf("- Buy Order: ID=%s, Status=%s, Filled=%s/%s\n",
		buyOrder.ID(), buyOrder.Status(), buyOrder.FilledQuantity(), buyOrder.Quantity())
}
