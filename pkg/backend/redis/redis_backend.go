package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/store"
)

// RedisOptions represents configuration options for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

var defaultOptions = &RedisOptions{
	Addr:     "localhost:6379",
	Password: "",
	DB:       0,
}

// SetDefaultRedisOptions sets the default options for Redis connections
func SetDefaultRedisOptions(options *RedisOptions) {
	defaultOptions = options
}

// GetRedisClient creates a new Redis client using the default options
func GetRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     defaultOptions.Addr,
		Password: defaultOptions.Password,
		DB:       defaultOptions.DB,
	})
}

// RedisBackend implements store.Backend with Redis storage. Orders, trades
// and transactions are stored as JSON values; sorted sets keyed by creation
// time index the open book sides and the query paths, so time priority
// survives a restart.
type RedisBackend struct {
	client   *redis.Client
	ctx      context.Context
	prefix   string
	ordersK  string
	tradesK  string
	txsK     string
	pendingK string
	logger   zerolog.Logger
}

var _ store.Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a new instance of RedisBackend
func NewRedisBackend(client *redis.Client, prefix string, logger zerolog.Logger) *RedisBackend {
	return &RedisBackend{
		client:   client,
		ctx:      context.Background(),
		prefix:   prefix,
		ordersK:  fmt.Sprintf("%s:orders", prefix),
		tradesK:  fmt.Sprintf("%s:trades", prefix),
		txsK:     fmt.Sprintf("%s:txs", prefix),
		pendingK: fmt.Sprintf("%s:deposits:pending", prefix),
		logger:   logger.With().Str("component", "redis_backend").Logger(),
	}
}

func (b *RedisBackend) orderKey(orderID string) string {
	return fmt.Sprintf("%s:order:%s", b.prefix, orderID)
}

func (b *RedisBackend) openKey(pair core.Pair, side core.Side) string {
	return fmt.Sprintf("%s:open:%s:%s", b.prefix, pair, side)
}

func (b *RedisBackend) txKey(txID string) string {
	return fmt.Sprintf("%s:tx:%s", b.prefix, txID)
}

func (b *RedisBackend) withdrawalsKey(userID int64, currency string) string {
	return fmt.Sprintf("%s:withdrawals:%d:%s", b.prefix, userID, currency)
}

// InsertOrder stores a new order and indexes it on its open book side.
func (b *RedisBackend) InsertOrder(order *core.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	ok, err := b.client.SetNX(b.ctx, b.orderKey(order.ID()), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrOrderExists
	}

	score := float64(order.CreatedAt().UnixNano())
	pipe := b.client.Pipeline()
	pipe.ZAdd(b.ctx, b.ordersK, redis.Z{Score: score, Member: order.ID()})
	pipe.ZAdd(b.ctx, b.openKey(order.Pair(), order.Side()), redis.Z{Score: score, Member: order.ID()})
	if _, err := pipe.Exec(b.ctx); err != nil {
		return err
	}
	return nil
}

// Order retrieves an order by ID, nil if unknown.
func (b *RedisBackend) Order(orderID string) *core.Order {
	data, err := b.client.Get(b.ctx, b.orderKey(orderID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to get order")
		}
		return nil
	}

	var order core.Order
	if err := json.Unmarshal(data, &order); err != nil {
		b.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to unmarshal order")
		return nil
	}
	return &order
}

// UpdateOrder overwrites an existing order. Orders that left the open
// state are dropped from their book side index.
func (b *RedisBackend) UpdateOrder(order *core.Order) error {
	key := b.orderKey(order.ID())
	exists, err := b.client.Exists(b.ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return core.ErrOrderNotFound
	}

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.Set(b.ctx, key, data, 0)
	if !order.IsOpen() {
		pipe.ZRem(b.ctx, b.openKey(order.Pair(), order.Side()), order.ID())
	}
	_, err = pipe.Exec(b.ctx)
	return err
}

// OpenOrders returns the open orders for one side of a pair in creation
// order.
func (b *RedisBackend) OpenOrders(pair core.Pair, side core.Side) []*core.Order {
	ids, err := b.client.ZRange(b.ctx, b.openKey(pair, side), 0, -1).Result()
	if err != nil {
		b.logger.Error().Err(err).Stringer("pair", pair).Msg("failed to list open orders")
		return nil
	}

	orders := make([]*core.Order, 0, len(ids))
	for _, id := range ids {
		order := b.Order(id)
		if order != nil && order.IsOpen() {
			orders = append(orders, order)
		}
	}
	return orders
}

// Orders returns orders matching the query, newest first.
func (b *RedisBackend) Orders(q store.OrderQuery) []*core.Order {
	ids, err := b.client.ZRevRange(b.ctx, b.ordersK, 0, -1).Result()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list orders")
		return nil
	}

	matched := make([]*core.Order, 0)
	for _, id := range ids {
		o := b.Order(id)
		if o == nil {
			continue
		}
		if q.UserID != 0 && o.UserID() != q.UserID {
			continue
		}
		if q.Pair != "" && o.Pair() != q.Pair {
			continue
		}
		if q.Side != nil && o.Side() != *q.Side {
			continue
		}
		if q.Status != "" && o.Status() != q.Status {
			continue
		}
		matched = append(matched, o)
	}

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end]
}

// InsertTrade appends an immutable trade record.
func (b *RedisBackend) InsertTrade(trade *core.Trade) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.LPush(b.ctx, b.tradesK, data)
	pipe.LPush(b.ctx, fmt.Sprintf("%s:%s", b.tradesK, trade.Pair), data)
	_, err = pipe.Exec(b.ctx)
	return err
}

// Trades returns the most recent trades for a pair, newest first.
func (b *RedisBackend) Trades(q store.TradeQuery) []*core.Trade {
	key := b.tradesK
	if q.Pair != "" {
		key = fmt.Sprintf("%s:%s", b.tradesK, q.Pair)
	}

	stop := int64(-1)
	if q.Limit > 0 {
		stop = int64(q.Limit) - 1
	}

	rows, err := b.client.LRange(b.ctx, key, 0, stop).Result()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list trades")
		return nil
	}

	trades := make([]*core.Trade, 0, len(rows))
	for _, row := range rows {
		var t core.Trade
		if err := json.Unmarshal([]byte(row), &t); err != nil {
			b.logger.Error().Err(err).Msg("failed to unmarshal trade")
			continue
		}
		trades = append(trades, &t)
	}
	return trades
}

// InsertTransaction stores a new deposit or withdrawal record and indexes
// it for settlement queries.
func (b *RedisBackend) InsertTransaction(tx *core.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	ok, err := b.client.SetNX(b.ctx, b.txKey(tx.ID()), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrTxExists
	}

	score := float64(tx.CreatedAt().UnixNano())
	pipe := b.client.Pipeline()
	pipe.ZAdd(b.ctx, b.txsK, redis.Z{Score: score, Member: tx.ID()})
	if tx.Type() == core.TxDeposit && tx.Status() == core.TxPending {
		pipe.SAdd(b.ctx, b.pendingK, tx.ID())
	}
	if tx.Type() == core.TxWithdrawal {
		pipe.ZAdd(b.ctx, b.withdrawalsKey(tx.UserID(), tx.Currency()), redis.Z{Score: score, Member: tx.ID()})
	}
	if _, err := pipe.Exec(b.ctx); err != nil {
		return err
	}
	return nil
}

// Transaction retrieves a transaction by ID, nil if unknown.
func (b *RedisBackend) Transaction(txID string) *core.Transaction {
	data, err := b.client.Get(b.ctx, b.txKey(txID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Error().Err(err).Str("tx_id", txID).Msg("failed to get transaction")
		}
		return nil
	}

	var tx core.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		b.logger.Error().Err(err).Str("tx_id", txID).Msg("failed to unmarshal transaction")
		return nil
	}
	return &tx
}

// UpdateTransaction overwrites an existing transaction. Deposits that left
// the pending state are dropped from the watcher index.
func (b *RedisBackend) UpdateTransaction(tx *core.Transaction) error {
	key := b.txKey(tx.ID())
	exists, err := b.client.Exists(b.ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return core.ErrTxNotFound
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.Set(b.ctx, key, data, 0)
	if tx.Type() == core.TxDeposit && tx.Status() != core.TxPending {
		pipe.SRem(b.ctx, b.pendingK, tx.ID())
	}
	_, err = pipe.Exec(b.ctx)
	return err
}

// Transactions returns transactions matching the query, newest first.
func (b *RedisBackend) Transactions(q store.TransactionQuery) []*core.Transaction {
	ids, err := b.client.ZRevRange(b.ctx, b.txsK, 0, -1).Result()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list transactions")
		return nil
	}

	matched := make([]*core.Transaction, 0)
	for _, id := range ids {
		tx := b.Transaction(id)
		if tx == nil {
			continue
		}
		if q.UserID != 0 && tx.UserID() != q.UserID {
			continue
		}
		if q.Type != "" && tx.Type() != q.Type {
			continue
		}
		if q.Status != "" && tx.Status() != q.Status {
			continue
		}
		if q.Currency != "" && tx.Currency() != q.Currency {
			continue
		}
		matched = append(matched, tx)
	}

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end]
}

// PendingDeposits returns the deposits still awaiting confirmations.
func (b *RedisBackend) PendingDeposits() []*core.Transaction {
	ids, err := b.client.SMembers(b.ctx, b.pendingK).Result()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list pending deposits")
		return nil
	}

	pending := make([]*core.Transaction, 0, len(ids))
	for _, id := range ids {
		tx := b.Transaction(id)
		if tx != nil && tx.Status() == core.TxPending {
			pending = append(pending, tx)
		}
	}
	return pending
}

// WithdrawnSince sums amount plus fee of the user's withdrawals created at
// or after the cutoff, failed ones excluded.
func (b *RedisBackend) WithdrawnSince(userID int64, currency string, since time.Time) fpdecimal.Decimal {
	ids, err := b.client.ZRangeByScore(b.ctx, b.withdrawalsKey(userID, currency), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixNano()),
		Max: "+inf",
	}).Result()
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list withdrawals")
		return fpdecimal.Zero
	}

	total := fpdecimal.Zero
	for _, id := range ids {
		tx := b.Transaction(id)
		if tx == nil {
			continue
		}
		if tx.Status() == core.TxFailed || tx.Status() == core.TxCancelled {
			continue
		}
		total = total.Add(tx.Amount()).Add(tx.Fee())
	}
	return total
}
