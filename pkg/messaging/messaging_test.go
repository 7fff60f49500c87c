package messaging_test

import (
	"testing"
	"time"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/pkg/core"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
)

func TestNewOrderEventCarriesFillState(t *testing.T) {
	now := time.Now()
	order, err := core.NewLimitOrder("order-1", 7, core.Pair("TON/USDT"), core.Buy,
		fpdecimal.FromInt(10), fpdecimal.FromInt(5), now)
	require.NoError(t, err)
	require.NoError(t, order.Fill(fpdecimal.FromInt(4), now))

	event := messaging.NewOrderEvent(order, now)
	assert.Equal(t, messaging.EventOrderUpdated, event.Type)
	assert.Equal(t, int64(7), event.UserID)
	assert.Equal(t, "order-1", event.Key())

	require.NotNil(t, event.Order)
	assert.Equal(t, string(core.StatusPartiallyFilled), event.Order.Status)
	assert.Equal(t, "10", event.Order.Quantity)
	assert.Equal(t, "4", event.Order.FilledQty)
}

func TestEventKeyPerEntity(t *testing.T) {
	now := time.Now()

	trade := messaging.NewTradeEvent(7, &core.Trade{ID: "t-1", OrderID: "order-1"}, now)
	assert.Equal(t, "order-1", trade.Key())

	balance := messaging.NewBalanceEvent(core.Balance{UserID: 7, Currency: "TON"}, now)
	assert.Equal(t, "", balance.Key())
}
