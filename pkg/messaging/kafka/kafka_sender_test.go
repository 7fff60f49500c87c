package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/testutil"
)

func TestKafkaEventSender_SendIntegration(t *testing.T) {
	testutil.SkipIfKafkaUnavailable(t, "localhost:9092")

	sender, err := NewKafkaEventSender("localhost:9092", "exchange-events")
	require.NoError(t, err)
	defer sender.Close()

	event := &messaging.Event{
		Type:      messaging.EventBalanceUpdated,
		UserID:    1,
		CreatedAt: time.Now().UTC(),
		Balance: &messaging.BalancePayload{
			Currency:  "TON",
			Available: "10.000",
			Locked:    "0.000",
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sender.Send(ctx, event))
}
