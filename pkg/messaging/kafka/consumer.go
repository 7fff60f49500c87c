package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
)

// newConsumer is swapped out in tests.
var newConsumer = func(addrs []string, config *sarama.Config) (sarama.Consumer, error) {
	return sarama.NewConsumer(addrs, config)
}

// EventConsumer reads exchange events back off Kafka. It is used by the
// dev server to echo published events into the log.
type EventConsumer struct {
	consumer sarama.Consumer
	topic    string
	done     chan struct{}
}

// NewEventConsumer connects a Sarama consumer to the given broker.
func NewEventConsumer(brokerAddr, topic string) (*EventConsumer, error) {
	consumer, err := newConsumer([]string{brokerAddr}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &EventConsumer{
		consumer: consumer,
		topic:    topic,
		done:     make(chan struct{}),
	}, nil
}

// ConsumeEvents reads events from partition 0 and hands each one to the
// handler until Close is called.
func (c *EventConsumer) ConsumeEvents(handler func(*messaging.Event) error) error {
	partitionConsumer, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	for {
		select {
		case msg, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}
			var event messaging.Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				continue
			}
			if err := handler(&event); err != nil {
				return err
			}
		case <-c.done:
			return nil
		}
	}
}

// Close stops consumption and closes the underlying consumer.
func (c *EventConsumer) Close() error {
	close(c.done)
	return c.consumer.Close()
}

// SetupConsumer starts a background consumer that logs every published
// event. Useful in development against a local broker; the server keeps
// running without it when the broker is unreachable.
func SetupConsumer(brokerAddr, topic string, logger zerolog.Logger) (*EventConsumer, error) {
	consumer, err := NewEventConsumer(brokerAddr, topic)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	go func() {
		logger.Info().Msg("Starting Kafka consumer")
		err := consumer.ConsumeEvents(func(event *messaging.Event) error {
			logger.Info().
				Str("type", string(event.Type)).
				Int64("user_id", event.UserID).
				Str("key", event.Key()).
				Msg("Received event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer, nil
}
