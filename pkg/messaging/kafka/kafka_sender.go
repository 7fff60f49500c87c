package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
)

// KafkaEventSender implements EventSender using Kafka
type KafkaEventSender struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventSender creates a new Kafka event sender
func NewKafkaEventSender(brokerAddr, topic string) (*KafkaEventSender, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaEventSender{
		writer: writer,
		topic:  topic,
	}, nil
}

// Send publishes one event to Kafka, keyed by the event's entity ID so
// per-entity ordering survives partitioning.
func (k *KafkaEventSender) Send(ctx context.Context, event *messaging.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.CreatedAt,
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(sendCtx, msg); err != nil {
		return fmt.Errorf("failed to send event to Kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *KafkaEventSender) Close() error {
	return k.writer.Close()
}

// Ensure KafkaEventSender implements EventSender
var _ messaging.EventSender = (*KafkaEventSender)(nil)
