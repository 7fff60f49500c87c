package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
)

func TestSetupSenderFallsBackWithoutBroker(t *testing.T) {
	cfg := config.Default()
	// Nothing listens here; the dial probe must fail fast.
	cfg.Kafka.BrokerAddr = "127.0.0.1:1"

	sender := setupSender(cfg, zerolog.Nop())
	defer sender.Close()

	_, ok := sender.(*messaging.MockEventSender)
	assert.True(t, ok)
}

func TestSetupCacheDefaultsToMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.Enabled = false

	cache := setupCache(cfg, zerolog.Nop())
	defer cache.Close()

	_, ok := cache.(*book.MemoryCache)
	assert.True(t, ok)
}
