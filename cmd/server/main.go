package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zametkikostik/tonhub-exchange/config"
	"github.com/zametkikostik/tonhub-exchange/pkg/backend/memory"
	"github.com/zametkikostik/tonhub-exchange/pkg/book"
	"github.com/zametkikostik/tonhub-exchange/pkg/exchange"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging"
	"github.com/zametkikostik/tonhub-exchange/pkg/messaging/kafka"
	"github.com/zametkikostik/tonhub-exchange/pkg/otel"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Server.LogFormat == "pretty" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	ctx := logger.WithContext(context.Background())

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceName:      "tonhub-exchange",
		ServiceVersion:   "1.0.0",
		Endpoint:         cfg.Otel.Endpoint,
		CollectorEnabled: cfg.Otel.CollectorEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer cleanup()

	if err := otel.StartRuntimeMetrics(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start runtime metrics")
	}

	// Event sender: Kafka when the broker is reachable, a local recorder
	// otherwise so the exchange still runs on a developer machine.
	sender := setupSender(cfg, logger)
	defer sender.Close()

	// Kafka consumer (optional). The consumer is for developer purpose which
	// helps pretty print the events in the queue.
	consumer, err := kafka.SetupConsumer(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic, logger)
	if err == nil && consumer != nil {
		defer consumer.Close()
	}

	// Order book snapshot cache
	cache := setupCache(cfg, logger)
	defer cache.Close()

	svc, err := exchange.New(cfg, memory.NewMemoryBackend(), sender, cache, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create exchange service")
	}

	svc.Start(ctx)
	logger.Info().
		Strs("pairs", cfg.Exchange.Pairs).
		Dur("match_interval", cfg.Exchange.MatchInterval).
		Msg("Exchange started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Exchange shutdown error")
	}

	logger.Info().Msg("Shutdown complete")
}

func setupSender(cfg *config.Config, logger zerolog.Logger) messaging.EventSender {
	// kafka-go connects lazily, so probe the broker up front and fall back to
	// a local recorder when it is down instead of failing on the first event.
	conn, err := net.DialTimeout("tcp", cfg.Kafka.BrokerAddr, 2*time.Second)
	if err != nil {
		logger.Warn().Err(err).Str("broker", cfg.Kafka.BrokerAddr).
			Msg("Kafka unavailable, events will not be delivered")
		return messaging.NewMockEventSender()
	}
	conn.Close()

	sender, err := kafka.NewKafkaEventSender(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka event sender")
		return messaging.NewMockEventSender()
	}
	logger.Info().Str("broker", cfg.Kafka.BrokerAddr).Str("topic", cfg.Kafka.Topic).
		Msg("Kafka event sender ready")
	return sender
}

func setupCache(cfg *config.Config, logger zerolog.Logger) book.Cache {
	if !cfg.Redis.Enabled {
		return book.NewMemoryCache(cfg.Exchange.BookCacheTTL)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis book cache enabled")
	return book.NewRedisCache(client, "tonhub", cfg.Exchange.BookCacheTTL, logger)
}
