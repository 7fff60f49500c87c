package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Exchange struct {
		Pairs                 []string      `yaml:"pairs"`
		FeeRate               float64       `yaml:"fee_rate"`
		MatchInterval         time.Duration `yaml:"match_interval"`
		BookDepth             int           `yaml:"book_depth"`
		BookCacheTTL          time.Duration `yaml:"book_cache_ttl"`
		OrderRateLimit        float64       `yaml:"order_rate_limit"`
		OrderRateBurst        int           `yaml:"order_rate_burst"`
		RequiredConfirmations int           `yaml:"required_confirmations"`
		WithdrawalFee         float64       `yaml:"withdrawal_fee"`
		DailyWithdrawalLimit  float64       `yaml:"daily_withdrawal_limit"`
		WatchInterval         time.Duration `yaml:"watch_interval"`
	} `yaml:"exchange"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
	} `yaml:"kafka"`

	Otel struct {
		CollectorEnabled bool   `yaml:"collector_enabled"`
		Endpoint         string `yaml:"endpoint"`
	} `yaml:"otel"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	// Parse command line flags
	flag.Parse()

	config := Default()
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat

	// Load configuration from file if specified
	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML configuration
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Log loaded configuration
		log.Printf("Loaded configuration from %s", *configFile)
	}

	return config, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	config := &Config{}
	config.Server.LogLevel = "info"
	config.Server.LogFormat = "pretty"
	config.Exchange.Pairs = []string{"TON/USDT", "TON/BTC", "NOT/TON", "USDT/TON"}
	config.Exchange.FeeRate = 0.001
	config.Exchange.MatchInterval = 2 * time.Second
	config.Exchange.BookDepth = 20
	config.Exchange.BookCacheTTL = 5 * time.Second
	config.Exchange.OrderRateLimit = 10
	config.Exchange.OrderRateBurst = 20
	config.Exchange.RequiredConfirmations = 3
	config.Exchange.WithdrawalFee = 0.005
	config.Exchange.DailyWithdrawalLimit = 10000
	config.Exchange.WatchInterval = 10 * time.Second
	config.Redis.Addr = "localhost:6379"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "exchange-events"
	config.Otel.Endpoint = "localhost:4317"
	return config
}
