package marketmaker

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the market maker service
type Config struct {
	// Exchange settings
	Pair   string // e.g., "TON/USDT"
	UserID int64  // ledger account the quotes trade against

	// Price source settings
	ExternalSymbol string // e.g., "TONUSDT"
	PriceSourceURL string // e.g., "https://api.binance.com"

	// Market making parameters
	NumLevels         int
	BaseSpreadPercent float64
	PriceStepPercent  float64
	OrderSize         string // Decimal string for precise quantity
	UpdateInterval    time.Duration

	// HTTP client settings
	HTTPTimeout time.Duration
	MaxRetries  int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("MM_PAIR", "TON/USDT")
	v.SetDefault("MM_USER_ID", 1)
	v.SetDefault("MM_EXTERNAL_SYMBOL", "TONUSDT")
	v.SetDefault("MM_PRICE_SOURCE_URL", "https://api.binance.com")
	v.SetDefault("MM_NUM_LEVELS", 3)
	v.SetDefault("MM_BASE_SPREAD_PERCENT", 0.1)
	v.SetDefault("MM_PRICE_STEP_PERCENT", 0.05)
	v.SetDefault("MM_ORDER_SIZE", "1.0")
	v.SetDefault("MM_UPDATE_INTERVAL_SECONDS", 10)
	v.SetDefault("MM_HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MM_MAX_RETRIES", 3)

	// Allow environment variables
	v.AutomaticEnv()

	cfg := &Config{
		Pair:              v.GetString("MM_PAIR"),
		UserID:            v.GetInt64("MM_USER_ID"),
		ExternalSymbol:    v.GetString("MM_EXTERNAL_SYMBOL"),
		PriceSourceURL:    v.GetString("MM_PRICE_SOURCE_URL"),
		NumLevels:         v.GetInt("MM_NUM_LEVELS"),
		BaseSpreadPercent: v.GetFloat64("MM_BASE_SPREAD_PERCENT"),
		PriceStepPercent:  v.GetFloat64("MM_PRICE_STEP_PERCENT"),
		OrderSize:         v.GetString("MM_ORDER_SIZE"),
		UpdateInterval:    time.Duration(v.GetInt("MM_UPDATE_INTERVAL_SECONDS")) * time.Second,
		HTTPTimeout:       time.Duration(v.GetInt("MM_HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:        v.GetInt("MM_MAX_RETRIES"),
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Pair == "" {
		return fmt.Errorf("MM_PAIR must not be empty")
	}
	if cfg.UserID <= 0 {
		return fmt.Errorf("MM_USER_ID must be positive")
	}
	if cfg.ExternalSymbol == "" {
		return fmt.Errorf("MM_EXTERNAL_SYMBOL must not be empty")
	}
	if cfg.PriceSourceURL == "" {
		return fmt.Errorf("MM_PRICE_SOURCE_URL must not be empty")
	}
	if cfg.NumLevels <= 0 {
		return fmt.Errorf("MM_NUM_LEVELS must be positive")
	}
	if cfg.BaseSpreadPercent <= 0 {
		return fmt.Errorf("MM_BASE_SPREAD_PERCENT must be positive")
	}
	if cfg.PriceStepPercent <= 0 {
		return fmt.Errorf("MM_PRICE_STEP_PERCENT must be positive")
	}
	if cfg.OrderSize == "" {
		return fmt.Errorf("MM_ORDER_SIZE must not be empty")
	}
	if cfg.UpdateInterval <= 0 {
		return fmt.Errorf("MM_UPDATE_INTERVAL_SECONDS must be positive")
	}
	return nil
}
