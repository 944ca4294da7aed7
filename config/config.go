package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"paperbroker/internal/adapters/logger"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel

	// Quote sources, in fallback order. Recognized names: binance, alpaca,
	// sqlite, csv, synthetic.
	QuoteSources []string
	QuoteTimeout time.Duration

	// Binance API (crypto-pair quotes)
	BinanceAPIKey    string
	BinanceSecretKey string
	IsTestnet        bool

	// Alpaca API (US-equity quotes)
	AlpacaAPIKey    string
	AlpacaSecretKey string

	// CSV quote fixture
	CSVQuotePath string

	// Execution parameters
	NetPriceTolerance float64 // max drift between declared leg prices and net
	AllowMargin       bool
	TriggerInterval   time.Duration // poll period for conditional-order evaluation

	// Pricing
	RiskFreeRate float64 // annualized fraction, e.g. 0.05
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paperbroker.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Quote sources
	sourcesStr := getEnv("QUOTE_SOURCES", "sqlite,csv,synthetic")
	for _, s := range strings.Split(sourcesStr, ",") {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			continue
		}
		switch s {
		case "binance", "alpaca", "sqlite", "csv", "synthetic":
			cfg.QuoteSources = append(cfg.QuoteSources, s)
		default:
			errs = append(errs, fmt.Sprintf("unknown quote source %q in QUOTE_SOURCES", s))
		}
	}
	if len(cfg.QuoteSources) == 0 {
		errs = append(errs, "QUOTE_SOURCES must name at least one source")
	}

	quoteTimeoutSeconds := getEnvAsInt("QUOTE_TIMEOUT_SECONDS", 5)
	if quoteTimeoutSeconds <= 0 {
		errs = append(errs, "QUOTE_TIMEOUT_SECONDS must be positive")
	}
	cfg.QuoteTimeout = time.Duration(quoteTimeoutSeconds) * time.Second

	// Binance API. Keys are only required when the source is enabled.
	cfg.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	cfg.BinanceSecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if hasSource(cfg.QuoteSources, "binance") && (cfg.BinanceAPIKey == "" || cfg.BinanceSecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set when QUOTE_SOURCES includes binance")
	}

	// Alpaca API
	cfg.AlpacaAPIKey = getEnv("ALPACA_API_KEY", "")
	cfg.AlpacaSecretKey = getEnv("ALPACA_API_SECRET", "")
	if hasSource(cfg.QuoteSources, "alpaca") && (cfg.AlpacaAPIKey == "" || cfg.AlpacaSecretKey == "") {
		errs = append(errs, "ALPACA_API_KEY and ALPACA_API_SECRET must be set when QUOTE_SOURCES includes alpaca")
	}

	// CSV fixture
	cfg.CSVQuotePath = getEnv("CSV_QUOTE_PATH", "")
	if hasSource(cfg.QuoteSources, "csv") && cfg.CSVQuotePath == "" {
		errs = append(errs, "CSV_QUOTE_PATH must be set when QUOTE_SOURCES includes csv")
	}

	// Execution parameters
	var err error
	cfg.NetPriceTolerance, err = getEnvAsFloatRequired("NET_PRICE_TOLERANCE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid NET_PRICE_TOLERANCE: %v", err))
	} else if cfg.NetPriceTolerance < 0 {
		errs = append(errs, "NET_PRICE_TOLERANCE cannot be negative")
	}

	cfg.AllowMargin = getEnvAsBool("ALLOW_MARGIN", false)

	triggerIntervalSeconds := getEnvAsInt("TRIGGER_INTERVAL_SECONDS", 2)
	if triggerIntervalSeconds <= 0 {
		errs = append(errs, "TRIGGER_INTERVAL_SECONDS must be positive")
	}
	cfg.TriggerInterval = time.Duration(triggerIntervalSeconds) * time.Second

	// Pricing
	cfg.RiskFreeRate, err = getEnvAsFloatRequired("RISK_FREE_RATE", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_FREE_RATE: %v", err))
	} else if cfg.RiskFreeRate < 0 || cfg.RiskFreeRate >= 1.0 {
		errs = append(errs, "RISK_FREE_RATE must be between 0.0 and 1.0")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

func hasSource(sources []string, name string) bool {
	for _, s := range sources {
		if s == name {
			return true
		}
	}
	return false
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
