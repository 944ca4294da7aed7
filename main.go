package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/shopspring/decimal"

	"paperbroker/config"
	"paperbroker/internal/adapters/logger"
	"paperbroker/internal/adapters/quotes"
	"paperbroker/internal/adapters/sqlite"
	"paperbroker/internal/app"
	"paperbroker/internal/engine"
	"paperbroker/internal/portfolio"
	"paperbroker/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database store")
		log.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database store")
		}
	}()
	appLogger.Info(context.Background(), "Database store initialized")

	// 4. Initialize Quote Chain
	quoteChain, err := buildQuoteChain(cfg, appLogger, store)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote sources")
		log.Fatalf("FATAL: Failed to initialize quote sources: %v", err)
	}
	appLogger.Info(context.Background(), "Quote chain initialized", map[string]interface{}{"sources": cfg.QuoteSources})

	// 5. Initialize Execution Engine
	eng, err := engine.New(store, quoteChain, appLogger, engine.Config{
		NetPriceTolerance: decimal.NewFromFloat(cfg.NetPriceTolerance),
		QuoteTimeout:      cfg.QuoteTimeout,
		AllowMargin:       cfg.AllowMargin,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize execution engine")
		log.Fatalf("FATAL: Failed to initialize execution engine: %v", err)
	}
	appLogger.Info(context.Background(), "Execution engine initialized")

	// 6. Initialize Portfolio Valuer
	valuer, err := portfolio.New(store, quoteChain, appLogger, portfolio.Config{
		RiskFreeRate: cfg.RiskFreeRate,
		QuoteTimeout: cfg.QuoteTimeout,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize portfolio valuer")
		log.Fatalf("FATAL: Failed to initialize portfolio valuer: %v", err)
	}

	// 7. Initialize Application Service
	brokerService, err := app.NewBrokerService(cfg, appLogger, store, quoteChain, eng, valuer)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize broker service")
		log.Fatalf("FATAL: Failed to initialize broker service: %v", err)
	}
	appLogger.Info(context.Background(), "Broker service initialized")

	// 8. Start the Service
	if err := brokerService.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Broker service exited with error")
		log.Fatalf("FATAL: Broker service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

// buildQuoteChain assembles the configured quote sources into one fallback
// chain, in the order QUOTE_SOURCES lists them.
func buildQuoteChain(cfg *config.Config, appLogger ports.Logger, store *sqlite.Store) (ports.QuoteSource, error) {
	sources := make([]ports.QuoteSource, 0, len(cfg.QuoteSources))
	for _, name := range cfg.QuoteSources {
		switch name {
		case "binance":
			src, err := quotes.NewBinanceSource(quotes.BinanceConfig{
				APIKey:     cfg.BinanceAPIKey,
				SecretKey:  cfg.BinanceSecretKey,
				UseTestnet: cfg.IsTestnet,
				Logger:     appLogger,
			})
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case "alpaca":
			src, err := quotes.NewAlpacaSource(quotes.AlpacaConfig{
				APIKey:    cfg.AlpacaAPIKey,
				APISecret: cfg.AlpacaSecretKey,
				Logger:    appLogger,
			})
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case "sqlite":
			src, err := quotes.NewHistorySource(store, appLogger)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case "csv":
			src, err := quotes.NewCSVSource(cfg.CSVQuotePath)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case "synthetic":
			sources = append(sources, quotes.NewSyntheticSource())
		default:
			return nil, fmt.Errorf("unknown quote source %q", name)
		}
	}
	return quotes.NewChain(appLogger, sources...)
}
