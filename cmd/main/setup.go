package main

import (
	"context"
	"fmt"
	"time"

	"stock-exchange/src/analysis"
	"stock-exchange/src/config"
	datasource "stock-exchange/src/data_source"
	"stock-exchange/src/helpers"
	"stock-exchange/src/ledger"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/network"
	"stock-exchange/src/quotes"
	"stock-exchange/src/server"
	"stock-exchange/src/storage"
	"stock-exchange/src/utils"
)

// app holds every wired component of a running exchange.
type app struct {
	Config    *config.Config
	Logger    *logger.Logger
	Store     *storage.SQLStore
	Broadcast *server.BroadcastLoop
	API       *server.APIServer
}

// -----------------------------------------------------------------------------

// loadConfig reads the config file and builds the root logger.
func loadConfig(path string) (*config.Config, *logger.Logger, error) {
	conf, err := config.NewConfig(path)
	if err != nil {
		return nil, nil, err
	}
	return conf, logger.NewLogger(conf.MConfig, conf.Name), nil
}

// -----------------------------------------------------------------------------

// setupDatabase opens the ledger store, waits for it to answer and migrates it.
func setupDatabase(ctx context.Context, cfg *models.MConfig, appLogger *logger.Logger) (*storage.SQLStore, error) {
	store, err := storage.New(cfg, logger.NewLogger(cfg, "LedgerStore"))
	if err != nil {
		appLogger.Error("Failed to init db: %v", err)
		return nil, err
	}

	err = helpers.RetryWithBackoff(ctx, appLogger, "database ping", 5, 500*time.Millisecond, func() error {
		return store.Ping(ctx)
	})
	if err != nil {
		store.Close()
		appLogger.Error("Database unreachable: %v", err)
		return nil, err
	}

	if err := store.Initialize(ctx); err != nil {
		store.Close()
		appLogger.Error("Failed to migrate db: %v", err)
		return nil, err
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupQuotes builds the network manager, the failover source chain and the
// cached resolver in front of it.
func setupQuotes(conf *config.Config, m *metrics.Metrics, appLogger *logger.Logger) (*quotes.QuoteResolver, error) {
	cfg := conf.MConfig
	netMgr := network.NewAsyncNetworkManager(cfg, logger.NewLogger(cfg, "NetworkManager"))

	source, err := datasource.NewFromConfig(cfg, netMgr, logger.NewLogger(cfg, "QuoteSources"))
	if err != nil {
		appLogger.Error("No usable quote source: %v", err)
		return nil, err
	}

	cache := quotes.NewPriceCache(cfg.Quotes.CacheSize, conf.CacheTTL())
	appLogger.Info("Quote cache: %d entries, ttl %v", cfg.Quotes.CacheSize, conf.CacheTTL())
	return quotes.NewQuoteResolver(cache, source, conf.FetchTimeout(), logger.NewLogger(cfg, "QuoteResolver"), m), nil
}

// -----------------------------------------------------------------------------

// setupApp wires the full component graph on top of an open store.
func setupApp(ctx context.Context, conf *config.Config, appLogger *logger.Logger) (*app, error) {
	cfg := conf.MConfig
	m := metrics.New()

	store, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		return nil, err
	}

	resolver, err := setupQuotes(conf, m, appLogger)
	if err != nil {
		store.Close()
		return nil, err
	}

	clock, err := utils.NewMarketClock(cfg.Market, logger.NewLogger(cfg, "MarketClock"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("market clock: %w", err)
	}

	orderLedger, err := ledger.NewOrderLedger(cfg, store, clock, logger.NewLogger(cfg, "OrderLedger"), m)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := server.NewSubscriptionRegistry()
	gateway := server.NewGateway(registry, resolver, cfg.Broadcast.SendBuffer, logger.NewLogger(cfg, "Gateway"), m)

	broadcast := server.NewBroadcastLoop(registry, resolver, conf.BroadcastInterval(), conf.BroadcastBackoff(),
		cfg.Network.ConcurrentRequests, logger.NewLogger(cfg, "BroadcastLoop"), m)
	broadcast.ConnectionCount = gateway.Connections

	api := server.NewAPIServer(cfg, server.Deps{
		Gateway:   gateway,
		Broadcast: broadcast,
		Ledger:    orderLedger,
		Quotes:    resolver,
		Portfolio: analysis.NewPortfolioAnalyzer(resolver, cfg.Network.ConcurrentRequests, logger.NewLogger(cfg, "Portfolio")),
		Market:    clock,
		Store:     store,
		Metrics:   m,
	}, logger.NewLogger(cfg, "APIServer"))

	return &app{
		Config:    conf,
		Logger:    appLogger,
		Store:     store,
		Broadcast: broadcast,
		API:       api,
	}, nil
}
