package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mesh-trading-engine/config"
	"mesh-trading-engine/internal/api"
	"mesh-trading-engine/internal/auth"
	"mesh-trading-engine/internal/cache"
	"mesh-trading-engine/internal/database"
	"mesh-trading-engine/internal/engine"
	"mesh-trading-engine/internal/events"
	"mesh-trading-engine/internal/executor"
	"mesh-trading-engine/internal/logging"
	"mesh-trading-engine/internal/market"
	"mesh-trading-engine/internal/router"
	"mesh-trading-engine/internal/vault"

	"github.com/rs/zerolog"
)

// cachedSource wraps a market source and remembers the latest snapshot so
// the paper executor can price fills from the same data the engine sees.
type cachedSource struct {
	inner market.Source

	mu   sync.RWMutex
	last *market.Snapshot
}

func (c *cachedSource) Fetch() (*market.Snapshot, error) {
	snap, err := c.inner.Fetch()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()
	return snap, nil
}

func (c *cachedSource) Close() error { return c.inner.Close() }

func (c *cachedSource) lastPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return 0, false
	}
	t, ok := c.last.Tickers[symbol]
	if !ok {
		return 0, false
	}
	return t.Price, true
}

// setupPathStatsCaching mirrors each routed conversion into Redis so
// external dashboards can read route usage without hitting the engine.
func setupPathStatsCaching(eventBus *events.EventBus, cacheService *cache.CacheService) {
	eventBus.Subscribe(events.EventConversionRouted, func(event events.Event) {
		from, _ := event.Data["from_asset"].(string)
		to, _ := event.Data["to_asset"].(string)
		if from == "" || to == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		key := cache.PathStatsKey(from + "->" + to)
		cacheService.SetJSON(ctx, key, event.Data, time.Hour)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Venue credentials live in Vault; disabled mode keeps them in memory.
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	logger.Info("Vault client initialized", "enabled", cfg.VaultConfig.Enabled)

	// Market data: deterministic replay when configured, live feed otherwise.
	var rawSource market.Source
	if cfg.MarketConfig.ReplayFile != "" {
		replay, err := market.NewReplaySource(cfg.MarketConfig.ReplayFile, false)
		if err != nil {
			log.Fatalf("Failed to open replay file: %v", err)
		}
		rawSource = replay
		logger.Info("Replay market source initialized", "file", cfg.MarketConfig.ReplayFile)
	} else {
		feed := market.NewWSFeed(
			cfg.MarketConfig.WSEndpoint,
			cfg.ExecutorConfig.Venue,
			cfg.MarketConfig.Symbols,
			cfg.MarketConfig.StaleTolerance,
			logger,
		)
		if err := feed.Start(); err != nil {
			log.Fatalf("Failed to start market feed: %v", err)
		}
		rawSource = feed
		logger.Info("Market feed started",
			"endpoint", cfg.MarketConfig.WSEndpoint,
			"symbols", len(cfg.MarketConfig.Symbols))
	}
	source := &cachedSource{inner: rawSource}
	defer source.Close()

	execLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Order execution: paper fills in dry-run mode, signed venue orders live.
	paper := cfg.EngineConfig.DryRun || cfg.ExecutorConfig.Paper
	var orderExecutor executor.OrderExecutor
	if paper {
		seed := map[string]map[string]float64{
			cfg.ExecutorConfig.Venue: {
				cfg.EngineConfig.FundingAsset: 10000,
			},
		}
		orderExecutor = executor.NewPaperExecutor(source.lastPrice, seed, 0.0005, execLogger)
		logger.Info("Paper executor initialized", "venue", cfg.ExecutorConfig.Venue)
	} else {
		orderExecutor = executor.NewVenueExecutor(
			cfg.ExecutorConfig.Venue,
			cfg.ExecutorConfig.BaseURL,
			false,
			cfg.ExecutorConfig.OrderIDTag,
			vaultClient,
			execLogger,
		)
		logger.Info("Venue executor initialized",
			"venue", cfg.ExecutorConfig.Venue,
			"base_url", cfg.ExecutorConfig.BaseURL)
	}

	// Conversion router over the venue pair listers.
	var listers []router.PairLister
	if paper {
		listers = append(listers, executor.NewStaticPairLister(cfg.ExecutorConfig.Venue, cfg.MarketConfig.Symbols))
	} else {
		listers = append(listers, executor.NewRESTPairLister(cfg.ExecutorConfig.Venue, cfg.ExecutorConfig.BaseURL))
	}
	convRouter := router.New(listers, nil, router.Config{
		TTL:          cfg.RouterConfig.GraphTTL,
		FeeRate:      cfg.RouterConfig.FeeRate,
		SlippageRate: cfg.RouterConfig.SlippageRate,
	}, logger)
	if err := convRouter.Rebuild(); err != nil {
		logger.Warn("Initial graph build failed, routing degraded until next rebuild", "error", err)
	}
	logger.Info("Conversion router initialized", "graph_ttl", cfg.RouterConfig.GraphTTL.String())

	// Snapshot and sweep persistence, optional.
	persister := engine.Persister(engine.NopPersister{})
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig, logger)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.RunMigrations(context.Background()); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		repo = database.NewRepository(db)
		persister = repo
		logger.Info("Database persistence initialized",
			"host", cfg.DatabaseConfig.Host,
			"database", cfg.DatabaseConfig.Database)
	}

	// State publishing over Redis, optional and degradable.
	publisher := engine.Publisher(engine.NopPublisher{})
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Warn("Redis unavailable, state publishing disabled", "error", err)
		} else {
			defer cacheService.Close()
			publisher = cache.NewStatePublisher(cacheService)
			setupPathStatsCaching(eventBus, cacheService)
			logger.Info("State publisher initialized", "address", cfg.RedisConfig.Address)
		}
	}

	eng := engine.New(cfg, engine.Deps{
		Source:    source,
		Executor:  orderExecutor,
		Router:    convRouter,
		Bus:       eventBus,
		Persister: persister,
		Publisher: publisher,
		Logger:    logger,
	})

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(cfg.AuthConfig)
		logger.Info("Operator auth enabled", "user", cfg.AuthConfig.OperatorUser)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(
			cfg.ServerConfig,
			eng,
			repo,
			convRouter,
			eventBus,
			authService,
			vaultClient,
			logger,
		)
		go func() {
			if err := server.Start(); err != nil {
				log.Fatalf("Failed to start API server: %v", err)
			}
		}()
	} else {
		logger.Info("API server disabled")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error("Engine loop exited", "error", err)
		}
	}()

	logger.Info("Engine running",
		"dry_run", cfg.EngineConfig.DryRun,
		"cycle_interval", cfg.EngineConfig.CycleInterval.String())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	cancelRun()
	<-engineDone

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down API server", "error", err)
		}
	}

	logger.Info("Shutdown complete")
}
