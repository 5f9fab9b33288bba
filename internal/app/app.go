// Package app wires together the relayer's dependencies — chain gateway,
// Postgres stores, Redis cache, the three services, the HTTP server, and the
// background scheduler — and drives its top-level run/shutdown lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sidebet/relayer/internal/cache/redis"
	"github.com/sidebet/relayer/internal/chain"
	"github.com/sidebet/relayer/internal/config"
	relayercrypto "github.com/sidebet/relayer/internal/crypto"
	"github.com/sidebet/relayer/internal/scheduler"
	"github.com/sidebet/relayer/internal/server"
	"github.com/sidebet/relayer/internal/server/handler"
	"github.com/sidebet/relayer/internal/server/ws"
	"github.com/sidebet/relayer/internal/service"
	"github.com/sidebet/relayer/internal/store/postgres"
)

const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// wired dependencies, and closes them in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	server    *server.Server
	scheduler *scheduler.Scheduler
	hub       *ws.Hub
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server and scheduler
// concurrently, and blocks until the context is cancelled or one of them
// fails. On return it does not close resources; call Close for that.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("log_level", a.cfg.LogLevel),
	)

	if err := a.wire(ctx); err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Start()
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		return a.hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("app: run: %w", err)
	}
	return nil
}

// wire constructs every dependency and assigns the server/scheduler fields.
// Constructed resources are registered with Close in reverse order as they
// are created, so a failure partway through still tears down what succeeded.
func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg

	relayerKey, err := relayercrypto.LoadKey(relayercrypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.RelayerPrivateKey,
		EncryptedKeyPath: cfg.Chain.RelayerKeyPath,
		KeyPassword:      cfg.Chain.RelayerKeyPassword,
	})
	if err != nil {
		return fmt.Errorf("relayer signing key: %w", err)
	}

	chainGw, err := chain.New(ctx, chain.Config{
		RPCURL:          cfg.Chain.RPCURL,
		ChainID:         cfg.Chain.ChainID,
		FactoryAddress:  cfg.Chain.FactoryAddress,
		PrivateKeyHex:   relayerKey,
		ReadTimeout:     30 * time.Second,
		FinalizeTimeout: 60 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("chain gateway: %w", err)
	}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return fmt.Errorf("postgres client: %w", err)
	}
	a.closers = append(a.closers, pg.Close)

	if err := pg.RunMigrations(ctx); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	rdb, err := redis.New(ctx, redis.ClientConfig{
		Addr:           cfg.Redis.Addr,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		PoolSize:       cfg.Redis.PoolSize,
		MaxRetries:     cfg.Redis.MaxRetries,
		TLSEnabled:     cfg.Redis.TLSEnabled,
		DialTimeout:    5 * time.Second,
		CommandTimeout: 3 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("redis client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := rdb.Close(); err != nil {
			a.logger.Error("redis close failed", slog.String("error", err.Error()))
		}
	})

	pool := pg.Pool()
	markets := postgres.NewMarketStore(pool)
	participants := postgres.NewParticipantStore(pool)
	proposals := postgres.NewProposalStore(pool)
	attestations := postgres.NewAttestationStore(pool)
	queue := postgres.NewFinalizationQueueStore(pool)
	syncLog := postgres.NewSyncLogStore(pool)
	users := postgres.NewUserStore(pool)
	stats := postgres.NewStatsStore(pool)

	limiter := redis.NewRateLimiter(rdb)
	locks := redis.NewLockManager(rdb)
	bus := redis.NewEventBus(rdb)

	syncSvc := service.NewSyncService(markets, participants, proposals, users, syncLog, chainGw, a.logger)
	sigSvc := service.NewSignatureService(
		markets, participants, proposals, attestations, queue, syncLog, users, chainGw,
		syncSvc.SyncMarket, cfg.Signatures.MinThreshold, a.logger,
	)
	finalizeSvc := service.NewFinalizationService(
		markets, participants, proposals, attestations, queue, syncLog, chainGw, syncSvc,
		cfg.Signatures.MaxProposalAge(), cfg.Signatures.MinThreshold, a.logger,
	)
	syncSvc.SetEventBus(bus)
	sigSvc.SetEventBus(bus)
	finalizeSvc.SetEventBus(bus)

	a.hub = ws.NewHub(bus, a.logger)

	healthHandler := handler.NewHealthHandler(stats, queue, a.logger)
	marketHandler := handler.NewMarketHandler(syncSvc, sigSvc, a.logger)
	attestationHandler := handler.NewAttestationHandler(sigSvc, attestations, a.logger)

	a.server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		DefaultTier: server.RateLimitTier{
			Limit:  cfg.RateLimit.MaxRequests,
			Window: cfg.RateLimit.Window(),
		},
		WriteTier: server.RateLimitTier{
			Limit:  cfg.RateLimit.WriteMaxRequests(),
			Window: cfg.RateLimit.Window(),
		},
		EnableDelete: cfg.Server.EnableDevDelete,
	}, server.Handlers{
		Health:       healthHandler,
		Markets:      marketHandler,
		Attestations: attestationHandler,
		Hub:          a.hub,
	}, limiter, a.logger)

	a.scheduler = scheduler.NewScheduler(syncSvc, finalizeSvc, syncLog, locks, 50, a.logger)

	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
