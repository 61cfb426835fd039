package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/config"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/eligibility"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/fx"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/infra"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/ledger"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/logging"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/notification"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/routes"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/server"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var db *pgxpool.Pool
	var store ledger.Store
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = ledger.NewPostgres(db)
	} else {
		logger.Warn("DATABASE_URL not set, running with in-memory ledger store")
		store = ledger.NewInMemory()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, rate caching and idempotency disabled")
	}

	liveProvider := fx.NewHTTPProvider(cfg.RateProviderName, cfg.RateProviderURL, cfg.RateProviderKey)
	table := fx.NewTable([]fx.Provider{liveProvider, fx.NewStaticProvider()}, cfg.RateStaleAfter, cfg.RateDriftThreshold, logger)
	resolver := fx.NewResolver(liveProvider, cache, cfg.RateCacheTTL, table, logger)
	go fx.NewRefresher(table, cfg.RateRefreshInterval, logger).Run(ctx)

	engine := wallet.NewService(store, resolver, eligibility.NewStatic(), notification.NewLoggerNotifier(logger))

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Wallet:   engine,
		Resolver: resolver,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
