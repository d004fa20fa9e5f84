package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"energy-trading-backend/config"
	httpHandler "energy-trading-backend/internal/adapter/http/handler"
	solanaLedger "energy-trading-backend/internal/adapter/ledger/solana"
	pgStorage "energy-trading-backend/internal/adapter/storage/postgres"
	redisStorage "energy-trading-backend/internal/adapter/storage/redis"
	"energy-trading-backend/internal/adapter/ws"
	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/internal/hub"
	"energy-trading-backend/internal/service"
	"energy-trading-backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Energy Trading Backend")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	settlementRepo := pgStorage.NewSettlementRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)

	// Initialize Redis stores
	settlementLock := redisStorage.NewSettlementLock(rdb)

	// Initialize core services
	custody, err := service.NewScryptKeyCustody(cfg.Custody.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize key custody")
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize Solana ledger client
	ledger, err := solanaLedger.NewClient(cfg.Solana, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Solana ledger client")
	}
	log.Info().
		Str("rpc_url", cfg.Solana.RPCURL).
		Str("mint", cfg.Solana.EnergyMint).
		Msg("Solana ledger client ready")

	// Initialize notification hub and websocket handler
	events := hub.NewHub(log)
	wsHandler := ws.NewHandler(events, tokenSvc, log)

	// Initialize business services
	settlementSvc := service.NewSettlementService(
		settlementRepo,
		walletRepo,
		custody,
		ledger,
		settlementLock,
		events,
		log,
	)
	walletSvc := service.NewWalletService(walletRepo, custody, ledger, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		SettlementSvc:  settlementSvc,
		WalletSvc:      walletSvc,
		TokenSvc:       tokenSvc,
		WSHandler:      wsHandler.Serve,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
