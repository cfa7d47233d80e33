package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"skisTrader/config"
	"skisTrader/internal/adapters/binanceclient"
	"skisTrader/internal/adapters/logger"
	"skisTrader/internal/adapters/sqlite"
	"skisTrader/internal/app"
	"skisTrader/internal/strategy/manager"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewLogrusLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := binanceClient.Ping(context.Background()); err != nil {
		appLogger.Warn(context.Background(), "Binance ping failed, the stream will keep retrying", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize the simulated account and strategy manager
	accountCfg, err := cfg.AccountConfig()
	if err != nil {
		log.Fatalf("FATAL: Invalid account configuration: %v", err)
	}
	pairs := make(map[string]manager.PairInfo, len(cfg.Pairs))
	for _, pair := range cfg.Pairs {
		pairs[pair] = manager.PairInfo{Options: cfg.SkisOptions(), Trailing: cfg.TrailingStop()}
	}
	skis, err := manager.NewSkisMultipair(manager.SkisMultipairConfig{
		Account:     accountCfg,
		Pairs:       pairs,
		ProcessStep: cfg.ProcessStep,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy manager")
		log.Fatalf("FATAL: Failed to initialize strategy manager: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy manager initialized", map[string]interface{}{
		"pairs":          cfg.Pairs,
		"initialBalance": cfg.InitialBalance.String(),
	})

	// 6. Initialize Application Service
	traderService, err := app.NewTraderService(app.Config{
		Logger:    appLogger,
		Streamer:  binanceClient,
		States:    repo,
		Manager:   skis,
		Interval:  cfg.KlineInterval,
		Window:    time.Duration(cfg.ChunkMinutes) * time.Minute,
		RuinFloor: cfg.RuinFloor,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trader service")
		log.Fatalf("FATAL: Failed to initialize trader service: %v", err)
	}

	// 7. Start the Service
	if err := traderService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trader service exited with error")
		log.Fatalf("FATAL: Trader service exited with error: %v", err)
	}

	snap := traderService.Snapshot()
	appLogger.Info(context.Background(), "Application finished gracefully.", map[string]interface{}{
		"balance": snap.Balance.String(),
		"steps":   snap.Steps,
	})
}
