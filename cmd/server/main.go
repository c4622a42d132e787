package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duelforge/duel-server-go/internal/auth"
	"github.com/duelforge/duel-server-go/internal/catalog"
	"github.com/duelforge/duel-server-go/internal/config"
	"github.com/duelforge/duel-server-go/internal/game"
	"github.com/duelforge/duel-server-go/internal/repository"
	"github.com/duelforge/duel-server-go/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting duel server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Card catalog: built-in set unless a file is configured. A catalog
	// that cannot satisfy the deck quota refuses to start.
	cat := catalog.Default()
	if cfg.Game.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.Game.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load card catalog", zap.Error(err))
		}
	}
	if err := cat.Validate(game.DeckQuota()); err != nil {
		logger.Fatal("card catalog cannot satisfy deck quota", zap.Error(err))
	}
	logger.Info("card catalog loaded", zap.Int("cards", cat.Len()))

	// Optional user store. Without it, credentials verify against the
	// statically configured users and win/loss results are not persisted.
	var userSource auth.UserSource
	var stats server.StatsRecorder
	if cfg.Database.Enabled {
		db, dbErr := repository.NewDB(ctx, cfg.Database, logger)
		if dbErr != nil {
			logger.Fatal("failed to connect to database", zap.Error(dbErr))
		}
		defer db.Close()

		dbStats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", dbStats.TotalConns()),
			zap.Int32("idle_conns", dbStats.IdleConns()),
		)

		userRepo := repository.NewUserRepository(db)
		userSource = userRepo
		stats = userRepo
	} else {
		static := make([]auth.StaticUser, 0, len(cfg.Auth.StaticUsers))
		for _, u := range cfg.Auth.StaticUsers {
			static = append(static, auth.StaticUser{
				Username:     u.Username,
				PasswordHash: u.PasswordHash,
				Token:        u.Token,
			})
		}
		userSource = auth.NewStaticSource(static)
		logger.Info("database disabled; serving guest and static users",
			zap.Int("static_users", len(static)))
	}

	verifier := auth.NewVerifier(userSource, logger)

	sessionMgr := game.NewManager(cat, logger)
	logger.Info("session manager initialized")

	hub := server.NewHub(server.HubConfig{
		ReconnectWindow:     cfg.Game.ReconnectWindow,
		MaintenanceInterval: cfg.Game.MaintenanceInterval,
		RateLimitActions:    cfg.Game.RateLimitActions,
		RateLimitWindow:     cfg.Game.RateLimitWindow,
	}, sessionMgr, stats, logger)
	go hub.Run(ctx)
	logger.Info("hub started",
		zap.Duration("reconnect_window", cfg.Game.ReconnectWindow),
		zap.Duration("maintenance_interval", cfg.Game.MaintenanceInterval),
	)

	wsServer := server.NewServer(cfg.Server, hub, verifier, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- wsServer.Run(ctx)
	}()

	logger.Info("duel server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
	)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	logger.Info("shutting down gracefully...")
	cancel()

	logger.Info("duel server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
