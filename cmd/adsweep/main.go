package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mproctor/adsweep/internal/action"
	"github.com/mproctor/adsweep/internal/api"
	"github.com/mproctor/adsweep/internal/audit"
	"github.com/mproctor/adsweep/internal/config"
	"github.com/mproctor/adsweep/internal/database"
	"github.com/mproctor/adsweep/internal/device"
	"github.com/mproctor/adsweep/internal/directory/ldapdir"
	"github.com/mproctor/adsweep/internal/event"
	"github.com/mproctor/adsweep/internal/guard"
	"github.com/mproctor/adsweep/internal/logging"
	"github.com/mproctor/adsweep/internal/scan"
	"github.com/mproctor/adsweep/internal/scope"
	"github.com/mproctor/adsweep/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("ADS_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging
	logManager, logger := logging.New(logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FilePath:       cfg.Logging.FilePath,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxFiles:   cfg.Logging.FileMaxFiles,
		FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
	})
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	logger.Info("adsweep starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit))

	// Open the audit database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Directory client
	dirClient := ldapdir.New(ldapdir.Config{
		URL:          cfg.Directory.URL,
		BindDN:       cfg.Directory.BindDN,
		BindPassword: cfg.Directory.BindPassword,
		BaseDN:       cfg.Directory.BaseDN,
		ServerHints:  cfg.Directory.ServerHints,
		Timeout:      time.Duration(cfg.Directory.TimeoutSeconds) * time.Second,
	}, logger)

	// Event bus, with the activity stream mirrored to the log
	eventBus := event.NewBus(logger, 256)
	observer := event.LogObserver(logger)
	for _, eventType := range event.Types() {
		eventBus.Subscribe(eventType, observer)
	}
	go eventBus.Start()
	defer eventBus.Stop()

	// Protection guard, with optional hot-reloaded rules file
	protectionGuard := guard.New(cfg.Protection.Rules)
	if cfg.Protection.RulesFile != "" {
		watcher, err := guard.WatchFile(protectionGuard, cfg.Protection.RulesFile, logger)
		if err != nil {
			return fmt.Errorf("watching protection rules file: %w", err)
		}
		defer watcher.Close() //nolint:errcheck
	}

	// Core services
	catalog := scope.NewCatalog(dirClient, logger)
	engine := scan.NewEngine(dirClient, logger)
	engine.SetEventBus(eventBus)
	devices := device.NewResultSet(dirClient, logger)
	auditStore := audit.NewStore(db)
	executor := action.NewExecutor(dirClient, protectionGuard, auditStore, logger, cfg.Actions.MutationsPerSecond)
	executor.SetEventBus(eventBus)

	router := api.NewRouter(api.RouterDeps{
		Catalog:      catalog,
		Engine:       engine,
		Devices:      devices,
		Executor:     executor,
		AuditStore:   auditStore,
		EventBus:     eventBus,
		ScanDefaults: cfg.Scan,
		Logger:       logger,
		BasePath:     cfg.Server.BasePath,
	})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
