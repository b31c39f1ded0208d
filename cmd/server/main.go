package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kupukupu/syncd/internal/api"
	"github.com/kupukupu/syncd/internal/api/handlers"
	"github.com/kupukupu/syncd/internal/config"
	"github.com/kupukupu/syncd/internal/feed"
	"github.com/kupukupu/syncd/internal/pubsub"
	"github.com/kupukupu/syncd/internal/scheduler"
	"github.com/kupukupu/syncd/internal/settings"
	"github.com/kupukupu/syncd/internal/state"
	"github.com/kupukupu/syncd/internal/storage"
	"github.com/kupukupu/syncd/internal/storage/badger"
	"github.com/kupukupu/syncd/internal/storage/sqlite"
	"github.com/kupukupu/syncd/internal/unread"
	"github.com/kupukupu/syncd/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting feed sync server",
		"mode", cfg.Server.Mode,
		"storage", cfg.Storage.Mode,
	)

	// Initialize the storage backend
	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", "mode", cfg.Storage.Mode, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	log.Info("Storage initialized", "mode", cfg.Storage.Mode, "path", cfg.Storage.Path)

	// Initialize the event bus
	bus := pubsub.New(log)
	defer bus.Close()

	// Initialize services
	stateStore := state.New(store)
	settingsService := settings.NewService(store, bus, log)
	fetcher := feed.NewFetcher(cfg.Sync.FetchTimeout, log)
	parser := feed.NewParser(log)
	sched := scheduler.New(stateStore, fetcher, parser, bus, cfg.Sync, log)
	tracker := unread.New(stateStore, bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	current, err := settingsService.Get(ctx)
	if err != nil {
		log.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	// Start background services
	go sched.Start(ctx, current)
	go tracker.Start(ctx)

	// Initialize handlers
	feedsHandler := handlers.NewFeedsHandler(settingsService, sched, log)
	itemsHandler := handlers.NewItemsHandler(sched, bus, log)
	settingsHandler := handlers.NewSettingsHandler(settingsService, log)
	systemHandler := handlers.NewSystemHandler(store, bus, tracker, log)

	// Initialize router
	router := api.NewRouter(
		feedsHandler,
		itemsHandler,
		settingsHandler,
		systemHandler,
		cfg,
		log,
	)

	engine := router.Setup()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Stop background services
	sched.Stop()
	tracker.Stop()
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped gracefully")
}

// openStore selects and opens the configured storage backend.
func openStore(cfg *config.Config, log *logger.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Mode {
	case "sqlite":
		db, err := sqlite.New(filepath.Join(cfg.Storage.Path, "kupukupu.db"))
		if err != nil {
			return nil, nil, err
		}
		store := sqlite.NewStore(db, log)
		return store, func() { db.Close() }, nil
	default:
		db, err := badger.New(cfg.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		store := badger.NewStore(db, log)
		return store, func() { db.Close() }, nil
	}
}
