/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the notarial estimate server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Initialize structured logging
  3. Initialize SQLite store (migrations run here)
  4. Load the rate registry: embedded defaults, then stored documents.
     A ConfigError here is fatal: the server never starts on bad tables.
  5. Start the reload scheduler
  6. Configure HTTP router and start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (env PORT, default 8080)
  -db         SQLite database path (env NOTARY_DB_PATH, default notary.db)
              Use ":memory:" for an in-memory database
  -no-store   Serve the embedded tables only
  -log-level  debug | info | warn | error (env LOG_LEVEL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reload scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/notary.db"

  # Embedded statutory tables only, verbose
  ./server -no-store -log-level=debug

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Document store
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/notary-engine/api"
	"github.com/warp/notary-engine/config"
	"github.com/warp/notary-engine/generic"
	"github.com/warp/notary-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Flags override the environment.
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.BoolVar(&cfg.DisableStore, "no-store", cfg.DisableStore, "serve embedded tables only")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// Initialize store
	var store *sqlite.Store
	if !cfg.DisableStore {
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer s.Close()
		store = s

		version, _, err := store.SchemaVersion()
		if err != nil {
			return err
		}
		logger.Info("database ready", "path", cfg.DBPath, "schema_version", version)
	}

	// Initialize handler and load the tables
	handler := api.NewHandler(generic.NewRegistry(), store, logger)
	if _, err := handler.Reload(context.Background(), "startup"); err != nil {
		return fmt.Errorf("load rate tables: %w", err)
	}

	// Watch for documents stored by other instances
	if store != nil && cfg.ReloadInterval > 0 {
		scheduler := api.NewReloadScheduler(store, handler)
		scheduler.CheckInterval = cfg.ReloadInterval
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
