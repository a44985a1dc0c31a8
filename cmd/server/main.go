/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the split balance engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Install structured logging
  3. Open SQLite store
  4. Build recomputer + dispatcher (worker pool)
  5. Configure HTTP router
  6. Start server with graceful shutdown

CONFIGURATION (environment, SPLIT_ prefix):
  SPLIT_ADDR            listen address        (default :8080)
  SPLIT_DB_PATH         SQLite database path  (default ./data/split.db)
  SPLIT_WORKERS         recompute workers     (default 4)
  SPLIT_RETRY_ATTEMPTS  CAS retry budget      (default 3)
  SPLIT_LOG_LEVEL       debug|info|warn|error (default info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the recompute dispatcher (cancels in-flight recomputes;
     stale projections heal lazily on the next read after restart)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with in-memory database
  SPLIT_DB_PATH=":memory:" ./server

  # Run on a different port
  SPLIT_ADDR=":3000" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - worker/worker.go: Recompute dispatcher
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/split-engine/api"
	"github.com/warp/split-engine/config"
	"github.com/warp/split-engine/engine"
	"github.com/warp/split-engine/logging"
	"github.com/warp/split-engine/metrics"
	"github.com/warp/split-engine/store/sqlite"
	"github.com/warp/split-engine/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	// Store
	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Recompute path: engine -> dispatcher -> handlers
	met := metrics.New()
	rec := engine.NewRecomputer(st)
	rec.MaxAttempts = cfg.RetryAttempts
	rec.OnConflict = met.LockConflictsTotal.Inc
	rec.OnViolation = func(v *engine.ConsistencyViolationError) {
		met.ConsistencyViolationsTotal.WithLabelValues(string(v.Kind)).Inc()
		slog.Error("consistency violation",
			"group", v.GroupID, "currency", v.Currency,
			"kind", v.Kind, "record", v.RecordID, "detail", v.Detail)
	}

	disp := worker.NewDispatcher(rec, cfg.Workers)
	disp.Start()

	// HTTP
	handler := api.NewHandler(st, rec, disp)
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath, "workers", cfg.Workers)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	disp.Stop()

	slog.Info("server stopped")
}
