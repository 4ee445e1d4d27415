package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/idot-digital/eventsource/internal/config"
	"github.com/idot-digital/eventsource/internal/eventtype"
	"github.com/idot-digital/eventsource/internal/handlers"
	"github.com/idot-digital/eventsource/internal/ledger"
	"github.com/idot-digital/eventsource/internal/middleware"
	"github.com/idot-digital/eventsource/internal/pipeline"
	"github.com/idot-digital/eventsource/internal/server"
	"github.com/idot-digital/eventsource/internal/storage"
	mysqlstore "github.com/idot-digital/eventsource/internal/storage/mysql"
	postgresstore "github.com/idot-digital/eventsource/internal/storage/postgres"
	sqlitestore "github.com/idot-digital/eventsource/internal/storage/sqlite"
)

func main() {
	cfg := config.New()

	// Initialize logger
	jsonHandler := slog.NewJSONHandler(os.Stderr, nil)
	log := slog.New(jsonHandler)

	store, driverName, err := storeForDriver(cfg.DBDriver)
	if err != nil {
		log.Error("Unknown database driver", "driver", cfg.DBDriver)
		os.Exit(1)
	}

	// Initialize database connection
	d, err := sql.Open(driverName, cfg.GetDBURI())
	if err != nil {
		log.Error("Failed to open database connection", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	if _, err := d.Exec(store.Schema()); err != nil {
		log.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}

	registry := eventtype.BuiltinRegistry()
	led := ledger.New(d, store, log)
	pl := pipeline.New(registry, led, store, d, log)
	srv := server.New(d, store, pl, cfg.EventEmitterBufferLimit, cfg.MaxStreamClients, cfg.StreamClientBuffer, log)
	httpHandlers := handlers.NewHTTPHandlers(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Periodic idempotency ledger cleanup
	janitor := ledger.NewJanitor(led, cfg.CleanupInterval, cfg.LedgerRetain, log)
	go janitor.Run(ctx)

	mux := http.NewServeMux()

	// Prometheus metrics endpoint (no auth required)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("POST /events", middleware.Auth(middleware.Metrics(httpHandlers.IngestEventsHandler, "ingest_events"), cfg.AuthToken))
	mux.HandleFunc("GET /events", middleware.Auth(middleware.Metrics(httpHandlers.ListEventsHandler, "list_events"), cfg.AuthToken))
	mux.HandleFunc("GET /events/get", middleware.Auth(middleware.Metrics(httpHandlers.GetEventByIDHandler, "get_event"), cfg.AuthToken))
	mux.HandleFunc("GET /events/stream", middleware.Auth(middleware.Metrics(httpHandlers.StreamEventsHandler, "stream_events"), cfg.AuthToken))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.RESTPort),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	log.Info("REST server listening", "address", httpServer.Addr, "driver", cfg.DBDriver)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Failed to serve REST", "error", err)
		os.Exit(1)
	}
}

func storeForDriver(driver string) (storage.Store, string, error) {
	switch driver {
	case "mysql":
		return mysqlstore.New(), "mysql", nil
	case "postgres":
		return postgresstore.New(), "postgres", nil
	case "sqlite":
		return sqlitestore.New(), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported driver %q", driver)
	}
}
