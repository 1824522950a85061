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

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/xerxes-systems/xerxes-bridge/internal/config"
	"github.com/xerxes-systems/xerxes-bridge/internal/downstream"
	"github.com/xerxes-systems/xerxes-bridge/internal/forwarder"
	"github.com/xerxes-systems/xerxes-bridge/internal/handlers"
	"github.com/xerxes-systems/xerxes-bridge/internal/logging"
	"github.com/xerxes-systems/xerxes-bridge/internal/queue"
	"github.com/xerxes-systems/xerxes-bridge/internal/rawlog"
	"github.com/xerxes-systems/xerxes-bridge/internal/server"
	"github.com/xerxes-systems/xerxes-bridge/internal/service"
	"github.com/xerxes-systems/xerxes-bridge/internal/store"
	"github.com/xerxes-systems/xerxes-bridge/internal/tokens"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("bridge"))
	logging.SetDefault(logger)

	slog.Info("Starting bridge service",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage", cfg.Storage.Type),
		slog.String("queue_backend", cfg.Queue.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Storage
	var st store.Store
	switch cfg.Storage.Type {
	case "memory":
		st = store.NewMemory()
		log.Println("Using in-memory storage (data is not persisted)")
	default:
		connString := cfg.Storage.Postgres.ConnString()

		slog.Info("Running database migrations")
		m, err := migrate.New("file://migrations", connString)
		if err != nil {
			slog.Error("Failed to initialize migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			slog.Error("Failed to run migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("Database migrations completed")

		pg, err := store.NewPostgres(context.Background(), connString)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		st = pg
	}
	defer st.Close()

	// Raw log
	var raw rawlog.Log = rawlog.Nop{}
	if cfg.RawLog.Enabled {
		osLog, err := rawlog.NewOpenSearch(rawlog.Config{
			URL:           cfg.RawLog.URL,
			Username:      cfg.RawLog.Username,
			Password:      cfg.RawLog.Password,
			TLSSkipVerify: cfg.RawLog.TLSSkipVerify,
			IndexPrefix:   cfg.RawLog.IndexPrefix,
		})
		if err != nil {
			log.Printf("WARNING: Failed to initialize raw log: %v", err)
			log.Println("Continuing without raw request auditing")
		} else {
			raw = osLog
			log.Printf("Raw log enabled (opensearch: %s, prefix: %s)", cfg.RawLog.URL, cfg.RawLog.IndexPrefix)
		}
	} else {
		log.Println("Raw log disabled")
	}

	// Forward queue
	var fq queue.Queue
	switch cfg.Queue.Backend {
	case "nats":
		nq, err := queue.NewNATS(queue.NATSConfig{URL: cfg.Queue.NatsURL})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		fq = nq
		log.Printf("Forward queue enabled (backend: nats, url: %s)", cfg.Queue.NatsURL)
	default:
		fq = queue.NewChannel(cfg.Queue.Depth)
		log.Printf("Forward queue enabled (backend: channel, depth: %d)", cfg.Queue.Depth)
	}
	defer fq.Close()

	// Token lookup, optionally fronted by redis
	var lookup tokens.Lookup
	if pg, ok := st.(*store.Postgres); ok {
		lookup = tokens.NewPostgresSource(pg.Pool())
	} else {
		lookup = tokens.Static{}
	}
	if cfg.Cache.Enabled {
		cached, err := tokens.NewRedisCache(lookup, cfg.Cache.URL, cfg.Cache.TTL)
		if err != nil {
			log.Printf("WARNING: Failed to initialize token cache: %v", err)
			log.Println("Continuing with uncached token lookups")
		} else {
			lookup = cached
			log.Printf("Token cache enabled (ttl: %s)", cfg.Cache.TTL)
		}
	}

	// Downstream delivery
	client := downstream.New(cfg.Downstream.BaseURL, cfg.Downstream.JWT, cfg.Downstream.AttemptTimeout)
	fwd := forwarder.New(client, lookup, forwarder.Config{
		MaxAttempts: cfg.Downstream.MaxAttempts,
		RetryBase:   cfg.Downstream.RetryBase,
	}, logger)
	if err := fq.Subscribe(fwd.Handle); err != nil {
		log.Fatalf("Failed to start forward workers: %v", err)
	}

	bridge := service.NewBridge(st, raw, fq, service.Options{
		AllowMetaOnly:   cfg.Ingestion.AllowMetaOnly,
		RejectSynthetic: cfg.Ingestion.RejectSynthetic,
	}, logger)

	handler := handlers.NewBridgeHandler(bridge, st, cfg.Auth.APIKey, int64(cfg.Ingestion.MaxBodySize), version, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Bridge service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
