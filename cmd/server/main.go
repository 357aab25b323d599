package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/storeimport/internal/catalog"
	"github.com/JonMunkholm/storeimport/internal/commit"
	"github.com/JonMunkholm/storeimport/internal/config"
	"github.com/JonMunkholm/storeimport/internal/database"
	"github.com/JonMunkholm/storeimport/internal/enrich"
	"github.com/JonMunkholm/storeimport/internal/ingest"
	"github.com/JonMunkholm/storeimport/internal/logging"
	"github.com/JonMunkholm/storeimport/internal/pipeline"
	"github.com/JonMunkholm/storeimport/internal/store"
	"github.com/JonMunkholm/storeimport/internal/validate"
	"github.com/JonMunkholm/storeimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"max_concurrent_commits", cfg.Import.MaxConcurrentCommits,
		"enrich_on_ingest", cfg.Import.EnrichOnIngest,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"require_api_key", cfg.Security.RequireAPIKey,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	logger := slog.Default()
	jobs := store.NewPostgres(pool)
	stores := catalog.NewPostgres(pool)

	// The atomic procedure is preferred; the probe runs once at startup
	atomic, err := commit.NewAtomicStrategy(pool, logger)
	if err != nil {
		slog.Error("failed to build atomic commit strategy", "error", err)
		os.Exit(1)
	}
	strategy, err := commit.SelectStrategy(ctx, pool, atomic, commit.NewSequentialStrategy(stores, logger), logger)
	if err != nil {
		slog.Error("failed to probe commit procedure", "error", err)
		os.Exit(1)
	}

	limiter := commit.NewLimiter(cfg.Import.MaxConcurrentCommits, cfg.Import.CommitWaitTime)
	engine := commit.NewEngine(jobs, strategy, stores, limiter, logger)

	fetcher := ingest.NewSheetFetcher(cfg.Import.SheetsBaseURL, cfg.Import.FetchTimeout, cfg.Import.MaxFileSize, logger)
	enricher := enrich.NewEnricher(
		enrich.NewFetcher(cfg.Import.EnrichTimeout, enrich.DefaultMaxBytes, cfg.Import.EnrichAllowPrivate),
		cfg.Import.EnrichConcurrency,
		logger,
	)

	pipeline.IngestTimeout = cfg.Import.Timeout
	service := pipeline.NewService(pipeline.Config{
		Jobs:      jobs,
		Parser:    ingest.NewParser(fetcher, cfg.Import.MaxFileSize),
		Validator: validate.NewValidator(),
		Enricher:  enricher,
		Engine:    engine,
		Workers:   cfg.Import.ValidationWorkers,
		Logger:    logger,
	})

	// Create server with config
	server, err := web.NewServer(service, cfg)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for in-flight commits to finalize (with timeout)
		status := limiter.Status()
		if status.Active > 0 {
			slog.Info("waiting for commits to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("commits did not complete in time", "error", err)
			} else {
				slog.Info("all commits completed")
			}
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr(), "commit_strategy", strategy.Name())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
