package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skedge/skedge/internal/availability"
	"github.com/skedge/skedge/internal/config"
	"github.com/skedge/skedge/internal/credential"
	"github.com/skedge/skedge/internal/cronofy"
	"github.com/skedge/skedge/internal/directory"
	"github.com/skedge/skedge/internal/instrumentation"
	"github.com/skedge/skedge/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		debugMode      bool
		listenAddr     string
		metricsAddr    string
		metricsEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the availability HTTP API",
		Long: `Starts the skedge HTTP API.

The server exposes the availability query, registration management, and the
OAuth redirect endpoint. Prometheus metrics are served on a dedicated port.

Configuration is read from SKEDGE_* environment variables (a .env file in
the working directory is loaded first) and an optional skedge.yaml file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(debugMode, listenAddr, metricsAddr, metricsEnabled)
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "API listen address (overrides SKEDGE_LISTEN_ADDR)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics listen address (overrides SKEDGE_METRICS_ADDR)")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port")

	return cmd
}

func runServe(debugMode bool, listenAddr, metricsAddr string, metricsEnabled bool) error {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("error during instrumentation shutdown", "error", err)
		}
	}()

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if metricsEnabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsReady := make(chan struct{})
		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		select {
		case <-metricsReady:
			logger.Info("metrics server started", "addr", metricsServer.Addr())
		case err := <-metricsErr:
			return fmt.Errorf("metrics server failed to start: %w", err)
		case <-time.After(5 * time.Second):
			return fmt.Errorf("metrics server startup timed out")
		}
	}

	// Credential storage: Postgres when configured, in-memory otherwise.
	var dir directory.Directory
	if cfg.DatabaseURL != "" {
		pg, err := directory.NewPostgres(shutdownCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Error("error closing database", "error", err)
			}
		}()
		if err := pg.EnsureSchema(shutdownCtx); err != nil {
			return fmt.Errorf("failed to ensure database schema: %w", err)
		}
		dir = pg
		logger.Info("using postgres credential directory")
	} else {
		dir = directory.NewMemory()
		logger.Warn("no database configured, credentials are kept in memory only")
	}

	client := cronofy.NewClient(cronofy.Config{
		ClientID:     cfg.CronofyClientID,
		ClientSecret: cfg.CronofyClientSecret,
		RedirectURI:  cfg.CronofyRedirectURI,
		AuthHost:     cfg.CronofyAuthHost,
		APIHost:      cfg.CronofyAPIHost,
	})
	client.SetLogger(logger)

	manager := credential.NewManager(dir, client)
	manager.SetLogger(logger)
	manager.SetMetrics(provider.Metrics())

	orchestrator := availability.NewOrchestrator(manager, client,
		availability.WithWorkers(cfg.Workers),
		availability.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		availability.WithMergeAdjacency(cfg.MergeBuffer),
		availability.WithQueryDefaults(cfg.HorizonDays, cfg.StartHour, cfg.EndHour, cfg.Timezone),
		availability.WithFetchTimeout(cfg.FetchTimeout),
		availability.WithMetrics(provider.Metrics()),
		availability.WithTracer(provider.Tracer("availability")),
		availability.WithLogger(logger),
	)

	apiServer := server.New(orchestrator, manager, server.Config{
		Addr:           cfg.ListenAddr,
		RequestTimeout: cfg.ServerTimeout,
		Logger:         logger,
	})

	apiErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			apiErr <- err
		}
		close(apiErr)
	}()
	apiServer.Health().SetReady(true)

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("error shutting down api server", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("error shutting down metrics server", "error", err)
		}
	}
	return nil
}
