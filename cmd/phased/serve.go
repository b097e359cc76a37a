package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phased/internal/config"
	"github.com/fyrsmithlabs/phased/internal/effectiveness"
	"github.com/fyrsmithlabs/phased/internal/logging"
	"github.com/fyrsmithlabs/phased/internal/mcp"
	"github.com/fyrsmithlabs/phased/internal/orchestrator"
	"github.com/fyrsmithlabs/phased/internal/session"
	"github.com/fyrsmithlabs/phased/internal/verification"
)

// runServe wires the daemon together and blocks until a signal arrives
// or the stdio transport closes:
//
//  1. Load and validate configuration
//  2. Build the logger (stderr; stdout belongs to MCP)
//  3. Install the Prometheus meter provider
//  4. Open the session store
//  5. Build the orchestrator and the MCP server
//  6. Start the HTTP sidecar (health, metrics)
//  7. Serve MCP on stdio
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("init prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	var store session.Store
	switch cfg.Storage.Provider {
	case "snapshot":
		store, err = session.NewSnapshotStore(cfg.Storage.SnapshotDir, logger)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
	default:
		store = session.NewMemoryStore()
	}
	defer store.Close()

	orch, err := orchestrator.NewService(store, logger,
		orchestrator.WithVerificationConfig(verification.Config{
			CompletionThreshold: cfg.Verification.CompletionThreshold,
			EffectivenessFloor:  cfg.Verification.EffectivenessFloor,
		}),
		orchestrator.WithEffectivenessConfig(effectiveness.Config{
			Min:         cfg.Effectiveness.Min,
			Max:         cfg.Effectiveness.Max,
			Initial:     cfg.Effectiveness.Initial,
			SimpleStep:  cfg.Effectiveness.SimpleStep,
			ComplexStep: cfg.Effectiveness.ComplexStep,
		}))
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "phased",
		Version: version,
		Logger:  logger,
	}, orch)
	if err != nil {
		return fmt.Errorf("init mcp server: %w", err)
	}

	if cfg.Server.HTTPAddr != "" {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.GET("/health", func(c echo.Context) error {
			return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
		})
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

		go func() {
			if err := e.Start(cfg.Server.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http sidecar failed", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := e.Shutdown(sctx); err != nil {
				logger.Warn("http sidecar shutdown", zap.Error(err))
			}
		}()

		logger.Info("http sidecar listening",
			zap.String("addr", cfg.Server.HTTPAddr),
			zap.String("health_endpoint", "/health"),
			zap.String("metrics_endpoint", "/metrics"))
	}

	logger.Info("phased starting",
		zap.String("version", version),
		zap.String("storage_provider", cfg.Storage.Provider))

	return srv.Run(ctx)
}
