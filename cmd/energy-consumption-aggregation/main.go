package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/i474232898/energy-consumption-aggregation/internal/api/http"
	"github.com/i474232898/energy-consumption-aggregation/internal/config"
	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
	"github.com/i474232898/energy-consumption-aggregation/internal/consumption/providers"
	"github.com/i474232898/energy-consumption-aggregation/internal/observability"
	"github.com/i474232898/energy-consumption-aggregation/internal/scheduler"
	"github.com/i474232898/energy-consumption-aggregation/internal/store"
)

const serviceName = "energy-consumption-aggregation"

func main() {
	// Load configuration (.env, config.json, environment).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(appLog)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics("", registry)

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	source := providers.NewOctopusProvider(httpClient, providers.OctopusConfig{
		BaseURL: cfg.URL,
		APIKey:  cfg.APIKey,
		MPAN:    cfg.MPAN,
		Serial:  cfg.Serial,
	})

	fileStore := store.NewFileStore(cfg.CSVPath, cfg.Location)

	syncer, err := consumption.NewSyncer(consumption.SyncerOptions{
		Source:       source,
		Store:        fileStore,
		PageSpanDays: cfg.PageSpanDays,
		PageTimeout:  cfg.PageTimeout,
		Logger:       appLog,
		Metrics:      metrics,
	})
	if err != nil {
		log.Fatalf("failed to create syncer: %v", err)
	}

	analytics, err := consumption.NewAnalytics(consumption.AnalyticsOptions{
		DayStart: cfg.DayStart,
		Windows:  cfg.AverageDays,
		Location: cfg.Location,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("failed to create analytics: %v", err)
	}

	service := consumption.NewService(syncer, analytics)

	// A broken store is reported through the status trail; the server still starts.
	if err := syncer.Init(); err != nil {
		appLog.Error("main: initial store load failed", slog.String("path", cfg.CSVPath), slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncer.Start(ctx)
	defer syncer.Stop()
	service.Trigger()

	// Scheduler that periodically brings the store up to date.
	sched := scheduler.New(service, cfg.SyncInterval, appLog)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.Location)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	appLog.Info("main: listening", slog.String("port", cfg.Port), slog.String("store", cfg.CSVPath))

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
