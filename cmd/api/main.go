package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"templateapi/docs"
	"templateapi/internal/config"
	"templateapi/internal/conversion"
	"templateapi/internal/conversion/anthropic"
	"templateapi/internal/conversion/lorem"
	"templateapi/internal/database"
	"templateapi/internal/database/migration"
	handlers "templateapi/internal/http/handler"
	"templateapi/internal/http/middleware"
	"templateapi/internal/logging"
	apiotel "templateapi/internal/otel"
	"templateapi/internal/repository"
	"templateapi/internal/repository/memory"
	"templateapi/internal/repository/postgres"
	"templateapi/internal/service"
	"templateapi/internal/storage"
)

// @title Template API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	logger := logging.Default(cfg.Location())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := apiotel.Init(ctx, logger)
	if err != nil {
		fatal(logger, "tracing_init_failed", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	repo, err := openStore(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "store_init_failed", err)
	}
	defer repo.Close()

	opts := []service.Option{
		service.WithConversionTimeout(cfg.Conversion.Timeout),
		service.WithLogger(logger),
	}
	// Initialize S3-compatible object storage for upload archiving (optional)
	if cfg.MinIO.Enabled() {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			fatal(logger, "storage_init_failed", err)
		}
		opts = append(opts, service.WithStorage(objStore))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conv, err := buildTransformer(cfg.Conversion, reg)
	if err != nil {
		fatal(logger, "conversion_init_failed", err)
	}

	svc := service.NewTemplateService(repo, conv, opts...)

	app, err := newApp(cfg, reg, repo, svc)
	if err != nil {
		fatal(logger, "http_init_failed", err)
	}

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Info("server_starting",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"provider", cfg.Conversion.Provider,
		"archive", cfg.MinIO.Enabled(),
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		fatal(logger, "server_failed", err)
	}
}

func fatal(log *slog.Logger, event string, err error) {
	log.Error(event, "error", err.Error())
	os.Exit(1)
}

// openStore selects the template repository. The postgres store is migrated
// before use.
func openStore(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (repository.TemplateRepository, error) {
	switch cfg.StoreDriver {
	case "memory":
		return memory.NewTemplateMemory(), nil
	case "postgres", "":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, err
		}
		return postgres.NewTemplatePostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// buildTransformer selects the conversion provider and wraps it with metrics.
func buildTransformer(cfg config.ConversionConfig, reg prometheus.Registerer) (conversion.Transformer, error) {
	var (
		next conversion.Transformer
		name = cfg.Provider
	)
	switch name {
	case anthropic.Name:
		t, err := anthropic.New(cfg)
		if err != nil {
			return nil, err
		}
		next = t
	case lorem.Name:
		next = lorem.New(conversion.ParseMode(cfg.Mode), cfg.LoremDelay)
	default:
		return nil, fmt.Errorf("unknown CONVERSION_PROVIDER %q", name)
	}
	return conversion.NewInstrumented(next, name, reg)
}

// newApp builds the Fiber app with global middleware and every route.
func newApp(cfg *config.AppConfig, reg *prometheus.Registry, db database.Pinger, svc service.TemplateService) (*fiber.App, error) {
	maxUpload := cfg.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 4
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    maxUpload * 1024 * 1024,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	// Register global middleware
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return strings.HasSuffix(c.Path(), "/metrics")
	})))
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigins}))
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(cfg.Location()))
	app.Use(promMiddleware.Handler())

	metrics := adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	app.Get("/metrics", metrics)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, db, svc)
	handlers.RegisterRoutes(app.Group("/api"), db, svc)

	return app, nil
}

