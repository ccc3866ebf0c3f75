// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wastemap/internal/api"
	"github.com/onnwee/wastemap/internal/archive"
	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/config"
	"github.com/onnwee/wastemap/internal/db"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/health"
	"github.com/onnwee/wastemap/internal/jobs"
	"github.com/onnwee/wastemap/internal/mapview"
	"github.com/onnwee/wastemap/internal/middleware"
	"github.com/onnwee/wastemap/internal/proximity"
	"github.com/onnwee/wastemap/internal/report"
	"github.com/onnwee/wastemap/internal/tracing"
)

const (
	serviceName    = "wastemap-api"
	serviceVersion = "0.1.0"

	// anonymizeInterval is how often audit client IPs past retention are masked.
	anonymizeInterval = 24 * time.Hour
)

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Wastemap API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	args := make([]any, 0, 2*len(cfg.LogSummary()))
	for k, v := range cfg.LogSummary() {
		args = append(args, k, v)
	}
	logger.Info("configuration loaded", args...)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		InsecureMode:   cfg.TracingInsecure,
		SamplingRate:   cfg.TracingSamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down tracing", "error", err)
		}
	}()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := db.Open(openCtx, db.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dbMetrics := db.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	if err := dbMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register store metrics: %w", err)
	}
	if err := httpMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}
	if err := jobMetrics.Register(registry); err != nil {
		return fmt.Errorf("failed to register job metrics: %w", err)
	}

	loc := cfg.Location()
	auditRepo := audit.NewPostgresRepository(conn, dbMetrics)
	catalogRepo := catalog.NewPostgresRepository(conn, dbMetrics)
	hooks := audit.Hooks{audit.NewRecorder(auditRepo, logger)}

	anonymizer := audit.NewAnonymizer(auditRepo, cfg.AuditIPRetention, logger).WithMetrics(jobMetrics)
	go anonymizer.Start(ctx, anonymizeInterval)

	var runner report.Runner = report.NewEngine(report.NewPostgresSource(conn, dbMetrics), loc, logger)
	var cacheChecker api.HealthChecker
	if cfg.CacheEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		cache, err := report.NewCache(runner, client, cfg.ReportCacheTTL, loc, logger)
		if err != nil {
			return err
		}
		registry.MustRegister(cache.Collectors()...)
		runner = cache
		hooks = append(hooks, cache)
		cacheChecker = health.NewRedisChecker(client)
	}
	service := catalog.NewService(catalogRepo, hooks, loc, logger)

	reportCfg := api.ReportHandlersConfig{Runner: runner, Logger: logger}
	if cfg.ArchiveEnabled() {
		store, err := archive.NewStore(archive.Config{
			BucketName:      cfg.R2BucketName,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Endpoint:        cfg.R2Endpoint,
			URLExpiry:       cfg.R2URLExpiry,
		})
		if err != nil {
			return err
		}
		reportCfg.Archive = store
	}

	center, err := geo.NewLocation(cfg.MapDefaultLat, cfg.MapDefaultLng)
	if err != nil {
		return fmt.Errorf("invalid map center: %w", err)
	}
	mapCfg := mapview.Config{Center: center, Zoom: cfg.MapDefaultZoom, MinZoom: cfg.MapMinZoom, MaxZoom: cfg.MapMaxZoom}
	if err := mapCfg.Validate(); err != nil {
		return err
	}

	mux := api.NewRouter(api.Routes{
		Catalog: api.NewCatalogHandlers(service, proximity.NewEngine(catalogRepo)),
		Reports: api.NewReportHandlers(reportCfg),
		Map:     api.NewMapHandlers(service, mapCfg),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(conn),
			CacheChecker: cacheChecker,
		}),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newHandler(mux, logger, httpMetrics, cfg.CORSAllowedOrigins, cfg.TracingEnabled),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, server, logger)
}

// newHandler wraps mux in the middleware chain, outermost first: Recover,
// RequestID, Actor, Tracing, Logging, HTTPMetrics, CORS. Actor sits outside
// Logging so request lines carry the actor id.
func newHandler(mux http.Handler, logger *slog.Logger, metrics *middleware.Metrics, origins []string, tracingEnabled bool) http.Handler {
	h := middleware.CORS(middleware.CORSConfig{AllowedOrigins: origins, MaxAge: 600})(mux)
	h = middleware.HTTPMetrics(metrics)(h)
	h = middleware.Logging(logger)(h)
	if tracingEnabled {
		h = middleware.Tracing(serviceName)(h)
	}
	h = middleware.Actor(h)
	h = middleware.RequestID(h)
	return middleware.Recover(logger)(h)
}

// serve runs server until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
