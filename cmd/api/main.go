package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sportclub/internal/api"
	"sportclub/internal/app"
	"sportclub/internal/config"
	"sportclub/internal/database"
	"sportclub/internal/export"
	"sportclub/internal/google"
	"sportclub/internal/logging"
	"sportclub/internal/metrics"
	"sportclub/internal/models"
	"sportclub/internal/worker"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const sheetsCacheRefresh = models.SheetsCacheTTL * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	sheets := initGoogleSheets(ctx, cfg, clock, &logger)

	opts := app.Options{RedisQueue: true, Clock: clock}
	if sheets != nil {
		opts.Sheets = sheets
	}
	rt, err := app.Build(ctx, cfg, opts, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("build runtime")
		return err
	}
	defer rt.Close()

	if sheets != nil {
		prepareSheets(ctx, sheets, rt, &logger)
	}

	startWorkers(ctx, cfg, rt, &logger)
	startMetrics(ctx, cfg, &logger)

	if !cfg.API.HTTP.Enabled && !cfg.API.GRPC.Enabled {
		logger.Warn().Msg("Both HTTP and gRPC are disabled, running workers only")
	}

	httpServer := api.NewHTTPServer(cfg.API, api.HTTPDeps{
		Bookings:      rt.Bookings,
		Fields:        rt.Fields,
		Exporter:      export.NewExporter(cfg.Exports.Path, rt.Location),
		DefaultStatus: cfg.Booking.DefaultStatus,
		Checks:        rt.ReadinessChecks(),
		Clock:         clock,
		Location:      rt.Location,
		Logger:        logging.Component(&logger, "http"),
	})

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		svc := api.NewAvailabilityService(rt.Bookings, rt.Fields, cfg.Booking.DefaultStatus)
		grpcServer, err = api.NewGRPCServer(&cfg.API, svc, logging.Component(&logger, "grpc"))
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Workers.Sheets.Enabled {
		return nil
	}
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationSpreadsheetID == "" {
		logger.Warn().Msg("sheets sync enabled without credentials, tasks will only be queued")
		return nil
	}

	loc, err := cfg.App.Location()
	if err != nil {
		logger.Warn().Err(err).Msg("timezone for sheets")
		loc = time.Local
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google, clock, loc)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	logger.Info().Str("spreadsheet", cfg.Google.ReservationSpreadsheetID).Msg("google sheets connected")
	return sheets
}

func prepareSheets(ctx context.Context, sheets *google.SheetsService, rt *app.Runtime, logger *zerolog.Logger) {
	if fields, err := rt.Fields.ListFields(ctx); err == nil {
		sheets.SetFieldNames(fields)
	} else {
		logger.Warn().Err(err).Msg("load field names for sheets")
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets header")
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("sheets cache warm up")
	}
	sheets.StartCacheRefresh(ctx, sheetsCacheRefresh, func(err error) {
		logger.Warn().Err(err).Msg("sheets cache refresh")
	})
}

func startWorkers(ctx context.Context, cfg *config.Config, rt *app.Runtime, logger *zerolog.Logger) {
	if rt.SheetsWorker != nil {
		go rt.SheetsWorker.Start(ctx)
	}

	sweeper := worker.NewSweeper(rt.Bookings, cfg.Workers.SweepInterval, rt.Clock, logging.Component(logger, "sweeper"))
	go sweeper.Start(ctx)

	if cfg.Reminders.Enabled {
		reminders := worker.NewReminderWorker(rt.Bookings, cfg.Reminders, cfg.Workers.ReminderInterval, rt.Clock, logging.Component(logger, "reminders"))
		go reminders.Start(ctx)
	}

	if cfg.Backup.Enabled && rt.SQLite != nil {
		backup := database.NewBackupService(rt.SQLite, cfg.Backup, rt.Clock, logging.Component(logger, "backup"))
		go backup.Start(ctx)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
