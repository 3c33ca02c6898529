// Package app assembles the storage, cache, event and service layers shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sportclub/internal/api"
	"sportclub/internal/config"
	"sportclub/internal/database"
	"sportclub/internal/database/postgres"
	"sportclub/internal/domain"
	"sportclub/internal/events"
	"sportclub/internal/repository"
	"sportclub/internal/schedule"
	"sportclub/internal/service"
	"sportclub/internal/worker"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options tune what Build wires.
type Options struct {
	// Sheets applies sync tasks. Nil with sheets enabled builds a worker that only enqueues.
	Sheets domain.SheetsWriter
	// RedisQueue pushes sync tasks to the Redis list in addition to the table.
	RedisQueue bool
	Clock      clockwork.Clock
}

// syncStore is what a backend provides to the service and sheets layers.
type syncStore interface {
	domain.Store
	worker.SyncQueue
}

// Runtime holds the wired dependencies of a process.
type Runtime struct {
	Config       *config.Config
	Location     *time.Location
	Clock        clockwork.Clock
	Store        domain.Store
	SQLite       *database.DB
	Redis        *redis.Client
	Cache        domain.AvailabilityCache
	Bus          *events.EventBus
	NATS         *nats.Conn
	SheetsWorker *worker.SheetsWorker
	Fields       *service.FieldService
	Bookings     *service.BookingService

	logger *zerolog.Logger
}

// Build opens the store, seeds fields and wires cache, events and services.
func Build(ctx context.Context, cfg *config.Config, opts Options, logger *zerolog.Logger) (*Runtime, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	rt := &Runtime{Config: cfg, Location: loc, Clock: clock, logger: logger}

	store, err := rt.openStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.Store = store

	rt.Cache = rt.initCache(ctx)

	rt.Bus = events.NewEventBusWithClock(clock)
	if cfg.NATS.Enabled {
		nc, err := events.Connect(cfg.NATS, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.NATS = nc
		events.NewNATSForwarder(nc, cfg.NATS.SubjectPrefix, logger).Attach(rt.Bus)
		logger.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("NATS connected")
	}

	var syncWorker domain.SyncWorker
	if cfg.Workers.Sheets.Enabled {
		var queueRedis *redis.Client
		if opts.RedisQueue {
			queueRedis = rt.Redis
		}
		rt.SheetsWorker = worker.NewSheetsWorker(store, opts.Sheets, queueRedis,
			worker.PolicyFromConfig(cfg.Workers.Sheets), clock, logger)
		rt.SheetsWorker.SetPollInterval(cfg.Workers.Sheets.PollInterval)
		syncWorker = rt.SheetsWorker
	}

	catalog, err := schedule.NewCatalog(cfg.Catalog.Slots)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}
	rt.Fields = service.NewFieldService(store, catalog, rt.Cache, logger)
	if err := rt.Fields.SeedFields(ctx, cfg.Fields); err != nil {
		rt.Close()
		return nil, fmt.Errorf("seed fields: %w", err)
	}

	rt.Bookings = service.NewBookingService(service.BookingDeps{
		Store:        store,
		Fields:       rt.Fields,
		Cache:        rt.Cache,
		EventBus:     rt.Bus,
		SheetsWorker: syncWorker,
		Config:       cfg.Booking,
		Location:     loc,
		Clock:        clock,
		Logger:       logger,
	})

	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (syncStore, error) {
	cfg := rt.Config.Database
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.Postgres.ConnString(), cfg.Postgres.MigrationTable, rt.Clock, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		rt.logger.Info().Str("host", cfg.Postgres.Host).Msg("Postgres store ready")
		return store, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err := database.NewDB(cfg.Path, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetClock(rt.Clock)
		rt.SQLite = db
		return db, nil
	}
}

// initCache prefers Redis with an in-memory fallback; without Redis it is memory only.
func (rt *Runtime) initCache(ctx context.Context) domain.AvailabilityCache {
	cfg := rt.Config.Redis
	memory := repository.NewMemoryAvailabilityCache(cfg.CacheTTL, rt.Clock)
	if cfg.Address == "" {
		rt.logger.Warn().Msg("Redis not configured, availability cache is per process; configure Redis when api and bot run side by side")
		return memory
	}

	client := repository.NewRedisClient(cfg)
	if err := repository.Ping(ctx, client); err != nil {
		rt.logger.Warn().Err(err).Msg("Redis unavailable, cache starts on memory fallback")
	} else {
		rt.logger.Info().Str("addr", cfg.Address).Msg("Redis connected")
	}
	rt.Redis = client
	primary := repository.NewRedisAvailabilityCache(client, cfg.CacheTTL)
	return repository.NewFailoverAvailabilityCache(primary, memory, rt.Clock, rt.logger)
}

// ReadinessChecks lists the dependencies /readyz probes.
func (rt *Runtime) ReadinessChecks() map[string]api.ReadinessCheck {
	checks := map[string]api.ReadinessCheck{"store": rt.Store.Ping}
	if rt.Redis != nil {
		client := rt.Redis
		checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, client) }
	}
	if rt.NATS != nil {
		nc := rt.NATS
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		}
	}
	return checks
}

// Close releases connections in reverse order of Build.
func (rt *Runtime) Close() {
	if rt.NATS != nil {
		if err := rt.NATS.Drain(); err != nil {
			rt.logger.Warn().Err(err).Msg("NATS drain error")
		}
	}
	if err := repository.Close(rt.Redis); err != nil {
		rt.logger.Warn().Err(err).Msg("Redis close error")
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Store close error")
		}
	}
}
