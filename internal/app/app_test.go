package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/events"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:      config.AppConfig{Name: "sportclub", Timezone: "UTC"},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "data", "club.db")},
		Redis:    config.RedisConfig{CacheTTL: time.Minute},
		Booking:  config.BookingConfig{DefaultStatus: models.StatusPending, MaxAdvanceDays: 30},
		Fields:   []models.Field{{ID: 1, Name: "Campo 1", IsActive: true}},
	}
}

func TestBuild_SQLiteMemoryCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers.Sheets.Enabled = true
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC))

	rt, err := Build(context.Background(), cfg, Options{Clock: clock}, &logger)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.SQLite)
	require.NotNil(t, rt.SheetsWorker)
	assert.Nil(t, rt.Redis)
	assert.Contains(t, logs.String(), "availability cache is per process")
	assert.Contains(t, rt.ReadinessChecks(), "store")

	var created []string
	rt.Bus.Subscribe(events.EventReservationCreated, func(ev *events.Event) error {
		created = append(created, ev.ID)
		return nil
	})

	ctx := context.Background()
	res, err := rt.Bookings.TryBook(ctx, models.BookingRequest{
		FieldID: 1, Date: "2025-12-02", StartTime: "18:00", EndTime: "19:00",
	}, cfg.Booking.DefaultStatus)
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Len(t, created, 1)

	tasks, err := rt.SQLite.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.SyncTaskUpsert, tasks[0].TaskType)

	slots, err := rt.Bookings.Availability(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestBuild_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Address = mr.Addr()
	logger := zerolog.Nop()

	rt, err := Build(context.Background(), cfg, Options{}, &logger)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Redis)
	checks := rt.ReadinessChecks()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
	assert.Nil(t, rt.SheetsWorker)
}

func TestBuild_Errors(t *testing.T) {
	logger := zerolog.Nop()

	cfg := testConfig(t)
	cfg.App.Timezone = "Mars/Olympus"
	_, err := Build(context.Background(), cfg, Options{}, &logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Catalog.Slots = []schedule.Slot{{Start: 20 * 60, End: 19 * 60}}
	_, err = Build(context.Background(), cfg, Options{}, &logger)
	assert.Error(t, err)
}
