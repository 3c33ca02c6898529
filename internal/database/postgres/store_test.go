package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"sportclub/internal/domain"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

// setupStore connects to SPORTCLUB_TEST_POSTGRES_DSN and resets the schema data.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SPORTCLUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPORTCLUB_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	logger := zerolog.Nop()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(pool, "schema_migrations", &logger))
	_, err = pool.Exec(ctx, `TRUNCATE sync_queue, reservations, field_closures, field_hours, fields RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	s := New(pool, clockwork.NewFakeClockAt(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)), &logger)
	require.NoError(t, s.UpsertField(ctx, &models.Field{ID: 1, Name: "Campo 1", IsActive: true}))
	return s
}

func reservation(date, start, end string) *models.Reservation {
	return &models.Reservation{
		FieldID:   1,
		Date:      date,
		StartTime: schedule.MustParseTimeOfDay(start),
		EndTime:   schedule.MustParseTimeOfDay(end),
		Status:    models.StatusPending,
	}
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError("x", &pgconn.PgError{Code: codeExclusionViolation}), domain.ErrSlotTaken)
	assert.ErrorIs(t, mapError("x", &pgconn.PgError{Code: codeUniqueViolation}), domain.ErrSlotTaken)
	assert.ErrorIs(t, mapError("x", &pgconn.PgError{Code: codeForeignKeyViolation}), domain.ErrNotFound)

	cause := errors.New("connection reset")
	err := mapError("x", cause)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)

	assert.NotErrorIs(t, mapError("x", context.Canceled), domain.ErrStoreUnavailable)
	assert.NoError(t, mapError("x", nil))
}

func TestNew_DefaultsToRealClock(t *testing.T) {
	s := New(nil, nil, nil)
	require.NotNil(t, s.clock)
	assert.WithinDuration(t, time.Now(), s.clock.Now(), time.Minute)
}

func TestOpen_StampsWithGivenClock(t *testing.T) {
	dsn := os.Getenv("SPORTCLUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPORTCLUB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	logger := zerolog.Nop()
	at := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

	s, err := Open(ctx, dsn, "schema_migrations", clockwork.NewFakeClockAt(at), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE sync_queue, reservations, field_closures, field_hours, fields RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	require.NoError(t, s.UpsertField(ctx, &models.Field{ID: 1, Name: "Campo 1", IsActive: true}))

	r := reservation("2025-12-02", "16:00", "17:00")
	require.NoError(t, s.CreateReservation(ctx, r))
	got, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at), "created_at %s", got.CreatedAt)
}

func TestStore_Reservations(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	r := reservation("2025-12-02", "18:00", "19:00")
	r.TeamID = null.IntFrom(5)
	require.NoError(t, s.CreateReservation(ctx, r))
	assert.NotZero(t, r.ID)

	assert.ErrorIs(t, s.CreateReservation(ctx, reservation("2025-12-02", "18:30", "19:30")), domain.ErrSlotTaken)
	assert.NoError(t, s.CreateReservation(ctx, reservation("2025-12-02", "19:00", "20:00")))

	got, err := s.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-02", got.Date)
	assert.Equal(t, "18:00", got.StartTime.String())
	assert.Equal(t, int64(5), got.TeamID.Int64)

	list, err := s.ListReservations(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	updated, err := s.UpdateReservationStatus(ctx, r.ID, 1, models.StatusCancelled, null.StringFrom(models.ActorStaff))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.UpdateReservationStatus(ctx, r.ID, 1, models.StatusPending, null.String{})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	require.NoError(t, s.DeleteReservation(ctx, r.ID))
	_, err = s.GetReservation(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ExclusionConstraintUnderRace(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.CreateReservation(ctx, reservation("2025-12-03", "20:00", "21:00"))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSlotTaken)
	}
	assert.Equal(t, 1, ok)
}

func TestStore_FieldsAndQueue(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	h := &models.FieldHours{FieldID: 1, Weekday: null.IntFrom(6), StartTime: 540, EndTime: 600}
	require.NoError(t, s.CreateFieldHours(ctx, h))
	hours, err := s.ListFieldHours(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.Equal(t, "09:00", hours[0].StartTime.String())

	require.NoError(t, s.CreateClosure(ctx, &models.FieldClosure{FieldID: 1, Date: "2025-12-25"}))
	closed, err := s.IsClosed(ctx, 1, "2025-12-25")
	require.NoError(t, err)
	assert.True(t, closed)

	task := &models.SyncTask{TaskType: "upsert", ReservationID: 1, Payload: "{}"}
	require.NoError(t, s.CreateSyncTask(ctx, task))
	pending, err := s.GetPendingSyncTasks(ctx, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, "boom", nil))
	failed, err := s.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
