package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sportclub/internal/domain"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"
)

// SQLSTATE codes mapped to domain errors.
const (
	codeExclusionViolation  = "23P01"
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store keeps fields and reservations in Postgres. Overlaps are rejected by the
// reservations_no_overlap exclusion constraint in addition to the in-transaction check.
type Store struct {
	pool   *pgxpool.Pool
	clock  clockwork.Clock
	logger *zerolog.Logger
}

// Open connects, pings and migrates. Timestamps come from clock.
func Open(ctx context.Context, dsn, migrationTable string, clock clockwork.Clock, logger *zerolog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := RunMigrations(pool, migrationTable, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, clock, logger), nil
}

func New(pool *pgxpool.Pool, clock clockwork.Clock, logger *zerolog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{pool: pool, clock: clock, logger: logger}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeExclusionViolation, codeUniqueViolation:
			return domain.ErrSlotTaken
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

const reservationColumns = `id, field_id, user_id, team_id, to_char(date, 'YYYY-MM-DD'), start_min, end_min,
	activity_type, note, status, cancelled_by, reminder_sent, version, created_at, updated_at`

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var r models.Reservation
	var start, end int32
	err := row.Scan(
		&r.ID, &r.FieldID, &r.UserID, &r.TeamID, &r.Date, &start, &end,
		&r.ActivityType, &r.Note, &r.Status, &r.CancelledBy, &r.ReminderSent, &r.Version,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.StartTime = schedule.TimeOfDay(start)
	r.EndTime = schedule.TimeOfDay(end)
	return &r, nil
}

func (s *Store) queryReservations(ctx context.Context, op, query string, args ...any) ([]models.Reservation, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func overlaps(ctx context.Context, q querier, fieldID int64, date string, iv schedule.Slot, excludeID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(
            SELECT 1 FROM reservations
            WHERE field_id = $1 AND date = $2::date AND status IN ('pending', 'confirmed')
            AND slot && int4range($3, $4) AND id <> $5)`,
		fieldID, date, int32(iv.Start), int32(iv.End), excludeID).Scan(&exists)
	if err != nil {
		return false, mapError("failed to check overlap", err)
	}
	return exists, nil
}

func getReservation(ctx context.Context, q querier, id int64, lock bool) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	r, err := scanReservation(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("failed to get reservation", err)
	}
	return r, nil
}

func (s *Store) CreateReservation(ctx context.Context, r *models.Reservation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if r.IsBlocking() {
		taken, err := overlaps(ctx, tx, r.FieldID, r.Date, r.Interval(), 0)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrSlotTaken
		}
	}

	now := s.clock.Now().UTC()
	err = tx.QueryRow(ctx, `INSERT INTO reservations (
                field_id, user_id, team_id, date, start_min, end_min, activity_type, note,
                status, cancelled_by, reminder_sent, version, created_at, updated_at)
            VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, FALSE, 1, $11, $11)
            RETURNING id`,
		r.FieldID, r.UserID, r.TeamID, r.Date, int32(r.StartTime), int32(r.EndTime),
		r.ActivityType, r.Note, r.Status, r.CancelledBy, now,
	).Scan(&r.ID)
	if err != nil {
		r.ID = 0
		return mapError("failed to insert reservation", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.ID = 0
		return mapError("failed to commit reservation", err)
	}

	r.ReminderSent = false
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, s.pool, id, false)
}

func (s *Store) ListReservations(ctx context.Context, fieldID int64, date string) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list reservations",
		`SELECT `+reservationColumns+` FROM reservations WHERE field_id = $1 AND date = $2::date ORDER BY start_min, id`,
		fieldID, date)
}

func (s *Store) ListReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list user reservations",
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = $1 ORDER BY date DESC, start_min`, userID)
}

func (s *Store) ListReservationsByRange(ctx context.Context, from, to string) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list reservations by range",
		`SELECT `+reservationColumns+` FROM reservations
         WHERE date BETWEEN $1::date AND $2::date ORDER BY date, field_id, start_min`, from, to)
}

func (s *Store) UpdateReservation(ctx context.Context, r *models.Reservation, fromVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := getReservation(ctx, tx, r.ID, true)
	if err != nil {
		return err
	}
	if current.Version != fromVersion {
		return domain.ErrConcurrentModification
	}
	if current.IsBlocking() {
		taken, err := overlaps(ctx, tx, r.FieldID, r.Date, r.Interval(), r.ID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrSlotTaken
		}
	}

	now := s.clock.Now().UTC()
	tag, err := tx.Exec(ctx, `UPDATE reservations SET field_id = $1, user_id = $2, team_id = $3, date = $4::date,
                start_min = $5, end_min = $6, activity_type = $7, note = $8, reminder_sent = FALSE,
                version = version + 1, updated_at = $9
            WHERE id = $10 AND version = $11`,
		r.FieldID, r.UserID, r.TeamID, r.Date, int32(r.StartTime), int32(r.EndTime),
		r.ActivityType, r.Note, now, r.ID, fromVersion)
	if err != nil {
		return mapError("failed to update reservation", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError("failed to commit reservation update", err)
	}

	r.Status = current.Status
	r.CancelledBy = current.CancelledBy
	r.ReminderSent = false
	r.Version = fromVersion + 1
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = now
	return nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id, fromVersion int64, status string, cancelledBy null.String) (*models.Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := getReservation(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if current.Version != fromVersion {
		return nil, domain.ErrConcurrentModification
	}
	if models.IsBlockingStatus(status) && !current.IsBlocking() {
		taken, err := overlaps(ctx, tx, current.FieldID, current.Date, current.Interval(), id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domain.ErrSlotTaken
		}
	}

	now := s.clock.Now().UTC()
	tag, err := tx.Exec(ctx, `UPDATE reservations SET status = $1, cancelled_by = $2, version = version + 1, updated_at = $3
            WHERE id = $4 AND version = $5`, status, cancelledBy, now, id, fromVersion)
	if err != nil {
		return nil, mapError("failed to update reservation status", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrConcurrentModification
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError("failed to commit status change", err)
	}

	current.Status = status
	current.CancelledBy = cancelledBy
	current.Version = fromVersion + 1
	current.UpdatedAt = now
	return current, nil
}

func (s *Store) DeleteReservation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reservations WHERE id = $1 AND status NOT IN ('pending', 'confirmed')`, id)
	if err != nil {
		return mapError("failed to delete reservation", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetReservation(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("reservation %d is still active: %w", id, domain.ErrInvalidTransition)
}

func (s *Store) ListEndedActive(ctx context.Context, today string, now schedule.TimeOfDay) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list ended reservations",
		`SELECT `+reservationColumns+` FROM reservations
         WHERE status IN ('pending', 'confirmed')
         AND (date < $1::date OR (date = $1::date AND end_min <= $2))
         ORDER BY date, start_min`, today, int32(now))
}

func (s *Store) ListStalePending(ctx context.Context, createdBefore time.Time) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list stale pending reservations",
		`SELECT `+reservationColumns+` FROM reservations WHERE status = 'pending' AND created_at < $1 ORDER BY created_at`,
		createdBefore)
}

func (s *Store) ListConfirmedStarting(ctx context.Context, date string, from, to schedule.TimeOfDay) ([]models.Reservation, error) {
	return s.queryReservations(ctx, "failed to list upcoming reservations",
		`SELECT `+reservationColumns+` FROM reservations
         WHERE status = 'confirmed' AND NOT reminder_sent AND date = $1::date AND start_min BETWEEN $2 AND $3
         ORDER BY start_min`, date, int32(from), int32(to))
}

func (s *Store) MarkReminderSent(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE reservations SET reminder_sent = TRUE, updated_at = $1 WHERE id = $2`,
		s.clock.Now().UTC(), id)
	if err != nil {
		return mapError("failed to mark reminder sent", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reservation %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, date string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reservations WHERE status = 'expired' AND date < $1::date`, date)
	if err != nil {
		return 0, mapError("failed to purge expired reservations", err)
	}
	return tag.RowsAffected(), nil
}
