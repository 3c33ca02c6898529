package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sportclub/internal/domain"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"gopkg.in/guregu/null.v4"
)

const reservationColumns = `id, field_id, user_id, team_id, date, start_time, end_time,
	activity_type, note, status, cancelled_by, reminder_sent, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var start, end string
	err := row.Scan(
		&r.ID, &r.FieldID, &r.UserID, &r.TeamID, &r.Date, &start, &end,
		&r.ActivityType, &r.Note, &r.Status, &r.CancelledBy, &r.ReminderSent, &r.Version,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.StartTime, err = schedule.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("failed to parse start_time of reservation %d: %w", r.ID, err)
	}
	if r.EndTime, err = schedule.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("failed to parse end_time of reservation %d: %w", r.ID, err)
	}
	return &r, nil
}

func collectReservations(rows *sql.Rows) ([]models.Reservation, error) {
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
		return nil, unavailable("failed to iterate reservations", err)
	}
	return out, nil
}

// findOverlap returns the id of a blocking reservation intersecting iv, skipping excludeID.
func findOverlap(ctx context.Context, q rowQuerier, fieldID int64, date string, iv schedule.Slot, excludeID int64) (int64, bool, error) {
	query := `SELECT id FROM reservations
              WHERE field_id = ? AND date = ? AND status IN (?, ?)
              AND start_time < ? AND end_time > ? AND id != ?
              LIMIT 1`
	var id int64
	err := q.QueryRowContext(ctx, query, fieldID, date,
		models.StatusPending, models.StatusConfirmed,
		iv.End.String(), iv.Start.String(), excludeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("failed to check overlap", err)
	}
	return id, true, nil
}

// CreateReservation inserts r if its interval overlaps no blocking reservation of the same field and date.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.IsBlocking() {
		if _, taken, err := findOverlap(ctx, tx, r.FieldID, r.Date, r.Interval(), 0); err != nil {
			return err
		} else if taken {
			return ErrNotAvailable
		}
	}

	queryInsert := `INSERT INTO reservations (
				field_id, user_id, team_id, date, start_time, end_time, activity_type, note,
				status, cancelled_by, reminder_sent, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?)`
	now := db.clock.Now().UTC()
	result, err := tx.ExecContext(ctx, queryInsert,
		r.FieldID,
		r.UserID,
		r.TeamID,
		r.Date,
		r.StartTime.String(),
		r.EndTime.String(),
		r.ActivityType,
		r.Note,
		r.Status,
		r.CancelledBy,
		now,
		now,
	)
	switch {
	case isUniqueViolation(err):
		return ErrNotAvailable
	case isForeignKeyViolation(err):
		return fmt.Errorf("field %d: %w", r.FieldID, ErrNotFound)
	case err != nil:
		return unavailable("failed to insert reservation in tx", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return unavailable("failed to get last insert id in tx", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit reservation", err)
	}

	r.ID = id
	r.ReminderSent = false
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

func getReservation(ctx context.Context, q rowQuerier, id int64) (*models.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("failed to get reservation", err)
	}
	return r, nil
}

// ListReservations returns every reservation of a field on a date, any status, ordered by start.
func (db *DB) ListReservations(ctx context.Context, fieldID int64, date string) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE field_id = ? AND date = ? ORDER BY start_time, id`, fieldID, date)
	if err != nil {
		return nil, unavailable("failed to list reservations", err)
	}
	return collectReservations(rows)
}

func (db *DB) ListReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE user_id = ? ORDER BY date DESC, start_time`, userID)
	if err != nil {
		return nil, unavailable("failed to list user reservations", err)
	}
	return collectReservations(rows)
}

// ListReservationsByRange returns reservations with from <= date <= to.
func (db *DB) ListReservationsByRange(ctx context.Context, from, to string) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE date >= ? AND date <= ? ORDER BY date, field_id, start_time`, from, to)
	if err != nil {
		return nil, unavailable("failed to list reservations by range", err)
	}
	return collectReservations(rows)
}

// UpdateReservation rewrites the editable columns of r when the stored version equals fromVersion.
// The new interval must not overlap another blocking reservation.
func (db *DB) UpdateReservation(ctx context.Context, r *models.Reservation, fromVersion int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getReservation(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	if current.Version != fromVersion {
		return ErrConcurrentModification
	}

	if current.IsBlocking() {
		if _, taken, err := findOverlap(ctx, tx, r.FieldID, r.Date, r.Interval(), r.ID); err != nil {
			return err
		} else if taken {
			return ErrNotAvailable
		}
	}

	now := db.clock.Now().UTC()
	query := `UPDATE reservations SET field_id = ?, user_id = ?, team_id = ?, date = ?,
                start_time = ?, end_time = ?, activity_type = ?, note = ?, reminder_sent = 0,
                version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		r.FieldID, r.UserID, r.TeamID, r.Date, r.StartTime.String(), r.EndTime.String(),
		r.ActivityType, r.Note, now, r.ID, fromVersion)
	switch {
	case isUniqueViolation(err):
		return ErrNotAvailable
	case isForeignKeyViolation(err):
		return fmt.Errorf("field %d: %w", r.FieldID, ErrNotFound)
	case err != nil:
		return unavailable("failed to update reservation", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return unavailable("failed to commit reservation update", err)
	}

	r.Status = current.Status
	r.CancelledBy = current.CancelledBy
	r.ReminderSent = false
	r.Version = fromVersion + 1
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = now
	return nil
}

// UpdateReservationStatus moves a reservation to status. Moving back into a blocking status
// re-checks overlaps in the same transaction.
func (db *DB) UpdateReservationStatus(ctx context.Context, id, fromVersion int64, status string, cancelledBy null.String) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != fromVersion {
		return nil, ErrConcurrentModification
	}

	if models.IsBlockingStatus(status) && !current.IsBlocking() {
		if _, taken, err := findOverlap(ctx, tx, current.FieldID, current.Date, current.Interval(), id); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrNotAvailable
		}
	}

	now := db.clock.Now().UTC()
	query := `UPDATE reservations SET status = ?, cancelled_by = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, status, cancelledBy, now, id, fromVersion)
	switch {
	case isUniqueViolation(err):
		return nil, ErrNotAvailable
	case err != nil:
		return nil, unavailable("failed to update reservation status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("failed to commit status change", err)
	}

	current.Status = status
	current.CancelledBy = cancelledBy
	current.Version = fromVersion + 1
	current.UpdatedAt = now
	return current, nil
}

// DeleteReservation removes a reservation that no longer blocks its slot.
func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND status NOT IN (?, ?)`,
		id, models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return unavailable("failed to delete reservation", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	if _, err := db.GetReservation(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("reservation %d is still active: %w", id, domain.ErrInvalidTransition)
}

// ListEndedActive returns blocking reservations that ended at or before (today, now).
func (db *DB) ListEndedActive(ctx context.Context, today string, now schedule.TimeOfDay) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE status IN (?, ?) AND (date < ? OR (date = ? AND end_time <= ?))
              ORDER BY date, start_time`,
		models.StatusPending, models.StatusConfirmed, today, today, now.String())
	if err != nil {
		return nil, unavailable("failed to list ended reservations", err)
	}
	return collectReservations(rows)
}

func (db *DB) ListStalePending(ctx context.Context, createdBefore time.Time) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE status = ? AND created_at < ? ORDER BY created_at`,
		models.StatusPending, createdBefore.UTC())
	if err != nil {
		return nil, unavailable("failed to list stale pending reservations", err)
	}
	return collectReservations(rows)
}

// ListConfirmedStarting returns confirmed reservations on date starting in [from, to] without a reminder.
func (db *DB) ListConfirmedStarting(ctx context.Context, date string, from, to schedule.TimeOfDay) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations
              WHERE status = ? AND reminder_sent = 0 AND date = ? AND start_time >= ? AND start_time <= ?
              ORDER BY start_time`,
		models.StatusConfirmed, date, from.String(), to.String())
	if err != nil {
		return nil, unavailable("failed to list upcoming reservations", err)
	}
	return collectReservations(rows)
}

func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `UPDATE reservations SET reminder_sent = 1, updated_at = ? WHERE id = ?`,
		db.clock.Now().UTC(), id)
	if err != nil {
		return unavailable("failed to mark reminder sent", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteExpiredBefore purges expired reservations dated strictly before date.
func (db *DB) DeleteExpiredBefore(ctx context.Context, date string) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE status = ? AND date < ?`,
		models.StatusExpired, date)
	if err != nil {
		return 0, unavailable("failed to purge expired reservations", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
