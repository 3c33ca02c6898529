package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sportclub/internal/models"
	"sportclub/internal/schedule"
)

const fieldColumns = `id, name, address, surface, indoor, lighting, is_active, description, created_at, updated_at`

func scanField(row rowScanner) (*models.Field, error) {
	var f models.Field
	if err := row.Scan(&f.ID, &f.Name, &f.Address, &f.Surface, &f.Indoor, &f.Lighting,
		&f.IsActive, &f.Description, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpsertField inserts a field or updates it by id. A zero id inserts a new row.
func (db *DB) UpsertField(ctx context.Context, f *models.Field) error {
	if f == nil {
		return fmt.Errorf("field is nil")
	}
	now := db.clock.Now().UTC()
	query := `INSERT INTO fields (id, name, address, surface, indoor, lighting, is_active, description, created_at, updated_at)
              VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, address = excluded.address, surface = excluded.surface,
                indoor = excluded.indoor, lighting = excluded.lighting, is_active = excluded.is_active,
                description = excluded.description, updated_at = excluded.updated_at
              RETURNING id`
	err := db.QueryRowContext(ctx, query,
		f.ID, f.Name, f.Address, f.Surface, f.Indoor, f.Lighting, f.IsActive, f.Description, now, now,
	).Scan(&f.ID)
	if err != nil {
		return unavailable("failed to upsert field", err)
	}

	stored, err := db.GetField(ctx, f.ID)
	if err != nil {
		return err
	}
	*f = *stored
	return nil
}

func (db *DB) GetField(ctx context.Context, id int64) (*models.Field, error) {
	f, err := scanField(db.QueryRowContext(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("field %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("failed to get field", err)
	}
	return f, nil
}

func (db *DB) ListActiveFields(ctx context.Context) ([]models.Field, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+fieldColumns+` FROM fields WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, unavailable("failed to list fields", err)
	}
	defer rows.Close()

	var fields []models.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

// --- Field hours ---

func (db *DB) CreateFieldHours(ctx context.Context, h *models.FieldHours) error {
	now := db.clock.Now().UTC()
	res, err := db.ExecContext(ctx, `INSERT INTO field_hours (field_id, weekday, start_time, end_time, is_active, created_at, updated_at)
        VALUES (?, ?, ?, ?, 1, ?, ?)`, h.FieldID, h.Weekday, h.StartTime.String(), h.EndTime.String(), now, now)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("field %d: %w", h.FieldID, ErrNotFound)
	}
	if err != nil {
		return unavailable("failed to create field hours", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("failed to get last insert id", err)
	}
	h.ID = id
	h.IsActive = true
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

// ListFieldHours returns the active weekly rules of a field.
func (db *DB) ListFieldHours(ctx context.Context, fieldID int64) ([]models.FieldHours, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, field_id, weekday, start_time, end_time, is_active, created_at, updated_at
        FROM field_hours WHERE field_id = ? AND is_active = 1 ORDER BY weekday, start_time`, fieldID)
	if err != nil {
		return nil, unavailable("failed to list field hours", err)
	}
	defer rows.Close()

	var out []models.FieldHours
	for rows.Next() {
		var h models.FieldHours
		var start, end string
		if err := rows.Scan(&h.ID, &h.FieldID, &h.Weekday, &start, &end, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field hours: %w", err)
		}
		if h.StartTime, err = schedule.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if h.EndTime, err = schedule.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (db *DB) DeactivateFieldHours(ctx context.Context, fieldID, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE field_hours SET is_active = 0, updated_at = ? WHERE id = ? AND field_id = ?`,
		db.clock.Now().UTC(), id, fieldID)
	if err != nil {
		return unavailable("failed to deactivate field hours", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("field hours %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Closures ---

// CreateClosure closes a field for a date; closing an already closed date updates the reason.
func (db *DB) CreateClosure(ctx context.Context, c *models.FieldClosure) error {
	now := db.clock.Now().UTC()
	err := db.QueryRowContext(ctx, `INSERT INTO field_closures (field_id, date, reason, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(field_id, date) DO UPDATE SET reason = excluded.reason
        RETURNING id`, c.FieldID, c.Date, c.Reason, now).Scan(&c.ID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("field %d: %w", c.FieldID, ErrNotFound)
	}
	if err != nil {
		return unavailable("failed to create closure", err)
	}
	c.CreatedAt = now
	return nil
}

// ListClosures returns closures of a field dated from onwards.
func (db *DB) ListClosures(ctx context.Context, fieldID int64, from string) ([]models.FieldClosure, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, field_id, date, reason, created_at
        FROM field_closures WHERE field_id = ? AND date >= ? ORDER BY date`, fieldID, from)
	if err != nil {
		return nil, unavailable("failed to list closures", err)
	}
	defer rows.Close()

	var out []models.FieldClosure
	for rows.Next() {
		var c models.FieldClosure
		if err := rows.Scan(&c.ID, &c.FieldID, &c.Date, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) IsClosed(ctx context.Context, fieldID int64, date string) (bool, error) {
	var closed bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM field_closures WHERE field_id = ? AND date = ?)`,
		fieldID, date).Scan(&closed)
	if err != nil {
		return false, unavailable("failed to check closure", err)
	}
	return closed, nil
}
