package postgres

import (
	"context"
	"errors"
	"fmt"

	"sportclub/internal/domain"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/jackc/pgx/v5"
)

const fieldColumns = `id, name, address, surface, indoor, lighting, is_active, description, created_at, updated_at`

func scanField(row pgx.Row) (*models.Field, error) {
	var f models.Field
	if err := row.Scan(&f.ID, &f.Name, &f.Address, &f.Surface, &f.Indoor, &f.Lighting,
		&f.IsActive, &f.Description, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) UpsertField(ctx context.Context, f *models.Field) error {
	if f == nil {
		return fmt.Errorf("field is nil")
	}
	now := s.clock.Now().UTC()
	var row pgx.Row
	if f.ID == 0 {
		row = s.pool.QueryRow(ctx, `INSERT INTO fields (name, address, surface, indoor, lighting, is_active, description, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING `+fieldColumns,
			f.Name, f.Address, f.Surface, f.Indoor, f.Lighting, f.IsActive, f.Description, now)
	} else {
		row = s.pool.QueryRow(ctx, `INSERT INTO fields (id, name, address, surface, indoor, lighting, is_active, description, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
            ON CONFLICT (id) DO UPDATE SET
                name = EXCLUDED.name, address = EXCLUDED.address, surface = EXCLUDED.surface,
                indoor = EXCLUDED.indoor, lighting = EXCLUDED.lighting, is_active = EXCLUDED.is_active,
                description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
            RETURNING `+fieldColumns,
			f.ID, f.Name, f.Address, f.Surface, f.Indoor, f.Lighting, f.IsActive, f.Description, now)
	}
	stored, err := scanField(row)
	if err != nil {
		return mapError("failed to upsert field", err)
	}
	*f = *stored
	return nil
}

func (s *Store) GetField(ctx context.Context, id int64) (*models.Field, error) {
	f, err := scanField(s.pool.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("field %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, mapError("failed to get field", err)
	}
	return f, nil
}

func (s *Store) ListActiveFields(ctx context.Context) ([]models.Field, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fieldColumns+` FROM fields WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, mapError("failed to list fields", err)
	}
	defer rows.Close()

	var out []models.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		out = append(out, *f)
	}
	return out, mapError("failed to list fields", rows.Err())
}

func (s *Store) CreateFieldHours(ctx context.Context, h *models.FieldHours) error {
	now := s.clock.Now().UTC()
	err := s.pool.QueryRow(ctx, `INSERT INTO field_hours (field_id, weekday, start_min, end_min, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $5) RETURNING id`,
		h.FieldID, h.Weekday, int32(h.StartTime), int32(h.EndTime), now).Scan(&h.ID)
	if err != nil {
		return mapError(fmt.Sprintf("field %d", h.FieldID), err)
	}
	h.IsActive = true
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

func (s *Store) ListFieldHours(ctx context.Context, fieldID int64) ([]models.FieldHours, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, field_id, weekday, start_min, end_min, is_active, created_at, updated_at
        FROM field_hours WHERE field_id = $1 AND is_active ORDER BY weekday NULLS FIRST, start_min`, fieldID)
	if err != nil {
		return nil, mapError("failed to list field hours", err)
	}
	defer rows.Close()

	var out []models.FieldHours
	for rows.Next() {
		var h models.FieldHours
		var start, end int32
		if err := rows.Scan(&h.ID, &h.FieldID, &h.Weekday, &start, &end, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field hours: %w", err)
		}
		h.StartTime = schedule.TimeOfDay(start)
		h.EndTime = schedule.TimeOfDay(end)
		out = append(out, h)
	}
	return out, mapError("failed to list field hours", rows.Err())
}

func (s *Store) DeactivateFieldHours(ctx context.Context, fieldID, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE field_hours SET is_active = FALSE, updated_at = $1 WHERE id = $2 AND field_id = $3`,
		s.clock.Now().UTC(), id, fieldID)
	if err != nil {
		return mapError("failed to deactivate field hours", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("field hours %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateClosure(ctx context.Context, c *models.FieldClosure) error {
	err := s.pool.QueryRow(ctx, `INSERT INTO field_closures (field_id, date, reason, created_at)
        VALUES ($1, $2::date, $3, $4)
        ON CONFLICT (field_id, date) DO UPDATE SET reason = EXCLUDED.reason
        RETURNING id, created_at`, c.FieldID, c.Date, c.Reason, s.clock.Now().UTC()).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return mapError(fmt.Sprintf("field %d", c.FieldID), err)
	}
	return nil
}

func (s *Store) ListClosures(ctx context.Context, fieldID int64, from string) ([]models.FieldClosure, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, field_id, to_char(date, 'YYYY-MM-DD'), reason, created_at
        FROM field_closures WHERE field_id = $1 AND date >= $2::date ORDER BY date`, fieldID, from)
	if err != nil {
		return nil, mapError("failed to list closures", err)
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
	return out, mapError("failed to list closures", rows.Err())
}

func (s *Store) IsClosed(ctx context.Context, fieldID int64, date string) (bool, error) {
	var closed bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM field_closures WHERE field_id = $1 AND date = $2::date)`,
		fieldID, date).Scan(&closed)
	if err != nil {
		return false, mapError("failed to check closure", err)
	}
	return closed, nil
}
