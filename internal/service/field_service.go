package service

import (
	"context"
	"fmt"
	"time"

	"sportclub/internal/domain"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/rs/zerolog"
)

// FieldService manages fields, their weekly hours and closures, and resolves the slot catalog of a day.
type FieldService struct {
	store   domain.FieldStore
	catalog *schedule.Catalog
	cache   domain.AvailabilityCache
	logger  *zerolog.Logger
}

func NewFieldService(store domain.FieldStore, catalog *schedule.Catalog, cache domain.AvailabilityCache, logger *zerolog.Logger) *FieldService {
	return &FieldService{
		store:   store,
		catalog: catalog,
		cache:   cache,
		logger:  logger,
	}
}

// SeedFields upserts the configured fields by id.
func (s *FieldService) SeedFields(ctx context.Context, fields []models.Field) error {
	for i := range fields {
		f := fields[i]
		if err := s.store.UpsertField(ctx, &f); err != nil {
			return fmt.Errorf("seed field %d: %w", f.ID, err)
		}
	}
	s.logger.Info().Int("count", len(fields)).Msg("Fields seeded")
	return nil
}

func (s *FieldService) ListFields(ctx context.Context) ([]models.Field, error) {
	return s.store.ListActiveFields(ctx)
}

func (s *FieldService) GetField(ctx context.Context, id int64) (*models.Field, error) {
	return s.store.GetField(ctx, id)
}

// ActiveField returns the field or ErrNotFound when it is unknown or inactive.
func (s *FieldService) ActiveField(ctx context.Context, id int64) (*models.Field, error) {
	f, err := s.store.GetField(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, fmt.Errorf("field %d is inactive: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

func (s *FieldService) ListHours(ctx context.Context, fieldID int64) ([]models.FieldHours, error) {
	if _, err := s.store.GetField(ctx, fieldID); err != nil {
		return nil, err
	}
	return s.store.ListFieldHours(ctx, fieldID)
}

// AddHours adds a weekly rule. The cached availability of the field is not tracked per weekday,
// so it ages out through the cache TTL.
func (s *FieldService) AddHours(ctx context.Context, h *models.FieldHours) error {
	if h.Weekday.Valid && (h.Weekday.Int64 < 0 || h.Weekday.Int64 > 6) {
		return fmt.Errorf("%w: weekday must be 0..6", domain.ErrInvalidRequest)
	}
	if err := (schedule.Slot{Start: h.StartTime, End: h.EndTime}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if _, err := s.store.GetField(ctx, h.FieldID); err != nil {
		return err
	}
	if err := s.store.CreateFieldHours(ctx, h); err != nil {
		return err
	}
	s.logger.Info().Int64("field_id", h.FieldID).Int64("hours_id", h.ID).Msg("Field hours added")
	return nil
}

func (s *FieldService) RemoveHours(ctx context.Context, fieldID, id int64) error {
	return s.store.DeactivateFieldHours(ctx, fieldID, id)
}

// AddClosure closes a field on a date.
func (s *FieldService) AddClosure(ctx context.Context, c *models.FieldClosure) error {
	if _, err := time.Parse(models.DateLayout, c.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q", domain.ErrInvalidRequest, c.Date)
	}
	if _, err := s.store.GetField(ctx, c.FieldID); err != nil {
		return err
	}
	if err := s.store.CreateClosure(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.FieldID, c.Date)
	s.logger.Info().Int64("field_id", c.FieldID).Str("date", c.Date).Msg("Field closed")
	return nil
}

func (s *FieldService) ListClosures(ctx context.Context, fieldID int64, from string) ([]models.FieldClosure, error) {
	if _, err := time.Parse(models.DateLayout, from); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidRequest, from)
	}
	return s.store.ListClosures(ctx, fieldID, from)
}

// SlotsFor resolves the catalog of an active field on day. A closed day has no slots.
func (s *FieldService) SlotsFor(ctx context.Context, fieldID int64, day time.Time) ([]schedule.Slot, bool, error) {
	if _, err := s.ActiveField(ctx, fieldID); err != nil {
		return nil, false, err
	}
	closed, err := s.store.IsClosed(ctx, fieldID, day.Format(models.DateLayout))
	if err != nil {
		return nil, false, err
	}
	if closed {
		return []schedule.Slot{}, true, nil
	}

	hours, err := s.store.ListFieldHours(ctx, fieldID)
	if err != nil {
		return nil, false, err
	}
	rules := make([]schedule.Rule, 0, len(hours))
	for _, h := range hours {
		rules = append(rules, h.Rule())
	}
	return s.catalog.SlotsFor(rules, day.Weekday()), false, nil
}

func (s *FieldService) invalidate(ctx context.Context, fieldID int64, date string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fieldID, date); err != nil {
		s.logger.Warn().Err(err).Int64("field_id", fieldID).Str("date", date).Msg("availability cache invalidate error")
	}
}
