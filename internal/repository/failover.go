package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sportclub/internal/domain"
	"sportclub/internal/schedule"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverAvailabilityCache uses primary until it fails, then serves from fallback and
// retries primary once a minute.
type FailoverAvailabilityCache struct {
	primary  domain.AvailabilityCache
	fallback domain.AvailabilityCache
	logger   *zerolog.Logger
	clock    clockwork.Clock

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverAvailabilityCache(primary, fallback domain.AvailabilityCache, clock clockwork.Clock, logger *zerolog.Logger) *FailoverAvailabilityCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverAvailabilityCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		clock:    clock,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverAvailabilityCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverAvailabilityCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary availability cache failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = r.clock.Now()
	r.mu.Unlock()
}

func (r *FailoverAvailabilityCache) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary availability cache recovered")
	}
}

// Generations read from fallback are returned as -(g+1) so SetSlots writes back to
// the same layer the read came from.
func fallbackGeneration(gen int64) int64 { return -gen - 1 }

func (r *FailoverAvailabilityCache) GetSlots(ctx context.Context, fieldID int64, date string) ([]schedule.Slot, int64, bool, error) {
	if r.usePrimary() {
		slots, gen, ok, err := r.primary.GetSlots(ctx, fieldID, date)
		if err == nil {
			r.markUp()
			return slots, gen, ok, nil
		}
		r.markDown(err)
	}
	slots, gen, ok, err := r.fallback.GetSlots(ctx, fieldID, date)
	if err != nil {
		return nil, 0, false, err
	}
	return slots, fallbackGeneration(gen), ok, nil
}

func (r *FailoverAvailabilityCache) SetSlots(ctx context.Context, fieldID int64, date string, gen int64, slots []schedule.Slot) error {
	if gen < 0 {
		return r.fallback.SetSlots(ctx, fieldID, date, fallbackGeneration(gen), slots)
	}
	if err := r.primary.SetSlots(ctx, fieldID, date, gen, slots); err != nil {
		// Поколение прочитано из primary, в fallback его сверить не с чем
		r.markDown(err)
		return nil
	}
	r.markUp()
	return nil
}

// Invalidate clears both layers.
func (r *FailoverAvailabilityCache) Invalidate(ctx context.Context, fieldID int64, date string) error {
	fbErr := r.fallback.Invalidate(ctx, fieldID, date)
	if r.usePrimary() {
		if err := r.primary.Invalidate(ctx, fieldID, date); err != nil {
			r.markDown(err)
			return fbErr
		}
		r.markUp()
	}
	return fbErr
}

func (r *FailoverAvailabilityCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
