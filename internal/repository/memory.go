package repository

import (
	"context"
	"sync"
	"time"

	"sportclub/internal/schedule"

	"github.com/jonboulle/clockwork"
)

type cachedSlots struct {
	slots     []schedule.Slot
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryAvailabilityCache is the in-process cache used without Redis and as failover fallback.
type MemoryAvailabilityCache struct {
	mu         sync.Mutex
	slots      map[string]cachedSlots
	gens       map[string]int64
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	clock      clockwork.Clock
}

func NewMemoryAvailabilityCache(ttl time.Duration, clock clockwork.Clock) *MemoryAvailabilityCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryAvailabilityCache{
		slots:      make(map[string]cachedSlots),
		gens:       make(map[string]int64),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		clock:      clock,
	}
}

func (r *MemoryAvailabilityCache) GetSlots(_ context.Context, fieldID int64, date string) ([]schedule.Slot, int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := availabilityKey(fieldID, date)
	gen := r.gens[key]
	entry, ok := r.slots[key]
	if !ok {
		return nil, gen, false, nil
	}
	if r.ttl > 0 && !r.clock.Now().Before(entry.expiresAt) {
		delete(r.slots, key)
		return nil, gen, false, nil
	}
	return append([]schedule.Slot{}, entry.slots...), gen, true, nil
}

// SetSlots drops the write when the key was invalidated after gen was read.
func (r *MemoryAvailabilityCache) SetSlots(_ context.Context, fieldID int64, date string, gen int64, slots []schedule.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := availabilityKey(fieldID, date)
	if r.gens[key] != gen {
		return nil
	}
	r.slots[key] = cachedSlots{
		slots:     append([]schedule.Slot{}, slots...),
		expiresAt: r.clock.Now().Add(r.ttl),
	}
	return nil
}

func (r *MemoryAvailabilityCache) Invalidate(_ context.Context, fieldID int64, date string) error {
	key := availabilityKey(fieldID, date)
	r.mu.Lock()
	delete(r.slots, key)
	r.gens[key]++
	r.mu.Unlock()
	return nil
}

func (r *MemoryAvailabilityCache) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	entry, ok := r.rateLimits[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
