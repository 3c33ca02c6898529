package repository

import (
	"context"
	"testing"
	"time"

	"sportclub/internal/schedule"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAvailabilityCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewMemoryAvailabilityCache(time.Minute, clock)
	ctx := context.Background()
	slots := []schedule.Slot{{Start: 960, End: 1020}}

	_, gen, ok, err := repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, gen)

	require.NoError(t, repo.SetSlots(ctx, 1, "2025-12-02", gen, slots))
	got, _, ok, err := repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, slots, got)

	// копия, а не общий срез
	got[0].Start = 0
	again, _, _, _ := repo.GetSlots(ctx, 1, "2025-12-02")
	assert.Equal(t, schedule.TimeOfDay(960), again[0].Start)

	clock.Advance(time.Minute)
	_, _, ok, err = repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetSlots(ctx, 1, "2025-12-02", gen, slots))
	require.NoError(t, repo.Invalidate(ctx, 1, "2025-12-02"))
	_, gen, ok, _ = repo.GetSlots(ctx, 1, "2025-12-02")
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)
}

func TestMemoryAvailabilityCache_StaleGenerationWriteIsDropped(t *testing.T) {
	repo := NewMemoryAvailabilityCache(time.Minute, clockwork.NewFakeClock())
	ctx := context.Background()
	allFree := []schedule.Slot{{Start: 960, End: 1020}, {Start: 1020, End: 1080}}

	_, gen, ok, err := repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	require.False(t, ok)

	// бронирование между чтением и записью
	require.NoError(t, repo.Invalidate(ctx, 1, "2025-12-02"))

	require.NoError(t, repo.SetSlots(ctx, 1, "2025-12-02", gen, allFree))
	_, current, ok, err := repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetSlots(ctx, 1, "2025-12-02", current, allFree[1:]))
	got, _, ok, err := repo.GetSlots(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, allFree[1:], got)

	// другие ключи не затронуты
	require.NoError(t, repo.SetSlots(ctx, 1, "2025-12-03", gen, allFree))
	_, _, ok, _ = repo.GetSlots(ctx, 1, "2025-12-03")
	assert.True(t, ok)
}

func TestMemoryAvailabilityCache_RateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := NewMemoryAvailabilityCache(time.Minute, clock)
	ctx := context.Background()

	allowed, _ := repo.CheckRateLimit(ctx, "user:1", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "user:1", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = repo.CheckRateLimit(ctx, "user:1", 2, time.Minute)
	assert.False(t, allowed)

	clock.Advance(time.Minute + time.Second)
	allowed, _ = repo.CheckRateLimit(ctx, "user:1", 2, time.Minute)
	assert.True(t, allowed)
}
