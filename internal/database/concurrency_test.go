package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"sportclub/internal/domain"
	"sportclub/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

func TestConcurrentReservation(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.UpsertField(ctx, &models.Field{ID: 1, Name: "Campo 1", IsActive: true}))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			r := newReservation(1, "2025-12-02", "18:00", "19:00", models.StatusPending)
			r.UserID = null.IntFrom(int64(id))
			results <- db.CreateReservation(ctx, r)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	takenCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrSlotTaken):
			takenCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "only one reservation may hold the slot")
	assert.Equal(t, numGoroutines-1, takenCount)

	stored, err := db.ListReservations(ctx, 1, "2025-12-02")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}
