package models

import (
	"encoding/json"
	"testing"
	"time"

	"sportclub/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

func TestReservationBlocking(t *testing.T) {
	for status, want := range map[string]bool{
		StatusPending:   true,
		StatusConfirmed: true,
		StatusRejected:  false,
		StatusExpired:   false,
		StatusCancelled: false,
	} {
		r := Reservation{Status: status}
		assert.Equal(t, want, r.IsBlocking(), status)
		assert.True(t, IsValidStatus(status))
	}
	assert.False(t, IsValidStatus("in_attesa"))
}

func TestReservationTimes(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	r := Reservation{
		Date:      "2025-12-01",
		StartTime: schedule.MustParseTimeOfDay("18:00"),
		EndTime:   schedule.MustParseTimeOfDay("19:30"),
	}

	start, err := r.StartsAt(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 18, 0, 0, 0, loc), start)

	end, err := r.EndsAt(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 1, 19, 30, 0, 0, loc), end)

	r.Date = "01/12/2025"
	_, err = r.StartsAt(loc)
	assert.Error(t, err)
}

func TestReservationJSON(t *testing.T) {
	r := Reservation{
		ID:        7,
		FieldID:   2,
		TeamID:    null.IntFrom(11),
		Date:      "2025-12-01",
		StartTime: schedule.MustParseTimeOfDay("16:00"),
		EndTime:   schedule.MustParseTimeOfDay("17:00"),
		Status:    StatusPending,
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Nil(t, m["user_id"])
	assert.Equal(t, float64(11), m["team_id"])
	assert.Equal(t, "16:00", m["start_time"])
	assert.Nil(t, m["note"])
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		actor, from, to string
		exists, allowed bool
	}{
		{ActorStaff, StatusPending, StatusConfirmed, true, true},
		{ActorUser, StatusPending, StatusConfirmed, true, false},
		{ActorStaff, StatusPending, StatusRejected, true, true},
		{ActorUser, StatusConfirmed, StatusCancelled, true, true},
		{ActorSystem, StatusConfirmed, StatusExpired, true, true},
		{ActorStaff, StatusConfirmed, StatusExpired, true, false},
		{ActorUser, StatusCancelled, StatusPending, true, true},
		{ActorUser, StatusCancelled, StatusConfirmed, true, false},
		{ActorStaff, StatusRejected, StatusPending, false, false},
		{ActorStaff, StatusExpired, StatusConfirmed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.actor+"_"+tt.from+"_"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.exists, TransitionExists(tt.from, tt.to))
			assert.Equal(t, tt.allowed, ActorMayTransition(tt.actor, tt.from, tt.to))
		})
	}
}

func TestFieldHoursRule(t *testing.T) {
	h := FieldHours{StartTime: 600, EndTime: 660}
	assert.Nil(t, h.Rule().Weekday)

	h.Weekday = null.IntFrom(int64(time.Saturday))
	rule := h.Rule()
	require.NotNil(t, rule.Weekday)
	assert.Equal(t, time.Saturday, *rule.Weekday)
	assert.Equal(t, schedule.Slot{Start: 600, End: 660}, rule.Slot)
}
