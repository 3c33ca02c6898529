package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"sportclub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t, openAPI())

	resp, body := env.do(t, http.MethodGet, "/fields/1/availability?date=2025-12-02", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"field_id":1,"date":"2025-12-02","slots":[
		{"start":"16:00","end":"17:00"},{"start":"18:00","end":"19:00"},
		{"start":"20:00","end":"21:00"},{"start":"21:00","end":"22:00"}]}`, string(body))

	resp, _ = env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "18:00", "19:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/fields/1/availability?date=2025-12-02", nil)
	var got availabilityResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Len(t, got.Slots, 3)
	assert.NotEqual(t, "18:00", got.Slots[1].Start.String())
}

func TestAvailabilityEndpoint_Errors(t *testing.T) {
	env := newTestEnv(t, openAPI())

	tests := []struct {
		name string
		path string
		code int
	}{
		{"MissingDate", "/fields/1/availability", http.StatusBadRequest},
		{"BadDate", "/fields/1/availability?date=02/12/2025", http.StatusBadRequest},
		{"BadID", "/fields/abc/availability?date=2025-12-02", http.StatusBadRequest},
		{"UnknownField", "/fields/99/availability?date=2025-12-02", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	t.Run("PastDateIsEmpty", func(t *testing.T) {
		resp, body := env.do(t, http.MethodGet, "/fields/1/availability?date=2025-11-01", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"field_id":1,"date":"2025-11-01","slots":[]}`, string(body))
	})
}

func TestBookEndpoint(t *testing.T) {
	env := newTestEnv(t, openAPI())

	resp, body := env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "20:00", "21:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.BookingResult
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.OK)
	require.NotNil(t, created.Reservation)
	assert.Equal(t, models.StatusPending, created.Reservation.Status)

	t.Run("SlotTaken", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "20:00", "21:00"))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.JSONEq(t, `{"ok":false,"reason":"slot_taken"}`, string(body))
	})

	t.Run("MissingField", func(t *testing.T) {
		body := bookBody(1, "2025-12-02", "18:00", "19:00")
		delete(body, "start_time")
		resp, _ := env.do(t, http.MethodPost, "/reservations", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownJSONField", func(t *testing.T) {
		body := bookBody(1, "2025-12-02", "18:00", "19:00")
		body["campo"] = "x"
		resp, _ := env.do(t, http.MethodPost, "/reservations", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("OtherFieldIsFree", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPost, "/reservations", bookBody(2, "2025-12-02", "20:00", "21:00"))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestReservationLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t, openAPI())

	_, body := env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-03", "18:00", "19:00"))
	var created models.BookingResult
	require.NoError(t, json.Unmarshal(body, &created))
	id := created.Reservation.ID
	path := fmt.Sprintf("/reservations/%d", id)

	resp, body := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Reservation
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, int64(1), got.Version)

	t.Run("StaleVersion", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodPatch, path+"/status", map[string]any{"status": "confirmed", "version": 5})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	resp, body = env.do(t, http.MethodPatch, path+"/status", map[string]any{"status": "confirmed", "version": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, models.StatusConfirmed, got.Status)

	resp, body = env.do(t, http.MethodPut, path, map[string]any{
		"version": got.Version, "date": "2025-12-03", "start_time": "20:00", "end_time": "21:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "20:00", got.StartTime.String())

	t.Run("DeleteBlockingRejected", func(t *testing.T) {
		resp, _ := env.do(t, http.MethodDelete, path, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	resp, body = env.do(t, http.MethodPatch, path+"/status", map[string]any{"status": "cancelled", "version": got.Version})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, models.ActorStaff, got.CancelledBy.String)

	resp, _ = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListReservationsEndpoint(t *testing.T) {
	env := newTestEnv(t, openAPI())
	env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "18:00", "19:00"))
	env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-04", "18:00", "19:00"))

	var out struct {
		Reservations []models.Reservation `json:"reservations"`
	}
	resp, body := env.do(t, http.MethodGet, "/reservations?user_id=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Reservations, 2)

	resp, body = env.do(t, http.MethodGet, "/reservations?from=2025-12-01&to=2025-12-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out.Reservations, 1)

	resp, _ = env.do(t, http.MethodGet, "/reservations", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/reservations?from=2025-12-05&to=2025-12-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFieldEndpoints(t *testing.T) {
	env := newTestEnv(t, openAPI())

	resp, body := env.do(t, http.MethodGet, "/fields", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Fields []models.Field `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Fields, 2)

	// вторник: 2025-12-02
	resp, body = env.do(t, http.MethodPost, "/fields/1/hours", map[string]any{"weekday": 2, "start_time": "09:00", "end_time": "10:30"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var hours models.FieldHours
	require.NoError(t, json.Unmarshal(body, &hours))

	_, body = env.do(t, http.MethodGet, "/fields/1/availability?date=2025-12-09", nil)
	assert.JSONEq(t, `{"field_id":1,"date":"2025-12-09","slots":[{"start":"09:00","end":"10:30"}]}`, string(body))

	resp, _ = env.do(t, http.MethodPost, "/fields/1/hours", map[string]any{"weekday": 9, "start_time": "09:00", "end_time": "10:00"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, fmt.Sprintf("/fields/1/hours/%d", hours.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/fields/1/closures", map[string]any{"date": "2025-12-25", "reason": "Natale"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, body = env.do(t, http.MethodGet, "/fields/1/closures", nil)
	assert.Contains(t, string(body), "2025-12-25")

	_, body = env.do(t, http.MethodGet, "/fields/1/availability?date=2025-12-25", nil)
	assert.JSONEq(t, `{"field_id":1,"date":"2025-12-25","slots":[]}`, string(body))
	resp, _ = env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-25", "18:00", "19:00"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweepEndpoints(t *testing.T) {
	env := newTestEnv(t, openAPI())
	env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-01", "16:00", "17:00"))

	env.clock.Advance(9 * time.Hour)
	resp, body := env.do(t, http.MethodPost, "/reservations/expire", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"expired":1}`, string(body))

	resp, body = env.do(t, http.MethodPost, "/reservations/auto-accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"confirmed":0}`, string(body))

	env.clock.Advance(10 * 24 * time.Hour)
	resp, body = env.do(t, http.MethodDelete, "/reservations/expired", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":1}`, string(body))
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t, openAPI())
	env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "18:00", "19:00"))

	resp, body := env.do(t, http.MethodGet, "/reservations/export?from=2025-12-01&to=2025-12-07", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "reservations_2025-12-01_to_2025-12-07.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	resp, _ = env.do(t, http.MethodGet, "/reservations/export?from=2025-12-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, openAPI())

	resp, _ := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.db.Close())
	resp, body := env.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "store")
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	env := newTestEnv(t, openAPI())
	require.NoError(t, env.db.Close())

	resp, _ := env.do(t, http.MethodPost, "/reservations", bookBody(1, "2025-12-02", "18:00", "19:00"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
