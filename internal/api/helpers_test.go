package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/database"
	"sportclub/internal/export"
	"sportclub/internal/models"
	"sportclub/internal/repository"
	"sportclub/internal/schedule"
	"sportclub/internal/service"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// понедельник, 09:00
var testNow = time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	bookings *service.BookingService
	fields   *service.FieldService
	db       *database.DB
	clock    *clockwork.FakeClock
	server   *HTTPServer
	ts       *httptest.Server
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClockAt(testNow)
	db.SetClock(clock)

	catalog, err := schedule.NewCatalog(nil)
	require.NoError(t, err)
	cache := repository.NewMemoryAvailabilityCache(time.Minute, clock)
	fields := service.NewFieldService(db, catalog, cache, &logger)
	require.NoError(t, fields.SeedFields(context.Background(), []models.Field{
		{ID: 1, Name: "Campo 1", IsActive: true},
		{ID: 2, Name: "Campo 2", IsActive: true},
	}))

	bookings := service.NewBookingService(service.BookingDeps{
		Store:  db,
		Fields: fields,
		Cache:  cache,
		Config: config.BookingConfig{
			DefaultStatus:   models.StatusPending,
			MinLeadTime:     time.Hour,
			MaxAdvanceDays:  90,
			AutoAcceptAfter: 72 * time.Hour,
			PurgeAfterDays:  7,
		},
		Location: time.UTC,
		Clock:    clock,
		Logger:   &logger,
	})

	server := NewHTTPServer(apiCfg, HTTPDeps{
		Bookings: bookings,
		Fields:   fields,
		Exporter: export.NewExporter(t.TempDir(), time.UTC),
		Checks:   map[string]ReadinessCheck{"store": db.Ping},
		Clock:    clock,
		Location: time.UTC,
		Logger:   &logger,
	})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{bookings: bookings, fields: fields, db: db, clock: clock, server: server, ts: ts}
}

func openAPI() config.APIConfig {
	return config.APIConfig{HTTP: config.APIHTTPConfig{Enabled: true}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func bookBody(field int64, date, start, end string) map[string]any {
	return map[string]any{"field_id": field, "date": date, "start_time": start, "end_time": end, "user_id": 7}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
