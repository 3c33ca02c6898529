package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/guregu/null.v4"
)

func res(id, field int64, date, start, end, status string) models.Reservation {
	return models.Reservation{
		ID:        id,
		FieldID:   field,
		Date:      date,
		StartTime: schedule.MustParseTimeOfDay(start),
		EndTime:   schedule.MustParseTimeOfDay(end),
		Status:    status,
		CreatedAt: time.Date(2025, 11, 30, 10, 0, 0, 0, time.UTC),
	}
}

var testFields = []models.Field{{ID: 1, Name: "Campo 1"}, {ID: 2, Name: "Campo 2"}}

func TestSortReservations(t *testing.T) {
	list := []models.Reservation{
		res(1, 2, "2025-12-02", "18:00", "19:00", models.StatusPending),
		res(2, 1, "2025-12-02", "20:00", "21:00", models.StatusPending),
		res(3, 1, "2025-12-01", "21:00", "22:00", models.StatusPending),
		res(4, 1, "2025-12-02", "09:00", "10:00", models.StatusPending),
	}
	SortReservations(list)

	var ids []int64
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{3, 4, 2, 1}, ids)
}

func TestExporter_Build(t *testing.T) {
	list := []models.Reservation{
		res(10, 2, "2025-12-02", "18:00", "19:00", models.StatusConfirmed),
		res(11, 1, "2025-12-01", "20:00", "21:00", models.StatusPending),
		res(12, 1, "2025-12-01", "18:00", "19:00", models.StatusCancelled),
	}
	list[1].TeamID = null.IntFrom(3)

	buf, err := NewExporter(t.TempDir(), time.UTC).Build(list, testFields, "2025-12-01", "2025-12-02")
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{listSheet, scheduleSheet}, f.GetSheetList())

	rows, err := f.GetRows(listSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, listHeaders, rows[0])
	assert.Equal(t, "12", rows[1][0])
	assert.Equal(t, "11", rows[2][0])
	assert.Equal(t, "3", rows[2][7])
	assert.Equal(t, "Campo 2", rows[3][1])

	title, _ := f.GetCellValue(scheduleSheet, "A1")
	assert.Equal(t, "Период: 01.12.2025 - 02.12.2025", title)

	day1, _ := f.GetCellValue(scheduleSheet, "B3")
	assert.Equal(t, "⏳ 20:00-21:00 [№11]", day1, "cancelled reservations are not shown")
	free, _ := f.GetCellValue(scheduleSheet, "C3")
	assert.Equal(t, "Свободно", free)
	day2, _ := f.GetCellValue(scheduleSheet, "C4")
	assert.Equal(t, "✅ 18:00-19:00 [№10]", day2)
}

func TestExporter_BuildInvalidRange(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	_, err := e.Build(nil, testFields, "2025-12-05", "2025-12-01")
	assert.Error(t, err)
	_, err = e.Build(nil, testFields, "bad", "2025-12-01")
	assert.Error(t, err)
}

func TestExporter_SaveToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := NewExporter(dir, time.UTC).SaveToFile(nil, testFields, "2025-12-01", "2025-12-07")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "reservations_2025-12-01_to_2025-12-07.xlsx"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
