package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sportclub/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	listSheet     = "Reservations"
	scheduleSheet = "Schedule"
	dateLayout    = "2006-01-02"
)

var listHeaders = []string{
	"ID", "Field", "Date", "Start", "End", "Status", "User ID", "Team ID", "Activity", "Note", "Created At",
}

// Exporter builds xlsx workbooks of reservations.
type Exporter struct {
	dir string
	loc *time.Location
}

func NewExporter(dir string, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{dir: dir, loc: loc}
}

// FileName is the suggested download name for a range.
func FileName(from, to string) string {
	return fmt.Sprintf("reservations_%s_to_%s.xlsx", from, to)
}

// Build renders the list sheet and the field × day schedule for [from, to].
func (e *Exporter) Build(reservations []models.Reservation, fields []models.Field, from, to string) (*bytes.Buffer, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date: %w", err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("invalid date range: %s - %s", from, to)
	}

	sorted := make([]models.Reservation, len(reservations))
	copy(sorted, reservations)
	SortReservations(sorted)

	names := make(map[int64]string, len(fields))
	for _, f := range fields {
		names[f.ID] = f.Name
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(listSheet)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := e.writeList(f, sorted, names); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(scheduleSheet); err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	if err := e.writeSchedule(f, sorted, fields, start, end); err != nil {
		return nil, err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf, nil
}

// SaveToFile builds the workbook and stores it in the export directory.
func (e *Exporter) SaveToFile(reservations []models.Reservation, fields []models.Field, from, to string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	buf, err := e.Build(reservations, fields, from, to)
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.dir, FileName(from, to))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

// SortReservations orders by date, field and start time.
func SortReservations(list []models.Reservation) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.FieldID != b.FieldID {
			return a.FieldID < b.FieldID
		}
		return a.StartTime < b.StartTime
	})
}

func (e *Exporter) writeList(f *excelize.File, list []models.Reservation, names map[int64]string) error {
	header := make([]interface{}, len(listHeaders))
	for i, h := range listHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(listSheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(listHeaders), 1)
		_ = f.SetCellStyle(listSheet, "A1", last, bold)
	}

	for i, r := range list {
		fieldName := names[r.FieldID]
		if fieldName == "" {
			fieldName = fmt.Sprintf("#%d", r.FieldID)
		}
		row := []interface{}{
			r.ID,
			fieldName,
			r.Date,
			r.StartTime.String(),
			r.EndTime.String(),
			r.Status,
			nullInt(r.UserID.Valid, r.UserID.Int64),
			nullInt(r.TeamID.Valid, r.TeamID.Int64),
			r.ActivityType.String,
			r.Note.String,
			r.CreatedAt.In(e.loc).Format("02.01.2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(listSheet, "A", "A", 8)
	_ = f.SetColWidth(listSheet, "B", "B", 22)
	_ = f.SetColWidth(listSheet, "C", "F", 12)
	_ = f.SetColWidth(listSheet, "I", "K", 20)
	return nil
}

func (e *Exporter) writeSchedule(f *excelize.File, list []models.Reservation, fields []models.Field, start, end time.Time) error {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Период: %s - %s",
		start.Format("02.01.2006"), end.Format("02.01.2006")))

	// Заголовки - даты
	dateCols := make(map[string]int)
	col := 2
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("02.01"))
		dateCols[d.Format(dateLayout)] = col
		col++
	}
	lastCol := col - 1

	styles, err := newCellStyles(f)
	if err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(lastCol, 2)
	_ = f.SetCellStyle(scheduleSheet, "B2", lastHeader, styles.header)

	byCell := make(map[string][]models.Reservation)
	for _, r := range list {
		byCell[fmt.Sprintf("%d|%s", r.FieldID, r.Date)] = append(byCell[fmt.Sprintf("%d|%s", r.FieldID, r.Date)], r)
	}

	for i, field := range fields {
		row := i + 3
		nameCell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(scheduleSheet, nameCell, field.Name)
		_ = f.SetCellStyle(scheduleSheet, nameCell, nameCell, styles.field)

		for date, c := range dateCols {
			cell, _ := excelize.CoordinatesToCellName(c, row)
			active := activeOnly(byCell[fmt.Sprintf("%d|%s", field.ID, date)])
			if len(active) == 0 {
				_ = f.SetCellValue(scheduleSheet, cell, "Свободно")
				_ = f.SetCellStyle(scheduleSheet, cell, cell, styles.free)
				continue
			}
			_ = f.SetCellValue(scheduleSheet, cell, cellText(active))
			_ = f.SetCellStyle(scheduleSheet, cell, cell, styles.forReservations(active))
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 25)
	if lastCol >= 2 {
		first, _ := excelize.ColumnNumberToName(2)
		last, _ := excelize.ColumnNumberToName(lastCol)
		_ = f.SetColWidth(scheduleSheet, first, last, 20)
	}
	if lastCol > 1 {
		right, _ := excelize.CoordinatesToCellName(lastCol, 1)
		_ = f.MergeCell(scheduleSheet, "A1", right)
	}
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", styles.title)
	return nil
}

func activeOnly(list []models.Reservation) []models.Reservation {
	var out []models.Reservation
	for _, r := range list {
		if r.IsBlocking() {
			out = append(out, r)
		}
	}
	return out
}

func cellText(list []models.Reservation) string {
	var b strings.Builder
	for _, r := range list {
		fmt.Fprintf(&b, "%s %s-%s [№%d]", statusIcon(r.Status), r.StartTime, r.EndTime, r.ID)
		if r.ActivityType.Valid && r.ActivityType.String != "" {
			fmt.Fprintf(&b, " %s", r.ActivityType.String)
		}
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func statusIcon(status string) string {
	switch status {
	case models.StatusConfirmed:
		return "✅"
	case models.StatusPending:
		return "⏳"
	case models.StatusCancelled, models.StatusRejected:
		return "❌"
	default:
		return "❓"
	}
}

type cellStyles struct {
	title, header, field, free, pending, confirmed int
}

func newCellStyles(f *excelize.File) (cellStyles, error) {
	var s cellStyles
	var err error
	wrap := &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true}

	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, err
	}
	if s.field, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	}); err != nil {
		return s, err
	}
	if s.free, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFFFFF"}, Pattern: 1},
		Alignment: wrap,
	}); err != nil {
		return s, err
	}
	if s.pending, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
		Alignment: wrap,
	}); err != nil {
		return s, err
	}
	s.confirmed, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Alignment: wrap,
	})
	return s, err
}

// forReservations: жёлтый если есть неподтверждённые, иначе зелёный
func (s cellStyles) forReservations(list []models.Reservation) int {
	for _, r := range list {
		if r.Status == models.StatusPending {
			return s.pending
		}
	}
	return s.confirmed
}

func nullInt(valid bool, v int64) interface{} {
	if !valid {
		return ""
	}
	return v
}
