package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"sportclub/internal/domain"
	"sportclub/internal/export"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"gopkg.in/guregu/null.v4"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.deps.Fields.ListFields(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if fields == nil {
		fields = []models.Field{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (s *HTTPServer) handleGetField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	field, err := s.deps.Fields.GetField(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

type availabilityResponse struct {
	FieldID int64           `json:"field_id"`
	Date    string          `json:"date"`
	Slots   []schedule.Slot `json:"slots"`
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	slots, err := s.deps.Bookings.Availability(r.Context(), id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}
	writeJSON(w, http.StatusOK, availabilityResponse{FieldID: id, Date: date, Slots: slots})
}

type hoursBody struct {
	Weekday   null.Int           `json:"weekday"`
	StartTime schedule.TimeOfDay `json:"start_time"`
	EndTime   schedule.TimeOfDay `json:"end_time"`
}

func (s *HTTPServer) handleListHours(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	hours, err := s.deps.Fields.ListHours(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if hours == nil {
		hours = []models.FieldHours{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hours": hours})
}

func (s *HTTPServer) handleAddHours(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body hoursBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	h := &models.FieldHours{FieldID: id, Weekday: body.Weekday, StartTime: body.StartTime, EndTime: body.EndTime}
	if err := s.deps.Fields.AddHours(r.Context(), h); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *HTTPServer) handleRemoveHours(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	hoursID, err := pathID(r, "hoursID")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.deps.Fields.RemoveHours(r.Context(), id, hoursID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closureBody struct {
	Date   string      `json:"date"`
	Reason null.String `json:"reason"`
}

func (s *HTTPServer) handleListClosures(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	if from == "" {
		from = s.today()
	}
	closures, err := s.deps.Fields.ListClosures(r.Context(), id, from)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if closures == nil {
		closures = []models.FieldClosure{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"closures": closures})
}

func (s *HTTPServer) handleAddClosure(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body closureBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	c := &models.FieldClosure{FieldID: id, Date: strings.TrimSpace(body.Date), Reason: body.Reason}
	if err := s.deps.Fields.AddClosure(r.Context(), c); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	res, err := s.deps.Bookings.TryBook(r.Context(), req, s.deps.DefaultStatus)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !res.OK {
		writeJSON(w, http.StatusConflict, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		list []models.Reservation
		err  error
	)
	switch {
	case q.Get("user_id") != "":
		userID, perr := strconv.ParseInt(q.Get("user_id"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		list, err = s.deps.Bookings.ListByUser(r.Context(), userID)
	case q.Get("from") != "" || q.Get("to") != "":
		if !s.auth.keys.authorized(r.Context(), PermManageReservations) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}
		list, err = s.deps.Bookings.ListRange(r.Context(), q.Get("from"), q.Get("to"))
	default:
		writeError(w, http.StatusBadRequest, "user_id or from/to is required")
		return
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.deps.Bookings.GetReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateBody struct {
	Version int64 `json:"version"`
	models.BookingRequest
}

func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body updateBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if body.Version <= 0 {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}
	res, err := s.deps.Bookings.UpdateReservation(r.Context(), id, body.Version, body.BookingRequest)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statusBody struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if body.Status == "" || body.Version <= 0 {
		writeError(w, http.StatusBadRequest, "status and version are required")
		return
	}
	res, err := s.deps.Bookings.UpdateStatus(r.Context(), id, body.Version, body.Status, s.auth.Actor(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeleteReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.deps.Bookings.DeleteReservation(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleExpire(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Bookings.ExpireFinished(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

func (s *HTTPServer) handleAutoAccept(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Bookings.AutoAccept(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"confirmed": n})
}

func (s *HTTPServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Bookings.PurgeExpired(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	list, err := s.deps.Bookings.ListRange(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	fields, err := s.deps.Fields.ListFields(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	buf, err := s.exporter.Build(list, fields, from, to)
	if err != nil {
		s.writeServiceError(w, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
