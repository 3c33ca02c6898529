package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/domain"
	"sportclub/internal/export"
	"sportclub/internal/metrics"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// BookingAPI is the booking surface the transports call.
type BookingAPI interface {
	Availability(ctx context.Context, fieldID int64, date string) ([]schedule.Slot, error)
	TryBook(ctx context.Context, req models.BookingRequest, policy string) (models.BookingResult, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Reservation, error)
	ListRange(ctx context.Context, from, to string) ([]models.Reservation, error)
	UpdateStatus(ctx context.Context, id, version int64, status, actor string) (*models.Reservation, error)
	UpdateReservation(ctx context.Context, id, version int64, req models.BookingRequest) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ExpireFinished(ctx context.Context) (int, error)
	AutoAccept(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// FieldAPI is the field catalog surface the transports call.
type FieldAPI interface {
	ListFields(ctx context.Context) ([]models.Field, error)
	GetField(ctx context.Context, id int64) (*models.Field, error)
	ListHours(ctx context.Context, fieldID int64) ([]models.FieldHours, error)
	AddHours(ctx context.Context, h *models.FieldHours) error
	RemoveHours(ctx context.Context, fieldID, id int64) error
	AddClosure(ctx context.Context, c *models.FieldClosure) error
	ListClosures(ctx context.Context, fieldID int64, from string) ([]models.FieldClosure, error)
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type HTTPDeps struct {
	Bookings      BookingAPI
	Fields        FieldAPI
	Exporter      *export.Exporter
	DefaultStatus string
	Checks        map[string]ReadinessCheck
	Clock         clockwork.Clock
	Location      *time.Location
	Logger        *zerolog.Logger
}

// HTTPServer exposes the booking API over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	deps     HTTPDeps
	auth     *HTTPAuth
	server   *http.Server
	handler  http.Handler
	log      zerolog.Logger
	mux      *http.ServeMux
	exporter *export.Exporter
}

func NewHTTPServer(cfg config.APIConfig, deps HTTPDeps) *HTTPServer {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.DefaultStatus == "" {
		deps.DefaultStatus = models.StatusPending
	}
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = deps.Logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{
		cfg:      cfg,
		deps:     deps,
		auth:     NewHTTPAuth(cfg),
		log:      log,
		mux:      http.NewServeMux(),
		exporter: deps.Exporter,
	}
	if srv.exporter == nil {
		srv.exporter = export.NewExporter("", deps.Location)
	}
	srv.routes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})
	srv.handler = c.Handler(srv.loggingMiddleware(srv.auth.Wrap(srv.mux)))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("GET /healthz", s.route("GET /healthz", "", s.handleHealth))
	s.mux.HandleFunc("GET /readyz", s.route("GET /readyz", "", s.handleReady))

	s.handle("GET /fields", PermReadAvailability, s.handleListFields)
	s.handle("GET /fields/{id}", PermReadAvailability, s.handleGetField)
	s.handle("GET /fields/{id}/availability", PermReadAvailability, s.handleAvailability)
	s.handle("GET /fields/{id}/hours", PermReadAvailability, s.handleListHours)
	s.handle("POST /fields/{id}/hours", PermManageReservations, s.handleAddHours)
	s.handle("DELETE /fields/{id}/hours/{hoursID}", PermManageReservations, s.handleRemoveHours)
	s.handle("GET /fields/{id}/closures", PermReadAvailability, s.handleListClosures)
	s.handle("POST /fields/{id}/closures", PermManageReservations, s.handleAddClosure)

	s.handle("POST /reservations", PermWriteReservations, s.handleBook)
	s.handle("GET /reservations", PermWriteReservations, s.handleListReservations)
	s.handle("GET /reservations/export", PermManageReservations, s.handleExport)
	s.handle("GET /reservations/{id}", PermWriteReservations, s.handleGetReservation)
	s.handle("PUT /reservations/{id}", PermManageReservations, s.handleUpdateReservation)
	s.handle("PATCH /reservations/{id}/status", PermWriteReservations, s.handleUpdateStatus)
	s.handle("DELETE /reservations/{id}", PermManageReservations, s.handleDeleteReservation)
	s.handle("POST /reservations/expire", PermManageReservations, s.handleExpire)
	s.handle("POST /reservations/auto-accept", PermManageReservations, s.handleAutoAccept)
	s.handle("DELETE /reservations/expired", PermManageReservations, s.handlePurge)
}

func (s *HTTPServer) handle(pattern, perm string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.route(pattern, perm, h))
}

// route tags the recorder with the pattern for metrics and enforces perm.
func (s *HTTPServer) route(pattern, perm string, h http.HandlerFunc) http.HandlerFunc {
	protected := h
	if perm != "" {
		protected = s.auth.Require(perm, h)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := w.(*statusRecorder); ok {
			rec.route = pattern
		}
		protected(w, r)
	}
}

// Handler returns the full middleware chain; used by tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK, route: "unmatched"}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(recorder.route, strconv.Itoa(recorder.status))
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) today() string {
	return s.deps.Clock.Now().In(s.deps.Location).Format(models.DateLayout)
}

// writeServiceError maps a service error to its status. Slot conflicts keep the booking result shape.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	switch {
	case errors.Is(err, domain.ErrSlotTaken):
		writeJSON(w, code, models.BookingResult{OK: false, Reason: models.ReasonSlotTaken})
	case code == http.StatusInternalServerError:
		s.log.Error().Err(err).Msg("unhandled error")
		writeError(w, code, internalErrorMessage)
	default:
		if code == http.StatusServiceUnavailable {
			s.log.Warn().Err(err).Msg("store unavailable")
		}
		writeError(w, code, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidRequest, name)
	}
	return id, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	route  string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

const (
	readyTimeout    = 2 * time.Second
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)
