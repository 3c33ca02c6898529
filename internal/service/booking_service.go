package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/domain"
	"sportclub/internal/events"
	"sportclub/internal/metrics"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"
)

// BookingDeps groups what BookingService is built from. Cache, EventBus and SheetsWorker may be nil.
type BookingDeps struct {
	Store        domain.ReservationStore
	Fields       *FieldService
	Cache        domain.AvailabilityCache
	EventBus     domain.EventPublisher
	SheetsWorker domain.SyncWorker
	Config       config.BookingConfig
	Location     *time.Location
	Clock        clockwork.Clock
	Logger       *zerolog.Logger
}

type BookingService struct {
	store        domain.ReservationStore
	fields       *FieldService
	cache        domain.AvailabilityCache
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	cfg          config.BookingConfig
	loc          *time.Location
	clock        clockwork.Clock
	logger       *zerolog.Logger
}

func NewBookingService(deps BookingDeps) *BookingService {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &BookingService{
		store:        deps.Store,
		fields:       deps.Fields,
		cache:        deps.Cache,
		eventBus:     deps.EventBus,
		sheetsWorker: deps.SheetsWorker,
		cfg:          deps.Config,
		loc:          deps.Location,
		clock:        deps.Clock,
		logger:       deps.Logger,
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// now returns the current instant in the club time zone.
func (s *BookingService) now() time.Time {
	return s.clock.Now().In(s.loc)
}

func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func timeOfDay(t time.Time) schedule.TimeOfDay {
	return schedule.TimeOfDay(t.Hour()*60 + t.Minute())
}

func (s *BookingService) parseDate(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(models.DateLayout, raw, s.loc)
	if err != nil {
		return time.Time{}, invalidf("invalid date %q", raw)
	}
	return day, nil
}

// earliestStart is the first start time still bookable today, or false when nothing is left.
func (s *BookingService) earliestStart(now time.Time) (schedule.TimeOfDay, bool) {
	earliest := now.Add(s.cfg.MinLeadTime)
	if !today(earliest).Equal(today(now)) {
		return 0, false
	}
	t := timeOfDay(earliest)
	if earliest.Second() > 0 || earliest.Nanosecond() > 0 {
		t++
	}
	return t, true
}

// Availability returns the free catalog slots of a field on date.
func (s *BookingService) Availability(ctx context.Context, fieldID int64, date string) ([]schedule.Slot, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	catalog, closed, err := s.fields.SlotsFor(ctx, fieldID, day)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if closed || day.Before(today(now)) {
		return []schedule.Slot{}, nil
	}

	free, err := s.freeSlots(ctx, fieldID, date, catalog)
	if err != nil {
		return nil, err
	}

	if day.Equal(today(now)) {
		earliest, ok := s.earliestStart(now)
		if !ok {
			return []schedule.Slot{}, nil
		}
		free = schedule.StartingFrom(free, earliest)
	}
	if free == nil {
		free = []schedule.Slot{}
	}
	return free, nil
}

func (s *BookingService) freeSlots(ctx context.Context, fieldID int64, date string, catalog []schedule.Slot) ([]schedule.Slot, error) {
	// Поколение читается до ListReservations: бронь между чтением и записью
	// сдвигает его, и устаревший список не попадает в кэш
	cacheable := false
	var gen int64
	if s.cache != nil {
		slots, g, ok, err := s.cache.GetSlots(ctx, fieldID, date)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Int64("field_id", fieldID).Str("date", date).Msg("availability cache read error")
		case ok:
			return slots, nil
		default:
			cacheable, gen = true, g
		}
	}

	reservations, err := s.store.ListReservations(ctx, fieldID, date)
	if err != nil {
		return nil, err
	}
	free := schedule.ComputeAvailability(catalog, reservations)

	if cacheable {
		if err := s.cache.SetSlots(ctx, fieldID, date, gen, free); err != nil {
			s.logger.Warn().Err(err).Int64("field_id", fieldID).Str("date", date).Msg("availability cache write error")
		}
	}
	return free, nil
}

// admission is a parsed and validated booking interval.
type admission struct {
	day      time.Time
	interval schedule.Slot
}

// validateInterval runs the calendar checks shared by booking and rescheduling.
func (s *BookingService) validateInterval(ctx context.Context, fieldID int64, date, start, end string) (admission, error) {
	switch {
	case fieldID == 0:
		return admission{}, invalidf("field_id is required")
	case date == "":
		return admission{}, invalidf("date is required")
	case start == "":
		return admission{}, invalidf("start_time is required")
	case end == "":
		return admission{}, invalidf("end_time is required")
	}

	day, err := s.parseDate(date)
	if err != nil {
		return admission{}, err
	}
	startTime, err := schedule.ParseTimeOfDay(start)
	if err != nil {
		return admission{}, invalidf("start_time: %v", err)
	}
	endTime, err := schedule.ParseTimeOfDay(end)
	if err != nil {
		return admission{}, invalidf("end_time: %v", err)
	}
	interval, err := schedule.NewSlot(startTime, endTime)
	if err != nil {
		return admission{}, invalidf("%v", err)
	}

	catalog, closed, err := s.fields.SlotsFor(ctx, fieldID, day)
	if err != nil {
		return admission{}, err
	}

	now := s.now()
	current := today(now)
	switch {
	case day.Before(current):
		return admission{}, invalidf("date %s is in the past", date)
	case s.cfg.MaxAdvanceDays > 0 && day.After(current.AddDate(0, 0, s.cfg.MaxAdvanceDays)):
		return admission{}, invalidf("date %s is more than %d days ahead", date, s.cfg.MaxAdvanceDays)
	case closed:
		return admission{}, invalidf("field %d is closed on %s", fieldID, date)
	}
	if day.Equal(current) {
		earliest, ok := s.earliestStart(now)
		if !ok || interval.Start < earliest {
			return admission{}, invalidf("bookings for today must start at least %s ahead", s.cfg.MinLeadTime)
		}
	}
	if s.cfg.CatalogRestricted() && !schedule.Contains(catalog, interval) {
		return admission{}, invalidf("%s is not a bookable slot", interval)
	}

	return admission{day: day, interval: interval}, nil
}

func requesterKey(userID, teamID null.Int) string {
	switch {
	case userID.Valid:
		return "booking:user:" + strconv.FormatInt(userID.Int64, 10)
	case teamID.Valid:
		return "booking:team:" + strconv.FormatInt(teamID.Int64, 10)
	}
	return ""
}

func (s *BookingService) checkQuota(ctx context.Context, req models.BookingRequest) error {
	limits := s.cfg.RateLimit
	if s.cache == nil || limits.Requests <= 0 || limits.Window <= 0 {
		return nil
	}
	key := requesterKey(req.UserID, req.TeamID)
	if key == "" {
		return nil
	}
	allowed, err := s.cache.CheckRateLimit(ctx, key, limits.Requests, limits.Window)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate limit check error")
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, key)
	}
	return nil
}

// TryBook admits a booking request with the given initial status. A conflicting request yields
// a result with OK false and Reason slot_taken and a nil error.
func (s *BookingService) TryBook(ctx context.Context, req models.BookingRequest, policy string) (models.BookingResult, error) {
	res, err := s.tryBook(ctx, req, policy)
	switch {
	case err == nil && res.OK:
		metrics.IncBooking(metrics.OutcomeCreated)
	case err == nil:
		metrics.IncBooking(metrics.OutcomeSlotTaken)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRateLimited):
		metrics.IncBooking(metrics.OutcomeInvalid)
	default:
		metrics.IncBooking(metrics.OutcomeError)
	}
	return res, err
}

func (s *BookingService) tryBook(ctx context.Context, req models.BookingRequest, policy string) (models.BookingResult, error) {
	if policy != models.StatusPending && policy != models.StatusConfirmed {
		return models.BookingResult{}, invalidf("initial status must be pending or confirmed, got %q", policy)
	}
	adm, err := s.validateInterval(ctx, req.FieldID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return models.BookingResult{}, err
	}
	if err := s.checkQuota(ctx, req); err != nil {
		return models.BookingResult{}, err
	}

	r := &models.Reservation{
		FieldID:      req.FieldID,
		UserID:       req.UserID,
		TeamID:       req.TeamID,
		Date:         adm.day.Format(models.DateLayout),
		StartTime:    adm.interval.Start,
		EndTime:      adm.interval.End,
		ActivityType: req.ActivityType,
		Note:         req.Note,
		Status:       policy,
	}
	if err := s.store.CreateReservation(ctx, r); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			s.logger.Info().Int64("field_id", r.FieldID).Str("date", r.Date).Str("slot", adm.interval.String()).Msg("Slot taken")
			return models.BookingResult{OK: false, Reason: models.ReasonSlotTaken}, nil
		}
		return models.BookingResult{}, err
	}

	s.logger.Info().Int64("reservation_id", r.ID).Int64("field_id", r.FieldID).Str("date", r.Date).
		Str("slot", adm.interval.String()).Str("status", r.Status).Msg("Reservation created")

	s.invalidate(ctx, r.FieldID, r.Date)
	s.publishEvent(ctx, events.EventReservationCreated, r, models.ActorUser)
	s.enqueueSync(ctx, r, models.SyncTaskUpsert)

	return models.BookingResult{OK: true, Reservation: r}, nil
}

func (s *BookingService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

func (s *BookingService) ListByUser(ctx context.Context, userID int64) ([]models.Reservation, error) {
	if userID <= 0 {
		return nil, invalidf("user_id must be positive")
	}
	return s.store.ListReservationsByUser(ctx, userID)
}

// ListRange returns reservations dated from..to inclusive.
func (s *BookingService) ListRange(ctx context.Context, from, to string) ([]models.Reservation, error) {
	fromDay, err := s.parseDate(from)
	if err != nil {
		return nil, err
	}
	toDay, err := s.parseDate(to)
	if err != nil {
		return nil, err
	}
	if toDay.Before(fromDay) {
		return nil, invalidf("from %s is after to %s", from, to)
	}
	return s.store.ListReservationsByRange(ctx, from, to)
}

// UpdateStatus moves a reservation to status on behalf of actor.
func (s *BookingService) UpdateStatus(ctx context.Context, id, version int64, status, actor string) (*models.Reservation, error) {
	if !models.IsValidStatus(status) {
		return nil, invalidf("unknown status %q", status)
	}
	current, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, domain.ErrConcurrentModification
	}
	if !models.TransitionExists(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
	}
	if !models.ActorMayTransition(actor, current.Status, status) {
		return nil, fmt.Errorf("%w: %s may not move %s -> %s", domain.ErrForbidden, actor, current.Status, status)
	}

	if current.Status == models.StatusCancelled {
		if actor == models.ActorUser && current.CancelledBy.String == models.ActorStaff {
			return nil, fmt.Errorf("%w: cancelled by staff", domain.ErrForbidden)
		}
		ends, err := current.EndsAt(s.loc)
		if err != nil {
			return nil, err
		}
		if !ends.After(s.now()) {
			return nil, fmt.Errorf("%w: reservation already ended", domain.ErrInvalidTransition)
		}
	}

	var cancelledBy null.String
	if status == models.StatusCancelled {
		cancelledBy = null.StringFrom(actor)
	}

	updated, err := s.store.UpdateReservationStatus(ctx, id, version, status, cancelledBy)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reservation_id", id).Str("from", current.Status).Str("to", status).
		Str("actor", actor).Msg("Reservation status changed")

	s.invalidate(ctx, updated.FieldID, updated.Date)
	s.publishEvent(ctx, events.StatusEventType(status), updated, actor)
	s.enqueueSync(ctx, updated, models.SyncTaskUpdateStatus)
	return updated, nil
}

// UpdateReservation reschedules or edits a blocking reservation. The new interval is admitted
// like a new booking; its own current interval does not conflict.
func (s *BookingService) UpdateReservation(ctx context.Context, id, version int64, req models.BookingRequest) (*models.Reservation, error) {
	current, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsBlocking() {
		return nil, fmt.Errorf("%w: %s reservation cannot be edited", domain.ErrInvalidTransition, current.Status)
	}
	if req.FieldID == 0 {
		req.FieldID = current.FieldID
	}
	adm, err := s.validateInterval(ctx, req.FieldID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	r := *current
	r.FieldID = req.FieldID
	r.Date = adm.day.Format(models.DateLayout)
	r.StartTime = adm.interval.Start
	r.EndTime = adm.interval.End
	if req.UserID.Valid || req.TeamID.Valid {
		r.UserID = req.UserID
		r.TeamID = req.TeamID
	}
	if req.ActivityType.Valid {
		r.ActivityType = req.ActivityType
	}
	if req.Note.Valid {
		r.Note = req.Note
	}

	if err := s.store.UpdateReservation(ctx, &r, version); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("reservation_id", id).Str("date", r.Date).Str("slot", r.Interval().String()).Msg("Reservation updated")

	s.invalidate(ctx, current.FieldID, current.Date)
	if r.FieldID != current.FieldID || r.Date != current.Date {
		s.invalidate(ctx, r.FieldID, r.Date)
	}
	s.publishEvent(ctx, events.EventReservationUpdated, &r, models.ActorStaff)
	s.enqueueSync(ctx, &r, models.SyncTaskUpsert)
	return &r, nil
}

// DeleteReservation removes a reservation that no longer blocks its slot.
func (s *BookingService) DeleteReservation(ctx context.Context, id int64) error {
	current, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return err
	}
	if current.IsBlocking() {
		return fmt.Errorf("%w: %s reservation must be cancelled first", domain.ErrInvalidTransition, current.Status)
	}
	if err := s.store.DeleteReservation(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Int64("reservation_id", id).Msg("Reservation deleted")
	s.invalidate(ctx, current.FieldID, current.Date)
	s.publishEvent(ctx, events.EventReservationDeleted, current, models.ActorStaff)
	s.enqueueSync(ctx, current, models.SyncTaskDelete)
	return nil
}

// transitionAll applies a system transition to each reservation; stale versions are skipped.
func (s *BookingService) transitionAll(ctx context.Context, list []models.Reservation, status string) (int, error) {
	changed := 0
	for i := range list {
		r := list[i]
		updated, err := s.store.UpdateReservationStatus(ctx, r.ID, r.Version, status, null.String{})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrNotFound):
			s.logger.Debug().Int64("reservation_id", r.ID).Msg("Reservation changed concurrently, skipped")
			continue
		default:
			return changed, err
		}
		changed++
		s.invalidate(ctx, updated.FieldID, updated.Date)
		s.publishEvent(ctx, events.StatusEventType(status), updated, models.ActorSystem)
		s.enqueueSync(ctx, updated, models.SyncTaskUpdateStatus)
	}
	return changed, nil
}

// ExpireFinished marks blocking reservations whose end has passed as expired.
func (s *BookingService) ExpireFinished(ctx context.Context) (int, error) {
	now := s.now()
	list, err := s.store.ListEndedActive(ctx, now.Format(models.DateLayout), timeOfDay(now))
	if err != nil {
		return 0, err
	}
	n, err := s.transitionAll(ctx, list, models.StatusExpired)
	metrics.AddSweep("expired", n)
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("Reservations expired")
	}
	return n, err
}

// AutoAccept confirms pending reservations nobody answered within auto_accept_after.
func (s *BookingService) AutoAccept(ctx context.Context) (int, error) {
	if s.cfg.AutoAcceptAfter <= 0 {
		return 0, nil
	}
	now := s.now()
	stale, err := s.store.ListStalePending(ctx, now.Add(-s.cfg.AutoAcceptAfter))
	if err != nil {
		return 0, err
	}

	upcoming := stale[:0]
	for _, r := range stale {
		ends, err := r.EndsAt(s.loc)
		if err != nil || !ends.After(now) {
			continue
		}
		upcoming = append(upcoming, r)
	}

	n, err := s.transitionAll(ctx, upcoming, models.StatusConfirmed)
	metrics.AddSweep("auto_accepted", n)
	if n > 0 {
		s.logger.Info().Int("count", n).Msg("Pending reservations auto-accepted")
	}
	return n, err
}

// PurgeExpired deletes expired reservations older than purge_after_days.
func (s *BookingService) PurgeExpired(ctx context.Context) (int64, error) {
	if s.cfg.PurgeAfterDays <= 0 {
		return 0, nil
	}
	cutoff := today(s.now()).AddDate(0, 0, -s.cfg.PurgeAfterDays).Format(models.DateLayout)
	n, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.AddSweep("purged", int(n))
	if n > 0 {
		s.logger.Info().Int64("count", n).Str("before", cutoff).Msg("Expired reservations purged")
	}
	return n, nil
}

// DueReminders returns confirmed reservations starting within lead ± window from now.
func (s *BookingService) DueReminders(ctx context.Context, lead, window time.Duration) ([]models.Reservation, error) {
	now := s.now()
	from := now.Add(lead - window)
	to := now.Add(lead + window)
	if from.Before(now) {
		from = now
	}

	var out []models.Reservation
	for day := today(from); !day.After(today(to)); day = day.AddDate(0, 0, 1) {
		lo := schedule.TimeOfDay(0)
		hi := schedule.TimeOfDay(schedule.MinutesPerDay)
		if day.Equal(today(from)) {
			lo = timeOfDay(from)
		}
		if day.Equal(today(to)) {
			hi = timeOfDay(to)
		}
		list, err := s.store.ListConfirmedStarting(ctx, day.Format(models.DateLayout), lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

// SendReminders publishes a reminder event for every due reservation and marks it reminded.
func (s *BookingService) SendReminders(ctx context.Context, lead, window time.Duration) (int, error) {
	due, err := s.DueReminders(ctx, lead, window)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range due {
		r := due[i]
		s.publishEvent(ctx, events.EventReservationReminder, &r, models.ActorSystem)
		if err := s.store.MarkReminderSent(ctx, r.ID); err != nil {
			return sent, err
		}
		sent++
	}
	metrics.AddSweep("reminded", sent)
	if sent > 0 {
		s.logger.Info().Int("count", sent).Msg("Reminders sent")
	}
	return sent, nil
}

func (s *BookingService) invalidate(ctx context.Context, fieldID int64, date string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fieldID, date); err != nil {
		s.logger.Warn().Err(err).Int64("field_id", fieldID).Str("date", date).Msg("availability cache invalidate error")
	}
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, r *models.Reservation, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewReservationPayload(r, changedBy)
	if f, err := s.fields.GetField(ctx, r.FieldID); err == nil {
		payload.FieldName = f.Name
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, r *models.Reservation, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == models.SyncTaskUpdateStatus {
		status = r.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, r.ID, r, status); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
