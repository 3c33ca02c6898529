package events

import (
	"encoding/json"
	"sync"
	"time"

	"sportclub/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationRejected  = "reservation_rejected"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationExpired   = "reservation_expired"
	EventReservationUpdated   = "reservation_updated"
	EventReservationDeleted   = "reservation_deleted"
	EventReservationReminder  = "reservation_reminder"
)

// AllTypes lists every event type the service emits.
var AllTypes = []string{
	EventReservationCreated,
	EventReservationConfirmed,
	EventReservationRejected,
	EventReservationCancelled,
	EventReservationExpired,
	EventReservationUpdated,
	EventReservationDeleted,
	EventReservationReminder,
}

// StatusEventType maps the target status of a transition to its event type.
func StatusEventType(status string) string {
	switch status {
	case models.StatusConfirmed:
		return EventReservationConfirmed
	case models.StatusRejected:
		return EventReservationRejected
	case models.StatusCancelled:
		return EventReservationCancelled
	case models.StatusExpired:
		return EventReservationExpired
	default:
		return EventReservationUpdated
	}
}

// ReservationEventPayload describes the reservation snapshot for event consumers.
type ReservationEventPayload struct {
	ReservationID int64  `json:"reservation_id"`
	FieldID       int64  `json:"field_id"`
	FieldName     string `json:"field_name,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	TeamID        int64  `json:"team_id,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	ActivityType  string `json:"activity_type,omitempty"`
	ChangedBy     string `json:"changed_by,omitempty"`
}

func NewReservationPayload(r *models.Reservation, changedBy string) ReservationEventPayload {
	return ReservationEventPayload{
		ReservationID: r.ID,
		FieldID:       r.FieldID,
		UserID:        r.UserID.Int64,
		TeamID:        r.TeamID.Int64,
		Date:          r.Date,
		StartTime:     r.StartTime.String(),
		EndTime:       r.EndTime.String(),
		Status:        r.Status,
		ActivityType:  r.ActivityType.String,
		ChangedBy:     changedBy,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	mu          sync.RWMutex
	clock       clockwork.Clock
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return NewEventBusWithClock(clockwork.NewRealClock())
}

func NewEventBusWithClock(clock clockwork.Clock) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), clock: clock}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type and returns handler errors.
func (b *EventBus) Publish(event *Event) []error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = b.clock.Now().UTC()
	}

	var errs []error
	for _, handler := range handlers {
		// синхронно, порядок подписки
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now().UTC()}, nil
}
