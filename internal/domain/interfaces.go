package domain

import (
	"context"
	"time"

	"sportclub/internal/models"
	"sportclub/internal/schedule"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/guregu/null.v4"
)

// ReservationStore persists reservations. CreateReservation, UpdateReservation and reactivating
// status changes must reject overlaps with ErrSlotTaken atomically.
type ReservationStore interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	ListReservations(ctx context.Context, fieldID int64, date string) ([]models.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error)
	ListReservationsByRange(ctx context.Context, from, to string) ([]models.Reservation, error)
	UpdateReservation(ctx context.Context, r *models.Reservation, fromVersion int64) error
	UpdateReservationStatus(ctx context.Context, id, fromVersion int64, status string, cancelledBy null.String) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	ListEndedActive(ctx context.Context, today string, now schedule.TimeOfDay) ([]models.Reservation, error)
	ListStalePending(ctx context.Context, createdBefore time.Time) ([]models.Reservation, error)
	ListConfirmedStarting(ctx context.Context, date string, from, to schedule.TimeOfDay) ([]models.Reservation, error)
	MarkReminderSent(ctx context.Context, id int64) error
	DeleteExpiredBefore(ctx context.Context, date string) (int64, error)
	Ping(ctx context.Context) error
}

// FieldStore persists fields with their weekly hours and closures.
type FieldStore interface {
	UpsertField(ctx context.Context, f *models.Field) error
	GetField(ctx context.Context, id int64) (*models.Field, error)
	ListActiveFields(ctx context.Context) ([]models.Field, error)
	CreateFieldHours(ctx context.Context, h *models.FieldHours) error
	ListFieldHours(ctx context.Context, fieldID int64) ([]models.FieldHours, error)
	DeactivateFieldHours(ctx context.Context, fieldID, id int64) error
	CreateClosure(ctx context.Context, c *models.FieldClosure) error
	ListClosures(ctx context.Context, fieldID int64, from string) ([]models.FieldClosure, error)
	IsClosed(ctx context.Context, fieldID int64, date string) (bool, error)
}

// Store is what a storage backend provides.
type Store interface {
	ReservationStore
	FieldStore
	Close() error
}

// AvailabilityCache keeps computed slot lists and per-requester counters.
// GetSlots also returns the key generation, even on a miss; SetSlots is a no-op
// when Invalidate ran after that generation was read.
type AvailabilityCache interface {
	GetSlots(ctx context.Context, fieldID int64, date string) ([]schedule.Slot, int64, bool, error)
	SetSlots(ctx context.Context, fieldID int64, date string, gen int64, slots []schedule.Slot) error
	Invalidate(ctx context.Context, fieldID int64, date string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, r *models.Reservation, status string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// SheetsWriter mirrors reservations into a spreadsheet.
type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.Reservation) error
	DeleteReservationRow(ctx context.Context, id int64) error
	UpdateReservationStatus(ctx context.Context, id int64, status string) error
}
