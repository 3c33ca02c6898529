package bot

import (
	"encoding/json"
	"fmt"

	"sportclub/internal/domain"
	"sportclub/internal/events"
	"sportclub/internal/models"
	"sportclub/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subscriber is the part of *nats.Conn the notifier needs.
type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Notifier forwards reservation events to the staff chats.
type Notifier struct {
	tg      *service.TelegramService
	chats   []int64
	metrics *Metrics
	logger  *zerolog.Logger
}

func NewNotifier(sender domain.TelegramSender, chats []int64, metrics *Metrics, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Notifier{tg: service.NewTelegramService(sender), chats: chats, metrics: metrics, logger: logger}
}

// Subscribe listens to every event subject under prefix.
func (n *Notifier) Subscribe(sub Subscriber, prefix string) (*nats.Subscription, error) {
	subject := events.Subject(prefix, ">")
	s, err := sub.Subscribe(subject, n.handleMsg)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	n.logger.Info().Str("subject", subject).Msg("Subscribed to reservation events")
	return s, nil
}

func (n *Notifier) handleMsg(msg *nats.Msg) {
	ev, err := events.DecodeEvent(msg.Data)
	if err != nil {
		n.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Skipping malformed event")
		return
	}
	if err := n.HandleEvent(ev); err != nil {
		n.logger.Error().Err(err).Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("Failed to notify staff")
	}
}

// HandleEvent messages the staff chats about created, cancelled and reminder events.
// Other event types are ignored.
func (n *Notifier) HandleEvent(ev *events.Event) error {
	if ev == nil {
		return nil
	}

	var title string
	switch ev.Type {
	case events.EventReservationCreated:
		title = "🆕 Новая бронь"
	case events.EventReservationCancelled:
		title = "🚫 Бронь отменена"
	case events.EventReservationReminder:
		title = "⏰ Скоро начало"
	default:
		return nil
	}

	var payload events.ReservationEventPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	view := viewOfPayload(payload)
	text := view.text(title)
	if ev.Type == events.EventReservationCancelled && payload.ChangedBy != "" {
		text += "\nОтменил: " + actorLabel(payload.ChangedBy)
	}

	var keyboard *tgbotapi.InlineKeyboardMarkup
	if ev.Type == events.EventReservationCreated && payload.Status == models.StatusPending {
		k := decisionKeyboard(payload.ReservationID)
		keyboard = &k
	}

	if err := n.tg.Broadcast(n.chats, text, keyboard); err != nil {
		n.metrics.incNotification(ev.Type, "error")
		return err
	}
	n.metrics.incNotification(ev.Type, "sent")
	n.logger.Debug().Str("event_type", ev.Type).Int64("reservation_id", payload.ReservationID).Msg("Staff notified")
	return nil
}

func actorLabel(actor string) string {
	switch actor {
	case models.ActorStaff:
		return "сотрудник"
	case models.ActorUser:
		return "пользователь"
	case models.ActorSystem:
		return "система"
	}
	return actor
}
