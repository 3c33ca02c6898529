package bot

import (
	"context"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/domain"
	"sportclub/internal/export"
	"sportclub/internal/models"
	"sportclub/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	updateTimeout      = 30 * time.Second
	defaultHorizonDays = 30
	maxPendingMessages = 10
)

// ReservationOps is what staff commands need from the booking service.
type ReservationOps interface {
	ListRange(ctx context.Context, from, to string) ([]models.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, id, version int64, status, actor string) (*models.Reservation, error)
}

type FieldLister interface {
	ListFields(ctx context.Context) ([]models.Field, error)
}

// Deps groups what the staff bot is built from. Exporter and Metrics may be nil.
type Deps struct {
	Sender      domain.TelegramSender
	Telegram    config.TelegramConfig
	Bookings    ReservationOps
	Fields      FieldLister
	Exporter    *export.Exporter
	HorizonDays int
	Location    *time.Location
	Clock       clockwork.Clock
	Metrics     *Metrics
	Logger      *zerolog.Logger
}

// Bot answers staff commands in the configured staff chats.
type Bot struct {
	tg       *service.TelegramService
	cfg      config.TelegramConfig
	bookings ReservationOps
	fields   FieldLister
	exporter *export.Exporter
	horizon  int
	loc      *time.Location
	clock    clockwork.Clock
	metrics  *Metrics
	logger   *zerolog.Logger
}

func NewBot(deps Deps) *Bot {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.HorizonDays <= 0 {
		deps.HorizonDays = defaultHorizonDays
	}
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &Bot{
		tg:       service.NewTelegramService(deps.Sender),
		cfg:      deps.Telegram,
		bookings: deps.Bookings,
		fields:   deps.Fields,
		exporter: deps.Exporter,
		horizon:  deps.HorizonDays,
		loc:      deps.Location,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Start processes updates until ctx is done or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Int("staff_chats", len(b.cfg.StaffChatIDs)).Msg("Bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := b.clock.Now()
	defer func() {
		b.metrics.observeUpdate(b.clock.Since(start))
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil:
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.incError()
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) today() time.Time {
	now := b.clock.Now().In(b.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.loc)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tg.SendText(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.tg.SendMarkdown(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

// fieldNames maps field ids to names; a lookup failure leaves ids unnamed.
func (b *Bot) fieldNames(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	fields, err := b.fields.ListFields(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("list fields error")
		return names
	}
	for _, f := range fields {
		names[f.ID] = f.Name
	}
	return names
}
