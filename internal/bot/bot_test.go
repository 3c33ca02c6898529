package bot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/domain"
	"sportclub/internal/export"
	"sportclub/internal/models"
	"sportclub/internal/schedule"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"gopkg.in/guregu/null.v4"
)

const staffChat = int64(-100)

type mockSender struct {
	mu          sync.Mutex
	updatesChan chan tgbotapi.Update
	sent        []tgbotapi.Chattable
	requests    []tgbotapi.Chattable
	failChat    int64
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok && m.failChat != 0 && msg.ChatID == m.failChat {
		return tgbotapi.Message{}, fmt.Errorf("chat not found")
	}
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockSender) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockSender) StopReceivingUpdates() {}

func (m *mockSender) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.sent {
		switch msg := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, msg.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, msg.Text)
		}
	}
	return out
}

type fakeBookings struct {
	mu      sync.Mutex
	byID    map[int64]*models.Reservation
	listErr error
	ranges  [][2]string
}

func newFakeBookings(list ...models.Reservation) *fakeBookings {
	f := &fakeBookings{byID: make(map[int64]*models.Reservation)}
	for i := range list {
		r := list[i]
		f.byID[r.ID] = &r
	}
	return f
}

func (f *fakeBookings) ListRange(_ context.Context, from, to string) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, [2]string{from, to})
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Reservation
	for _, r := range f.byID {
		if r.Date >= from && r.Date <= to {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeBookings) GetReservation(_ context.Context, id int64) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeBookings) UpdateStatus(_ context.Context, id, version int64, status, actor string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.Version != version {
		return nil, domain.ErrConcurrentModification
	}
	if !models.ActorMayTransition(actor, r.Status, status) {
		return nil, domain.ErrInvalidTransition
	}
	r.Status = status
	r.Version++
	cp := *r
	return &cp, nil
}

type fakeFields struct{}

func (fakeFields) ListFields(context.Context) ([]models.Field, error) {
	return []models.Field{{ID: 1, Name: "Campo 1", IsActive: true}}, nil
}

func reservation(id int64, date, start, end, status string) models.Reservation {
	return models.Reservation{
		ID:        id,
		FieldID:   1,
		UserID:    null.IntFrom(7),
		Date:      date,
		StartTime: schedule.MustParseTimeOfDay(start),
		EndTime:   schedule.MustParseTimeOfDay(end),
		Status:    status,
		Version:   1,
	}
}

func newTestBot(t *testing.T, bookings *fakeBookings) (*Bot, *mockSender, *Metrics) {
	t.Helper()
	sender := &mockSender{updatesChan: make(chan tgbotapi.Update, 4)}
	logger := zerolog.New(io.Discard)
	metrics := NewMetrics(prometheus.NewRegistry())
	b := NewBot(Deps{
		Sender:   sender,
		Telegram: config.TelegramConfig{StaffChatIDs: []int64{staffChat}},
		Bookings: bookings,
		Fields:   fakeFields{},
		Exporter: export.NewExporter(t.TempDir(), time.UTC),
		Clock:    clockwork.NewFakeClockAt(time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)),
		Metrics:  metrics,
		Logger:   &logger,
	})
	return b, sender, metrics
}

func command(chatID int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func TestBotStart(t *testing.T) {
	b, sender, _ := newTestBot(t, newFakeBookings())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	sender.updatesChan <- command(staffChat, "/help")
	close(sender.updatesChan)
	<-done
	cancel()

	texts := sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "/pending") {
		t.Fatalf("expected help text, got %v", texts)
	}
}

func TestNonStaffChatIsRefused(t *testing.T) {
	bookings := newFakeBookings(reservation(1, "2025-12-02", "18:00", "19:00", models.StatusPending))
	b, sender, _ := newTestBot(t, bookings)

	b.processUpdate(context.Background(), command(555, "/confirm 1"))

	texts := sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "только") {
		t.Fatalf("expected refusal, got %v", texts)
	}
	if r, _ := bookings.GetReservation(context.Background(), 1); r.Status != models.StatusPending {
		t.Fatalf("status changed from a non-staff chat: %s", r.Status)
	}
}

func TestPendingCommand(t *testing.T) {
	bookings := newFakeBookings(
		reservation(1, "2025-12-03", "18:00", "19:00", models.StatusPending),
		reservation(2, "2025-12-02", "20:00", "21:00", models.StatusPending),
		reservation(3, "2025-12-02", "16:00", "17:00", models.StatusConfirmed),
	)
	b, sender, metrics := newTestBot(t, bookings)

	b.processUpdate(context.Background(), command(staffChat, "/pending"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 pending cards, got %d", len(sender.sent))
	}
	first := sender.sent[0].(tgbotapi.MessageConfig)
	if !strings.Contains(first.Text, "№2") {
		t.Fatalf("expected earliest reservation first, got %q", first.Text)
	}
	keyboard, ok := first.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || *keyboard.InlineKeyboard[0][0].CallbackData != "confirm:2" {
		t.Fatalf("expected decision keyboard, got %#v", first.ReplyMarkup)
	}
	if bookings.ranges[0] != [2]string{"2025-12-01", "2025-12-31"} {
		t.Fatalf("unexpected range %v", bookings.ranges[0])
	}
	if got := testutil.ToFloat64(metrics.CommandsProcessed.WithLabelValues("pending")); got != 1 {
		t.Fatalf("expected pending counter 1, got %v", got)
	}
}

func TestPendingCommandEmptyAndError(t *testing.T) {
	bookings := newFakeBookings()
	b, sender, _ := newTestBot(t, bookings)

	b.processUpdate(context.Background(), command(staffChat, "/pending"))
	bookings.listErr = fmt.Errorf("op: %w", domain.ErrStoreUnavailable)
	b.processUpdate(context.Background(), command(staffChat, "/pending"))

	texts := sender.texts()
	if len(texts) != 2 || !strings.Contains(texts[0], "Нет заявок") || !strings.Contains(texts[1], "недоступно") {
		t.Fatalf("unexpected replies %v", texts)
	}
}

func TestTodayCommand(t *testing.T) {
	bookings := newFakeBookings(
		reservation(1, "2025-12-01", "20:00", "21:00", models.StatusConfirmed),
		reservation(2, "2025-12-01", "16:00", "17:00", models.StatusPending),
		reservation(3, "2025-12-01", "18:00", "19:00", models.StatusCancelled),
		reservation(4, "2025-12-02", "18:00", "19:00", models.StatusConfirmed),
	)
	b, sender, _ := newTestBot(t, bookings)

	b.processUpdate(context.Background(), command(staffChat, "/today"))

	texts := sender.texts()
	if len(texts) != 1 {
		t.Fatalf("expected one message, got %v", texts)
	}
	lines := strings.Split(texts[0], "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[2], "16:00-17:00") || !strings.HasPrefix(lines[3], "20:00-21:00") {
		t.Fatalf("unexpected today list %q", texts[0])
	}
}

func TestDecisionCommands(t *testing.T) {
	bookings := newFakeBookings(
		reservation(1, "2025-12-02", "18:00", "19:00", models.StatusPending),
		reservation(2, "2025-12-02", "20:00", "21:00", models.StatusPending),
	)
	b, sender, _ := newTestBot(t, bookings)
	ctx := context.Background()

	b.processUpdate(ctx, command(staffChat, "/confirm 1"))
	b.processUpdate(ctx, command(staffChat, "/reject 2"))
	b.processUpdate(ctx, command(staffChat, "/confirm 99"))
	b.processUpdate(ctx, command(staffChat, "/confirm abc"))
	b.processUpdate(ctx, command(staffChat, "/reject"))
	b.processUpdate(ctx, command(staffChat, "/reject 1"))

	if r, _ := bookings.GetReservation(ctx, 1); r.Status != models.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", r.Status)
	}
	if r, _ := bookings.GetReservation(ctx, 2); r.Status != models.StatusRejected {
		t.Fatalf("expected rejected, got %s", r.Status)
	}

	texts := sender.texts()
	want := []string{"Подтверждена", "Отклонена", "не найдена", "Неверный номер", "Укажите номер", "недоступно"}
	if len(texts) != len(want) {
		t.Fatalf("expected %d replies, got %v", len(want), texts)
	}
	for i, w := range want {
		if !strings.Contains(texts[i], w) {
			t.Errorf("reply %d: expected %q in %q", i, w, texts[i])
		}
	}
}

func TestCallbackDecision(t *testing.T) {
	bookings := newFakeBookings(reservation(5, "2025-12-02", "18:00", "19:00", models.StatusPending))
	b, sender, _ := newTestBot(t, bookings)

	b.processUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{MessageID: 42, Chat: &tgbotapi.Chat{ID: staffChat}},
		Data:    "confirm:5",
	}})

	if r, _ := bookings.GetReservation(context.Background(), 5); r.Status != models.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", r.Status)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.requests) != 1 {
		t.Fatalf("expected callback answer, got %d requests", len(sender.requests))
	}
	edit, ok := sender.sent[0].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 42 || edit.ReplyMarkup != nil {
		t.Fatalf("expected edited message without keyboard, got %#v", sender.sent[0])
	}
}

func TestExportCommand(t *testing.T) {
	bookings := newFakeBookings(reservation(1, "2025-12-02", "18:00", "19:00", models.StatusConfirmed))
	b, sender, _ := newTestBot(t, bookings)

	b.processUpdate(context.Background(), command(staffChat, "/export"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("expected one document, got %d", len(sender.sent))
	}
	doc, ok := sender.sent[0].(tgbotapi.DocumentConfig)
	if !ok {
		t.Fatalf("expected document, got %T", sender.sent[0])
	}
	if path, _ := doc.File.(tgbotapi.FilePath); !strings.HasSuffix(string(path), "reservations_2025-12-01_to_2025-12-07.xlsx") {
		t.Fatalf("unexpected file %v", doc.File)
	}
}

func TestErrorMessage(t *testing.T) {
	if errorMessage(nil) != "" {
		t.Fatal("expected empty message for nil")
	}
	if !strings.Contains(errorMessage(fmt.Errorf("x: %w", domain.ErrSlotTaken)), "занято") {
		t.Fatal("expected slot taken message")
	}
	if !strings.Contains(errorMessage(fmt.Errorf("boom")), "ошибка") {
		t.Fatal("expected generic message")
	}
}
