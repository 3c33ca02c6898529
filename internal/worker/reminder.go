package worker

import (
	"context"
	"time"

	"sportclub/internal/config"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type ReminderSender interface {
	SendReminders(ctx context.Context, lead, window time.Duration) (int, error)
}

// ReminderWorker emits reminders for confirmed reservations starting soon.
type ReminderWorker struct {
	sender   ReminderSender
	lead     time.Duration
	window   time.Duration
	interval time.Duration
	clock    clockwork.Clock
	logger   *zerolog.Logger
}

func NewReminderWorker(sender ReminderSender, cfg config.RemindersConfig, interval time.Duration, clock clockwork.Clock, logger *zerolog.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReminderWorker{
		sender:   sender,
		lead:     cfg.Lead,
		window:   cfg.Window,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("lead", w.lead).Dur("window", w.window).Msg("reminder_worker: started")
	defer w.logger.Info().Msg("reminder_worker: stopped")

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.RunOnce(ctx)
		}
	}
}

func (w *ReminderWorker) RunOnce(ctx context.Context) int {
	sent, err := w.sender.SendReminders(ctx, w.lead, w.window)
	if err != nil {
		w.logger.Error().Err(err).Int("sent", sent).Msg("reminder_worker: send")
	}
	return sent
}
