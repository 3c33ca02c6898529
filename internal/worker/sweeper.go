package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Sweepable is the time-driven part of the booking service.
type Sweepable interface {
	ExpireFinished(ctx context.Context) (int, error)
	AutoAccept(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically expires ended reservations, auto-accepts stale pending ones and purges old rows.
type Sweeper struct {
	bookings Sweepable
	interval time.Duration
	clock    clockwork.Clock
	logger   *zerolog.Logger
}

func NewSweeper(bookings Sweepable, interval time.Duration, clock clockwork.Clock, logger *zerolog.Logger) *Sweeper {
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
	return &Sweeper{bookings: bookings, interval: interval, clock: clock, logger: logger}
}

// Start runs a sweep immediately and then every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sweeper: started")
	defer s.logger.Info().Msg("sweeper: stopped")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass of every sweep. A failing step is logged and does not stop the rest.
func (s *Sweeper) RunOnce(ctx context.Context) {
	expired, err := s.bookings.ExpireFinished(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweeper: expire")
	}
	accepted, err := s.bookings.AutoAccept(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweeper: auto-accept")
	}
	purged, err := s.bookings.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweeper: purge")
	}
	s.logger.Debug().Int("expired", expired).Int("auto_accepted", accepted).Int64("purged", purged).Msg("sweeper: pass done")
}
