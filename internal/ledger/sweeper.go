package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/clock"
)

// Sweeper periodically applies the daily rollover to every record so stale
// totals are cleared even for domains nobody visits.
type Sweeper struct {
	ledger    *Ledger
	interval  time.Duration
	scheduler clock.Scheduler
	logger    zerolog.Logger
	timer     clock.Timer
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(l *Ledger, interval time.Duration, scheduler clock.Scheduler, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		ledger:    l,
		interval:  interval,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "rollover-sweeper").Logger(),
	}
}

// Start runs one sweep immediately and then schedules the periodic sweep.
func (s *Sweeper) Start() {
	s.sweep()
	s.timer = s.scheduler.Every(s.interval, s.sweep)
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Rollover sweeper started")
}

// Stop cancels the periodic sweep.
func (s *Sweeper) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.logger.Info().Msg("Rollover sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rolled, err := s.ledger.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Rollover sweep failed")
	}
	if rolled > 0 {
		s.logger.Info().Int("rolled_over", rolled).Msg("Rollover sweep complete")
	}
}
