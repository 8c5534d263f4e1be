package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"xchain-radar/internal/flows"
)

// TickFunc is invoked on every aligned interval with the calendar day to
// brief: the day preceding the tick in the scheduler's location.
type TickFunc func(ctx context.Context, day time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Location     *time.Location
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler drives aligned execution of briefing runs.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each aligned interval until ctx
// is cancelled. A failed tick is logged and the loop keeps going; the day is
// recomputed per tick so a stalled process never briefs a stale day.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_run", next).Msg("waiting for next run")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		day := flows.Yesterday(s.opts.Location)
		s.logger.Info().Str("day", day.Format(flows.DayFormat)).Msg("executing scheduled briefing run")

		if err := tick(ctx, day); err != nil {
			s.logger.Error().Err(err).Str("day", day.Format(flows.DayFormat)).Msg("briefing run failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
