// Package scheduler fires the weekly automatic planning trigger.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/nibbl/internal/config"
)

// Callback runs when the schedule fires.
type Callback func(ctx context.Context)

// Scheduler triggers a callback once a week at a configured weekday and
// time of day. It uses a plain timer rather than a cron library; one fixed
// weekly slot does not need expression parsing.
type Scheduler struct {
	cfg      config.ScheduleConfig
	callback Callback
	now      func() time.Time // swapped out in tests
}

func New(cfg config.ScheduleConfig, callback Callback) *Scheduler {
	return &Scheduler{cfg: cfg, callback: callback, now: time.Now}
}

// Start runs the schedule loop until ctx is cancelled. Returns immediately
// when the schedule is disabled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		slog.Info("scheduler disabled")
		return
	}

	slog.Info("scheduler started",
		"day", s.cfg.DayOfWeek.String(), "hour", s.cfg.Hour, "minute", s.cfg.Minute)

	for {
		next := s.nextRun(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("scheduler stopped")
			return
		case <-timer.C:
			slog.Info("scheduled trigger fired", "at", next)
			s.callback(ctx)
		}
	}
}

// nextRun returns the first weekly slot strictly after from.
func (s *Scheduler) nextRun(from time.Time) time.Time {
	run := time.Date(from.Year(), from.Month(), from.Day(),
		s.cfg.Hour, s.cfg.Minute, 0, 0, from.Location())

	days := (int(s.cfg.DayOfWeek) - int(from.Weekday()) + 7) % 7
	run = run.AddDate(0, 0, days)
	if !run.After(from) {
		run = run.AddDate(0, 0, 7)
	}
	return run
}
