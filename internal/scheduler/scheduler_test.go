package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/nibbl/internal/config"
)

func TestNextRun(t *testing.T) {
	t.Parallel()

	// 2026-08-30 is a Sunday.
	sundayMorning := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		cfg  config.ScheduleConfig
		from time.Time
		want time.Time
	}{
		{
			name: "later same day",
			cfg:  config.ScheduleConfig{DayOfWeek: time.Sunday, Hour: 10},
			from: sundayMorning,
			want: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "slot already passed wraps a week",
			cfg:  config.ScheduleConfig{DayOfWeek: time.Sunday, Hour: 10},
			from: time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC),
			want: time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the slot wraps a week",
			cfg:  config.ScheduleConfig{DayOfWeek: time.Sunday, Hour: 10},
			from: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
			want: time.Date(2026, 9, 6, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "later in the week",
			cfg:  config.ScheduleConfig{DayOfWeek: time.Wednesday, Hour: 18, Minute: 30},
			from: sundayMorning,
			want: time.Date(2026, 9, 2, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "earlier weekday wraps forward",
			cfg:  config.ScheduleConfig{DayOfWeek: time.Monday, Hour: 9},
			from: time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC), // a Wednesday
			want: time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(tc.cfg, nil)
			got := s.nextRun(tc.from)
			if !got.Equal(tc.want) {
				t.Errorf("nextRun(%v) = %v, want %v", tc.from, got, tc.want)
			}
		})
	}
}

func TestStartDisabled(t *testing.T) {
	t.Parallel()

	fired := false
	s := New(config.ScheduleConfig{Enabled: false}, func(context.Context) { fired = true })

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler did not return")
	}
	if fired {
		t.Error("disabled scheduler fired the callback")
	}
}
