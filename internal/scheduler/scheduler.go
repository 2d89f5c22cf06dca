// Package scheduler runs the sync and the inactivity check at fixed times of day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
	"github.com/mcoot/clanadmin/internal/notify"
	"github.com/mcoot/clanadmin/internal/services/clansync"
)

// Config lists the UTC times of day ("HH:MM") each job runs at
type Config struct {
	Enabled         bool     `yaml:"enabled"`
	SyncTimes       []string `yaml:"sync_times"`
	InactivityTimes []string `yaml:"inactivity_times"`
}

// DefaultConfig syncs twice a day and checks inactivity once
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		SyncTimes:       []string{"00:00", "12:00"},
		InactivityTimes: []string{"14:00"},
	}
}

// TimeOfDay is a UTC wall clock time
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// next returns the first occurrence of the time strictly after now
func (t TimeOfDay) next(now time.Time) time.Time {
	now = now.UTC()
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

type job struct {
	name  string
	times []TimeOfDay
	run   func(ctx context.Context) (title, report string, err error)
}

// Scheduler fires jobs at their times of day until its context ends
type Scheduler struct {
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	jobs     []job
}

// New creates a Scheduler for the runner's jobs. notifier may be nil.
// A disabled config still validates its times but schedules nothing.
func New(runner *Runner, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger, cfg Config) (*Scheduler, error) {
	syncTimes, err := parseTimes(cfg.SyncTimes)
	if err != nil {
		return nil, err
	}
	inactivityTimes, err := parseTimes(cfg.InactivityTimes)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
	if !cfg.Enabled {
		return s, nil
	}
	s.jobs = []job{
		{
			name:  "sync",
			times: syncTimes,
			run: func(ctx context.Context) (string, string, error) {
				result, err := runner.Sync(ctx, clansync.Options{})
				if err != nil {
					return "", "", err
				}
				return "Clan Sync Report", result.Report, nil
			},
		},
		{
			name:  "inactivity",
			times: inactivityTimes,
			run: func(ctx context.Context) (string, string, error) {
				result, err := runner.Inactivity(ctx)
				if err != nil {
					return "", "", err
				}
				return "Inactivity Report", result.Report, nil
			},
		},
	}
	return s, nil
}

func parseTimes(values []string) ([]TimeOfDay, error) {
	times := make([]TimeOfDay, 0, len(values))
	for _, v := range values {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

type firing struct {
	at  time.Time
	job *job
}

// upcoming returns the next firing of every job, soonest first.
// Jobs due at the same instant keep their declared order.
func (s *Scheduler) upcoming(now time.Time) []firing {
	var firings []firing
	for i := range s.jobs {
		j := &s.jobs[i]
		var soonest time.Time
		for _, t := range j.times {
			if at := t.next(now); soonest.IsZero() || at.Before(soonest) {
				soonest = at
			}
		}
		if !soonest.IsZero() {
			firings = append(firings, firing{at: soonest, job: j})
		}
	}
	sort.SliceStable(firings, func(a, b int) bool { return firings[a].at.Before(firings[b].at) })
	return firings
}

// Start runs until ctx is done. It returns nil on cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		firings := s.upcoming(s.clock.Now())
		if len(firings) == 0 {
			s.logger.Info("no scheduled jobs")
			<-ctx.Done()
			return nil
		}

		next := firings[0]
		s.logger.Debug("waiting for next job", slog.String("job", next.job.name), slog.Time("at", next.at))
		if err := s.clock.Sleep(ctx, next.at.Sub(s.clock.Now())); err != nil {
			return nil
		}
		for _, f := range firings {
			if f.at.Equal(next.at) {
				s.fire(ctx, f.job)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job) {
	logger := s.logger.With(slog.String("job", j.name))
	logger.Info("scheduled run starting")

	title, report, err := j.run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("scheduled run failed", slog.Any("error", err))
		return
	}
	if s.notifier == nil || ctx.Err() != nil {
		return
	}
	if err := s.notifier.Post(ctx, title, report); err != nil {
		logger.Error("failed to post report", slog.Any("error", err))
	}
}
