package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires ticks on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	runner     *Runner
	schedule   string
	runOnStart bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for runner. Overlapping fires are skipped
// and a panicking tick is recovered, so the schedule never stops.
func NewScheduler(runner *Runner, schedule string, runOnStart bool) (*Scheduler, error) {
	logger := slogCronLogger{}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:     runner,
		schedule:   schedule,
		runOnStart: runOnStart,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := s.cron.AddFunc(schedule, s.fire); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins firing ticks.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "schedule", s.schedule, "run_on_start", s.runOnStart)

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire()
		}()
	}
}

// Stop waits for the in-flight tick to finish. If ctx expires first the tick
// is cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	defer s.cancel()
	cronDone := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("scheduler stopped")
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out, cancelling running tick")
	}
}

// Next returns the next scheduled fire time, zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) fire() {
	if s.ctx.Err() != nil {
		return
	}
	if out := s.runner.Tick(s.ctx); out.Fault != nil {
		slog.Warn("tick aborted", "tick_id", out.ID, "error", out.Fault)
	}
}

// slogCronLogger routes cron's own logging through slog.
type slogCronLogger struct{}

func (slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
