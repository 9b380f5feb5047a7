package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs sync passes on a fixed interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for svc. Intervals below one second are
// rounded up by cron.
func NewScheduler(svc *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start runs one pass immediately and then one every interval until Stop.
// Passes use ctx; cancelling it aborts a running pass.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid sync interval: %s", s.interval)
	}

	id, err := s.cron.AddFunc("@every "+s.interval.String(), func() { s.run(ctx, "scheduled") })
	if err != nil {
		return fmt.Errorf("failed to schedule sync: %w", err)
	}
	s.entryID = id

	s.logger.Info("starting sync scheduler", "interval", s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, "startup")
	}()

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("stopped sync scheduler")
}

// Next returns when the next scheduled pass is due.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}

	report, err := s.svc.SyncAllPending(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Debug("sync already running, skipping pass", "reason", reason)
	case err != nil:
		s.logger.Error("sync pass failed", "reason", reason, "error", err)
	case report.Total > 0:
		s.logger.Info("sync pass complete", "reason", reason,
			"succeeded", report.Succeeded, "failed", report.Failed)
	}
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
