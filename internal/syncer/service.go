// Package syncer sends locally saved inspections to the central system in
// batches, either on a schedule or when triggered by hand.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/remote"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// ErrSyncInProgress is returned when a pass is requested while another one
// is running.
var ErrSyncInProgress = errors.New("sync already in progress")

const (
	DefaultBatchSize      = 10
	DefaultRequestTimeout = 30 * time.Second
)

// Submitter uploads one inspection payload.
type Submitter interface {
	SubmitInspection(ctx context.Context, p remote.Payload) error
}

// Options configures a Service.
type Options struct {
	BatchSize      int
	MaxRetries     int
	RequestTimeout time.Duration
	// RetryFailed also selects failed entries below MaxRetries on each pass.
	RetryFailed bool
}

// Failure describes one inspection that could not be sent.
type Failure struct {
	InspectionID string `json:"inspection_id"`
	Plate        string `json:"plate,omitempty"`
	Error        string `json:"error"`
}

// Report summarizes a sync pass.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Batches   []int         `json:"batches"`
	Failures  []Failure     `json:"failures,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Service moves queued inspections to the remote system.
type Service struct {
	store   *store.Store
	remote  Submitter
	opts    Options
	pool    *pool
	tracker *Tracker
	logger  *slog.Logger

	running atomic.Bool
}

// New creates a sync Service.
func New(st *store.Store, submitter Submitter, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Service{
		store:   st,
		remote:  submitter,
		opts:    opts,
		pool:    newPool(opts.BatchSize),
		tracker: NewTracker(),
		logger:  logger,
	}
}

// Tracker returns the progress tracker for sync passes.
func (s *Service) Tracker() *Tracker { return s.tracker }

// Running reports whether a pass is in progress.
func (s *Service) Running() bool { return s.running.Load() }

// SyncOne sends a single inspection. The inspection is marked syncing, then
// synced or failed with the error message. If ctx is cancelled while the
// upload is in flight the entry goes back to pending.
func (s *Service) SyncOne(ctx context.Context, insp *store.Inspection) error {
	if err := s.store.UpdateSyncStatus(insp.ID, store.SyncSyncing, ""); err != nil {
		return fmt.Errorf("failed to mark %s syncing: %w", insp.ID, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	err := s.remote.SubmitInspection(reqCtx, remote.BuildPayload(insp))
	if err != nil {
		if ctx.Err() != nil {
			if uerr := s.store.UpdateSyncStatus(insp.ID, store.SyncPending, ""); uerr != nil {
				s.logger.Error("failed to requeue interrupted sync", "id", insp.ID, "error", uerr)
			}
			return ctx.Err()
		}
		s.logger.Warn("inspection sync failed", "id", insp.ID, "plate", insp.Vehicle.Plate, "error", err)
		if uerr := s.store.UpdateSyncStatus(insp.ID, store.SyncFailed, err.Error()); uerr != nil {
			s.logger.Error("failed to record sync failure", "id", insp.ID, "error", uerr)
		}
		return err
	}

	if err := s.store.UpdateSyncStatus(insp.ID, store.SyncSynced, ""); err != nil {
		s.logger.Error("inspection sent but status not recorded", "id", insp.ID, "error", err)
		return fmt.Errorf("failed to mark %s synced: %w", insp.ID, err)
	}

	s.logger.Info("inspection synced", "id", insp.ID, "plate", insp.Vehicle.Plate)
	return nil
}

func (s *Service) candidates() ([]store.Inspection, error) {
	if s.opts.RetryFailed {
		return s.store.ListSyncCandidates(s.opts.MaxRetries)
	}
	return s.store.ListPendingSync()
}

// SyncAllPending sends every queued inspection. Candidates are split into
// batches of BatchSize; the records in a batch are sent concurrently and
// batches run one after another. Individual failures are recorded in the
// queue and the report, not returned.
func (s *Service) SyncAllPending(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	report := &Report{StartedAt: time.Now(), Batches: []int{}}

	list, err := s.candidates()
	if err != nil {
		s.tracker.Finish(PhaseFailed, err.Error())
		return nil, fmt.Errorf("failed to list sync candidates: %w", err)
	}

	batches := partition(list, s.opts.BatchSize)
	report.Total = len(list)
	s.tracker.Begin(len(list), len(batches))

	if len(list) == 0 {
		s.tracker.Finish(PhaseComplete, "nothing to sync")
		s.logger.Debug("no inspections waiting for sync")
		return report, nil
	}

	s.logger.Info("sync pass started", "inspections", len(list), "batches", len(batches))

	track := func(ctx context.Context, insp *store.Inspection) error {
		err := s.SyncOne(ctx, insp)
		if err != nil {
			s.tracker.Failed(insp.ID, insp.Vehicle.Plate, err.Error())
		} else {
			s.tracker.Synced(insp.ID, insp.Vehicle.Plate)
		}
		return err
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		report.Batches = append(report.Batches, len(batch))
		s.tracker.StartBatch(i + 1)

		for _, r := range s.pool.execute(ctx, batch, track) {
			if r.Err == nil {
				report.Succeeded++
				continue
			}
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				InspectionID: r.Inspection.ID,
				Plate:        r.Inspection.Vehicle.Plate,
				Error:        r.Err.Error(),
			})
		}
	}

	report.Duration = time.Since(report.StartedAt)

	if err := ctx.Err(); err != nil {
		s.tracker.Finish(PhaseCancelled, "sync cancelled")
		s.logger.Warn("sync pass cancelled", "succeeded", report.Succeeded, "failed", report.Failed)
		return report, err
	}

	s.tracker.Finish(PhaseComplete, fmt.Sprintf("%d synced, %d failed", report.Succeeded, report.Failed))
	s.logger.Info("sync pass finished",
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Duration.Truncate(time.Millisecond))
	return report, nil
}

// Trigger runs a pass on request, for the sync button and CLI.
func (s *Service) Trigger(ctx context.Context) (*Report, error) {
	s.logger.Info("manual sync triggered")
	return s.SyncAllPending(ctx)
}

// partition splits list into consecutive chunks of at most size records.
func partition(list []store.Inspection, size int) [][]store.Inspection {
	var out [][]store.Inspection
	for start := 0; start < len(list); start += size {
		out = append(out, list[start:min(start+size, len(list))])
	}
	return out
}
