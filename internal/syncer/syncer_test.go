package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/remote"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seed(t *testing.T, st *store.Store, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("INS-%03d", i)
		insp := &store.Inspection{
			ID:        ids[i],
			Vehicle:   store.Vehicle{Plate: fmt.Sprintf("AA-%05d", i), OwnerName: "Owner"},
			Status:    store.StatusPending,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		}
		if err := st.SaveInspection(insp); err != nil {
			t.Fatalf("SaveInspection(%s) failed: %v", ids[i], err)
		}
	}
	return ids
}

// fakeRemote records submissions and fails plates listed in fail.
type fakeRemote struct {
	mu       sync.Mutex
	sent     []string
	fail     map[string]bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeRemote) SubmitInspection(ctx context.Context, p remote.Payload) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[p.Plate] {
		return &remote.HTTPError{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}
	}
	f.sent = append(f.sent, p.ID)
	return nil
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestSyncAllPendingBatches(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 12)
	fr := &fakeRemote{}
	svc := New(st, fr, Options{BatchSize: 10}, testLogger())

	report, err := svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatalf("SyncAllPending() failed: %v", err)
	}

	if len(report.Batches) != 2 || report.Batches[0] != 10 || report.Batches[1] != 2 {
		t.Errorf("Batches = %v, want [10 2]", report.Batches)
	}
	if report.Total != 12 || report.Succeeded != 12 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if fr.count() != 12 {
		t.Errorf("remote received %d submissions, want 12", fr.count())
	}
	if got := fr.maxSeen.Load(); got > 10 {
		t.Errorf("max concurrent uploads = %d, want <= 10", got)
	}

	pending, err := st.ListPendingSync()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after sync = %d, want 0", len(pending))
	}
	counts, err := st.SyncQueueCounts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[store.SyncSynced] != 12 {
		t.Errorf("synced count = %d, want 12", counts[store.SyncSynced])
	}

	p := svc.Tracker().Snapshot()
	if p.Phase != PhaseComplete || p.Synced != 12 || p.Batches != 2 || p.Percent != 100 {
		t.Errorf("progress = %+v", p)
	}
}

func TestSyncAllPendingEmpty(t *testing.T) {
	svc := New(newTestStore(t), &fakeRemote{}, Options{}, testLogger())

	report, err := svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatalf("SyncAllPending() failed: %v", err)
	}
	if report.Total != 0 || len(report.Batches) != 0 {
		t.Errorf("report = %+v", report)
	}
	if p := svc.Tracker().Snapshot(); p.Phase != PhaseComplete {
		t.Errorf("phase = %s", p.Phase)
	}
}

func TestSyncFailuresAreRecorded(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 3)
	fr := &fakeRemote{fail: map[string]bool{"AA-00001": true}}
	svc := New(st, fr, Options{BatchSize: 10, MaxRetries: 2, RetryFailed: true}, testLogger())

	report, err := svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatalf("SyncAllPending() failed: %v", err)
	}
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].InspectionID != "INS-001" {
		t.Errorf("Failures = %+v", report.Failures)
	}

	entry, err := st.GetSyncQueueEntry("INS-001")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.SyncFailed || entry.RetryCount != 1 || !strings.Contains(entry.LastError, "500") {
		t.Errorf("queue entry = %+v", entry)
	}
	insp, err := st.GetInspection("INS-001")
	if err != nil {
		t.Fatal(err)
	}
	if insp.SyncStatus != store.SyncFailed {
		t.Errorf("inspection sync status = %s", insp.SyncStatus)
	}

	// retried once more, then left alone at the retry limit
	report, err = svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 || report.Failed != 1 {
		t.Errorf("second pass = %+v", report)
	}
	report, err = svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 {
		t.Errorf("third pass should find nothing, got %+v", report)
	}
}

func TestSyncPendingOnly(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 2)
	fr := &fakeRemote{fail: map[string]bool{"AA-00000": true}}
	svc := New(st, fr, Options{RetryFailed: false, MaxRetries: 3}, testLogger())

	if _, err := svc.SyncAllPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	report, err := svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 0 {
		t.Errorf("failed entries should wait for a manual requeue, got %+v", report)
	}

	if n, err := st.RequeueFailed(); err != nil || n != 1 {
		t.Fatalf("RequeueFailed() = %d, %v", n, err)
	}
	fr.fail = nil
	report, err = svc.SyncAllPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != 1 {
		t.Errorf("requeued entry not synced: %+v", report)
	}
}

func TestSyncInProgress(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 1)
	fr := &fakeRemote{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := New(st, fr, Options{}, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := svc.SyncAllPending(context.Background())
		done <- err
	}()

	select {
	case <-fr.started:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started")
	}

	if !svc.Running() {
		t.Error("Running() = false during a pass")
	}
	if _, err := svc.Trigger(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}

	close(fr.block)
	if err := <-done; err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	if svc.Running() {
		t.Error("Running() = true after pass finished")
	}
}

func TestSyncCancelledRequeues(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 1)
	fr := &fakeRemote{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := New(st, fr, Options{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.SyncAllPending(ctx)
		done <- err
	}()

	<-fr.started
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	entry, err := st.GetSyncQueueEntry("INS-000")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.SyncPending || entry.RetryCount != 0 {
		t.Errorf("interrupted entry = %+v, want pending with no retries", entry)
	}
	if p := svc.Tracker().Snapshot(); p.Phase != PhaseCancelled {
		t.Errorf("phase = %s", p.Phase)
	}
}

func TestSyncOneRequestTimeout(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 1)
	fr := &fakeRemote{block: make(chan struct{})}
	svc := New(st, fr, Options{RequestTimeout: 20 * time.Millisecond}, testLogger())

	insp, err := st.GetInspection("INS-000")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SyncOne(context.Background(), insp); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	entry, err := st.GetSyncQueueEntry("INS-000")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != store.SyncFailed || entry.LastAttemptAt.IsZero() {
		t.Errorf("entry = %+v, want failed with an attempt time", entry)
	}
}

func TestSyncOneUnknownInspection(t *testing.T) {
	svc := New(newTestStore(t), &fakeRemote{}, Options{}, testLogger())
	err := svc.SyncOne(context.Background(), &store.Inspection{ID: "INS-missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncThroughHTTPRemote(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/api/inspections/sync" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := remote.New(remote.Options{BaseURL: srv.URL}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	st := newTestStore(t)
	seed(t, st, 12)
	svc := New(st, client, Options{BatchSize: 10}, testLogger())

	report, err := svc.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger() failed: %v", err)
	}
	if report.Succeeded != 12 || requests.Load() != 12 {
		t.Errorf("succeeded = %d, requests = %d", report.Succeeded, requests.Load())
	}
}

func TestPartition(t *testing.T) {
	list := make([]store.Inspection, 25)
	got := partition(list, 10)
	if len(got) != 3 || len(got[0]) != 10 || len(got[1]) != 10 || len(got[2]) != 5 {
		t.Errorf("partition sizes wrong: %d batches", len(got))
	}
	if partition(nil, 10) != nil {
		t.Error("empty list should yield no batches")
	}
}

func TestPoolKeepsOrder(t *testing.T) {
	batch := make([]store.Inspection, 8)
	for i := range batch {
		batch[i].ID = fmt.Sprintf("INS-%d", i)
	}

	p := newPool(3)
	results := p.execute(context.Background(), batch, func(ctx context.Context, insp *store.Inspection) error {
		if insp.ID == "INS-4" {
			return errors.New("boom")
		}
		return nil
	})

	if len(results) != 8 {
		t.Fatalf("results = %d", len(results))
	}
	for i, r := range results {
		if r.Inspection.ID != batch[i].ID {
			t.Errorf("result %d = %s", i, r.Inspection.ID)
		}
		if (r.Err != nil) != (i == 4) {
			t.Errorf("result %d err = %v", i, r.Err)
		}
	}
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := newPool(2).execute(ctx, make([]store.Inspection, 4), func(ctx context.Context, insp *store.Inspection) error {
		calls.Add(1)
		return nil
	})
	if calls.Load() != 0 {
		t.Errorf("fn called %d times after cancel", calls.Load())
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("err = %v", r.Err)
		}
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	if p := tr.Snapshot(); p.Phase != PhaseIdle {
		t.Errorf("initial phase = %s", p.Phase)
	}

	wait := tr.Wait()
	tr.Begin(4, 1)
	select {
	case <-wait:
	default:
		t.Error("Begin should signal waiters")
	}

	tr.StartBatch(1)
	tr.Synced("INS-1", "AA-1")
	tr.Failed("INS-2", "AA-2", "boom")
	p := tr.Snapshot()
	if p.Synced != 1 || p.Failed != 1 || p.Percent != 50 || p.Batch != 1 {
		t.Errorf("progress = %+v", p)
	}
	if len(p.RecentEvents) != 2 || p.RecentEvents[0].InspectionID != "INS-2" {
		t.Errorf("recent events = %+v", p.RecentEvents)
	}

	for i := 0; i < 30; i++ {
		tr.Synced("x", "")
	}
	if got := len(tr.Snapshot().RecentEvents); got != maxRecentEvents {
		t.Errorf("recent events = %d, want %d", got, maxRecentEvents)
	}

	tr.Finish(PhaseComplete, "done")
	p = tr.Snapshot()
	if p.Phase != PhaseComplete || p.Message != "done" || p.FinishTime.IsZero() {
		t.Errorf("finished progress = %+v", p)
	}
}

func TestSchedulerRunsImmediately(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, 3)
	fr := &fakeRemote{}
	svc := New(st, fr, Options{}, testLogger())

	s := NewScheduler(svc, time.Hour, testLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if next := s.Next(); next.IsZero() {
		t.Error("Next() should report the scheduled pass")
	}
	s.Stop()

	if fr.count() != 3 {
		t.Errorf("startup pass sent %d, want 3", fr.count())
	}
}

func TestSchedulerInvalidInterval(t *testing.T) {
	s := NewScheduler(New(newTestStore(t), &fakeRemote{}, Options{}, testLogger()), 0, testLogger())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
