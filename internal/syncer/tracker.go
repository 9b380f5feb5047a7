package syncer

import (
	"sync"
	"time"
)

// Phase is the state of the current or last sync pass.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSyncing   Phase = "syncing"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

const maxRecentEvents = 20

// Event records one inspection sent or failed during a pass.
type Event struct {
	InspectionID string    `json:"inspection_id"`
	Plate        string    `json:"plate,omitempty"`
	Status       string    `json:"status"` // "synced", "failed"
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Progress is a snapshot of the tracker, safe for JSON serialization.
type Progress struct {
	Phase        Phase     `json:"phase"`
	Total        int       `json:"total"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
	Batch        int       `json:"batch"`
	Batches      int       `json:"batches"`
	Percent      float64   `json:"percent"`
	RecentEvents []Event   `json:"recent_events,omitempty"`
	StartTime    time.Time `json:"start_time,omitempty"`
	FinishTime   time.Time `json:"finish_time,omitempty"`
	Elapsed      string    `json:"elapsed,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Tracker accumulates sync progress from pool workers. Listeners call Wait
// to block until the next update.
type Tracker struct {
	mu sync.Mutex

	phase      Phase
	total      int
	synced     int
	failed     int
	batch      int
	batches    int
	startTime  time.Time
	finishTime time.Time
	message    string

	recentEvents []Event

	// closed and replaced on every update
	notify chan struct{}
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		phase:  PhaseIdle,
		notify: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pct float64
	if t.total > 0 {
		pct = float64(t.synced+t.failed) / float64(t.total) * 100
	} else if t.phase == PhaseComplete {
		pct = 100
	}

	events := make([]Event, len(t.recentEvents))
	copy(events, t.recentEvents)

	var elapsed string
	if !t.startTime.IsZero() {
		end := t.finishTime
		if end.IsZero() {
			end = time.Now()
		}
		elapsed = end.Sub(t.startTime).Truncate(time.Millisecond).String()
	}

	return Progress{
		Phase:        t.phase,
		Total:        t.total,
		Synced:       t.synced,
		Failed:       t.failed,
		Batch:        t.batch,
		Batches:      t.batches,
		Percent:      pct,
		RecentEvents: events,
		StartTime:    t.startTime,
		FinishTime:   t.finishTime,
		Elapsed:      elapsed,
		Message:      t.message,
	}
}

// Wait returns a channel that is closed on the next update.
func (t *Tracker) Wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notify
}

// signal must be called with t.mu held.
func (t *Tracker) signal() {
	close(t.notify)
	t.notify = make(chan struct{})
}

// Begin resets the tracker for a new pass.
func (t *Tracker) Begin(total, batches int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = PhaseSyncing
	t.total = total
	t.batches = batches
	t.synced, t.failed, t.batch = 0, 0, 0
	t.startTime = time.Now()
	t.finishTime = time.Time{}
	t.message = ""
	t.recentEvents = nil
	t.signal()
}

// StartBatch records that batch n (1-based) is running.
func (t *Tracker) StartBatch(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batch = n
	t.signal()
}

// Synced records a successful upload.
func (t *Tracker) Synced(id, plate string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.synced++
	t.addRecentEvent(Event{InspectionID: id, Plate: plate, Status: "synced", At: time.Now()})
	t.signal()
}

// Failed records a failed upload.
func (t *Tracker) Failed(id, plate, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed++
	t.addRecentEvent(Event{InspectionID: id, Plate: plate, Status: "failed", Error: errMsg, At: time.Now()})
	t.signal()
}

// Finish ends the pass with the given phase and message.
func (t *Tracker) Finish(phase Phase, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	t.message = msg
	t.finishTime = time.Now()
	if t.startTime.IsZero() {
		t.startTime = t.finishTime
	}
	t.signal()
}

// addRecentEvent must be called with t.mu held.
func (t *Tracker) addRecentEvent(ev Event) {
	t.recentEvents = append([]Event{ev}, t.recentEvents...)
	if len(t.recentEvents) > maxRecentEvents {
		t.recentEvents = t.recentEvents[:maxRecentEvents]
	}
}
