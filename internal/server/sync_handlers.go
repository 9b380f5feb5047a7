package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
	"github.com/Eskedar21/VIMS-sub000/internal/syncer"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		jsonError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	report, err := s.sync.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			jsonError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("manual sync failed", "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncPending(w http.ResponseWriter, r *http.Request) {
	pending := s.recorder.Pending()
	for i := range pending {
		for j := range pending[i].Photos {
			pending[i].Photos[j].Data = ""
		}
	}
	writeJSON(w, http.StatusOK, pending)
}

type syncQueueResponse struct {
	Counts  map[string]int         `json:"counts"`
	Entries []store.SyncQueueEntry `json:"entries"`
}

func (s *Server) handleSyncQueue(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.SyncPending, store.SyncSyncing, store.SyncSynced, store.SyncFailed:
	default:
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
		return
	}

	entries, err := s.store.ListSyncQueue(status)
	if err != nil {
		s.logger.Error("failed to list sync queue", "error", err)
		entries = nil
	}
	counts, err := s.store.SyncQueueCounts()
	if err != nil {
		s.logger.Error("failed to count sync queue", "error", err)
		counts = map[string]int{}
	}
	if entries == nil {
		entries = []store.SyncQueueEntry{}
	}
	writeJSON(w, http.StatusOK, syncQueueResponse{Counts: counts, Entries: entries})
}

func (s *Server) handleSyncRequeue(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.RequeueFailed()
	if err != nil {
		s.logger.Error("failed to requeue sync entries", "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}

func (s *Server) handleSyncProgress(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeJSON(w, http.StatusOK, syncer.Progress{Phase: syncer.PhaseIdle})
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Tracker().Snapshot())
}

// handleSyncProgressStream sends progress snapshots as server-sent events
// until the pass ends or the client goes away. A heartbeat snapshot goes out
// every 15 seconds while idle.
func (s *Server) handleSyncProgressStream(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		jsonError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	sendEvent := func(event string, data interface{}) {
		jsonData, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
		flusher.Flush()
	}

	tracker := s.sync.Tracker()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		// take the wait channel before the snapshot so no update is missed
		wait := tracker.Wait()
		p := tracker.Snapshot()
		sendEvent("progress", p)

		if p.Phase != syncer.PhaseSyncing && p.Phase != syncer.PhaseIdle {
			sendEvent("done", p)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-wait:
		case <-heartbeat.C:
		}
	}
}
