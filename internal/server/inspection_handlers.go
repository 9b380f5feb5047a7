package server

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/checklist"
	"github.com/Eskedar21/VIMS-sub000/internal/inspection"
	"github.com/Eskedar21/VIMS-sub000/internal/machine"
	"github.com/Eskedar21/VIMS-sub000/internal/photo"
	"github.com/Eskedar21/VIMS-sub000/internal/safety"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// photos arrive inline as data URLs
const maxInspectionBody int64 = 64 << 20

type healthResponse struct {
	Status      string         `json:"status"`
	Uptime      string         `json:"uptime"`
	Inspections map[string]int `json:"inspections"`
	SyncQueue   map[string]int `json:"sync_queue"`
	SyncRunning bool           `json:"sync_running"`
	PhotoCache  int64          `json:"photo_cache_bytes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	inspections, err := s.store.CountInspections()
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	queue, err := s.store.SyncQueueCounts()
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}

	resp := healthResponse{
		Status:      "ok",
		Uptime:      time.Since(s.started).Truncate(time.Second).String(),
		Inspections: inspections,
		SyncQueue:   queue,
	}
	if s.sync != nil {
		resp.SyncRunning = s.sync.Running()
	}
	if s.cache != nil {
		resp.PhotoCache = s.cache.Size()
	}
	writeJSON(w, http.StatusOK, resp)
}

type createInspectionResponse struct {
	ID         string            `json:"id"`
	Inspection *store.Inspection `json:"inspection"`
}

func (s *Server) handleCreateInspection(w http.ResponseWriter, r *http.Request) {
	body, err := safety.ReadAllWithLimit(r.Body, maxInspectionBody)
	if err != nil {
		if errors.Is(err, safety.ErrBodyTooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	in, err := inspection.DecodeInput(body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := inspection.Validate(in); err != nil {
		writeValidationError(w, err)
		return
	}

	insp, err := s.recorder.Save(r.Context(), in)
	if err != nil {
		if errors.Is(err, photo.ErrUnsupportedSource) {
			jsonError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, "failed to save inspection")
		return
	}

	// photo data is only returned by GET /api/inspections/{id}
	out := *insp
	out.Photos = make([]store.Photo, len(insp.Photos))
	for i, p := range insp.Photos {
		p.Data = ""
		out.Photos[i] = p
	}

	writeJSON(w, http.StatusCreated, createInspectionResponse{ID: insp.ID, Inspection: &out})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *inspection.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	jsonError(w, http.StatusUnprocessableEntity, err.Error())
}

func (s *Server) handleListInspections(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.List(f))
}

func parseFilter(r *http.Request) (store.InspectionFilter, error) {
	q := r.URL.Query()
	f := store.InspectionFilter{
		Plate:    inspection.NormalizePlate(q.Get("plate")),
		Status:   q.Get("status"),
		CenterID: q.Get("center"),
	}

	if v := q.Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid include_deleted: %q", v)
		}
		f.IncludeDeleted = b
	}

	var err error
	if f.From, err = parseDate(q.Get("from"), false); err != nil {
		return f, fmt.Errorf("invalid from: %w", err)
	}
	if f.To, err = parseDate(q.Get("to"), true); err != nil {
		return f, fmt.Errorf("invalid to: %w", err)
	}
	return f, nil
}

// parseDate accepts RFC 3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (s *Server) handleGetInspection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	insp, err := s.recorder.Get(id)
	if err != nil {
		s.writeStoreError(w, err, "inspection not found")
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

func (s *Server) handleDeleteInspection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.recorder.Delete(id); err != nil {
		s.writeStoreError(w, err, "inspection not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFinalizeInspection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := s.recorder.Finalize(id)
	if err != nil {
		s.writeStoreError(w, err, "inspection not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("store request failed", "error", err)
	jsonError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.recorder.Search(r.URL.Query().Get("q")))
}

type checklistResponse struct {
	Zones     []string         `json:"zones"`
	Items     []checklist.Item `json:"items"`
	MaxPoints int              `json:"max_points"`
}

func (s *Server) handleChecklist(w http.ResponseWriter, r *http.Request) {
	items := checklist.Items()
	resp := checklistResponse{Zones: checklist.Zones(), Items: items}
	for _, it := range items {
		resp.MaxPoints += it.Points
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMachineSections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, machine.Sections())
}

func (s *Server) handleMachineSimulate(w http.ResponseWriter, r *http.Request) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	writeJSON(w, http.StatusOK, machine.Simulate(rng))
}
