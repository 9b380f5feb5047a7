package server

import (
	"errors"
	"net/http"

	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
)

// handleListPhotos lists cached photo bundles: by exact plate, by plate
// substring with q, or all of them.
func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, []photocache.IndexEntry{})
		return
	}

	var (
		entries []photocache.IndexEntry
		err     error
	)
	q := r.URL.Query()
	switch {
	case q.Get("plate") != "":
		entries, err = s.cache.FindByPlate(q.Get("plate"))
	case q.Get("q") != "":
		entries, err = s.cache.Search(q.Get("q"))
	default:
		entries, err = s.cache.Index()
	}
	if err != nil {
		s.logger.Error("failed to read photo index", "error", err)
		entries = nil
	}
	if entries == nil {
		entries = []photocache.IndexEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetPhotos(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		jsonError(w, http.StatusNotFound, "photo cache disabled")
		return
	}

	bundle, err := s.cache.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, photocache.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "no cached photos for inspection")
			return
		}
		s.logger.Error("failed to read photo bundle", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
