// Package inspection turns kiosk input into stored inspection records and
// drives them from registration through to a final verdict.
package inspection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Eskedar21/VIMS-sub000/internal/checklist"
	"github.com/Eskedar21/VIMS-sub000/internal/machine"
	"github.com/Eskedar21/VIMS-sub000/internal/photo"
	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// PhotoNormalizer loads and normalizes photo sources.
type PhotoNormalizer interface {
	Normalize(ctx context.Context, src photo.Source, filename string) (*photo.Encoded, error)
}

// Options configures a Recorder.
type Options struct {
	CenterID            string
	PassThreshold       float64
	CertificateValidity time.Duration
}

// Recorder saves and reads inspections through the record store.
type Recorder struct {
	store  *store.Store
	photos PhotoNormalizer
	cache  *photocache.Cache
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. cache may be nil.
func NewRecorder(st *store.Store, photos PhotoNormalizer, cache *photocache.Cache, opts Options, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CertificateValidity <= 0 {
		opts.CertificateValidity = 365 * 24 * time.Hour
	}
	return &Recorder{
		store:  st,
		photos: photos,
		cache:  cache,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Save normalizes in, loads its photos and writes the inspection, its
// sub-records and a pending sync queue entry in one transaction. The photo
// cache is updated afterwards; a cache failure is only logged.
func (r *Recorder) Save(ctx context.Context, in Input) (*store.Inspection, error) {
	draft := in.normalize(r.now(), Defaults{CenterID: r.opts.CenterID})
	insp := draft.Inspection

	for i, p := range draft.Photos {
		src, err := p.Source()
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", i, err)
		}
		if r.photos == nil {
			return nil, fmt.Errorf("photo %d: %w: no photo normalizer configured", i, photo.ErrUnsupportedSource)
		}
		enc, err := r.photos.Normalize(ctx, src, p.Filename)
		if err != nil {
			return nil, fmt.Errorf("photo %d (%s): %w", i, photo.Kind(src), err)
		}
		insp.Photos = append(insp.Photos, store.Photo{
			ID:       newRecordID(),
			Type:     photoType(p.Type),
			Data:     enc.DataURL,
			MIMEType: enc.MIMEType,
			Filename: enc.Filename,
			Size:     enc.Size,
		})
	}

	if err := r.store.SaveInspection(insp); err != nil {
		r.logger.Error("failed to save inspection", "id", insp.ID, "plate", insp.Vehicle.Plate, "error", err)
		return nil, err
	}

	r.logger.Info("inspection saved", "id", insp.ID, "plate", insp.Vehicle.Plate,
		"machine_results", len(insp.MachineResults), "visual_results", len(insp.VisualResults), "photos", len(insp.Photos))

	if r.cache != nil && len(insp.Photos) > 0 {
		err := r.cache.Put(photocache.Bundle{
			InspectionID: insp.ID,
			Plate:        insp.Vehicle.Plate,
			Photos:       insp.Photos,
		})
		if err != nil {
			r.logger.Warn("failed to cache inspection photos", "id", insp.ID, "error", err)
		}
	}

	return insp, nil
}

// Get returns an inspection with its sub-records. Unknown IDs yield an
// error matching store.ErrNotFound.
func (r *Recorder) Get(id string) (*store.Inspection, error) {
	return r.store.GetInspection(id)
}

// List returns matching inspections, or an empty slice if the store fails.
func (r *Recorder) List(f store.InspectionFilter) []store.Inspection {
	list, err := r.store.ListInspections(f)
	if err != nil {
		r.logger.Error("failed to list inspections", "error", err)
		return []store.Inspection{}
	}
	return orEmpty(list)
}

// Search runs a free-text search, returning an empty slice on failure.
func (r *Recorder) Search(query string) []store.Inspection {
	list, err := r.store.SearchInspections(query)
	if err != nil {
		r.logger.Error("failed to search inspections", "query", query, "error", err)
		return []store.Inspection{}
	}
	return orEmpty(list)
}

// Pending returns inspections waiting to be synced, empty on failure.
func (r *Recorder) Pending() []store.Inspection {
	list, err := r.store.ListPendingSync()
	if err != nil {
		r.logger.Error("failed to list pending sync items", "error", err)
		return []store.Inspection{}
	}
	return orEmpty(list)
}

func orEmpty(list []store.Inspection) []store.Inspection {
	if list == nil {
		return []store.Inspection{}
	}
	return list
}

// Delete soft-deletes an inspection. Cached photos are kept.
func (r *Recorder) Delete(id string) error {
	if err := r.store.SoftDeleteInspection(id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Error("failed to delete inspection", "id", id, "error", err)
		}
		return err
	}
	r.logger.Info("inspection deleted", "id", id)
	return nil
}

// Verdict is the outcome of finalizing an inspection.
type Verdict struct {
	InspectionID    string            `json:"inspection_id"`
	Status          string            `json:"status"`
	MachinePassed   bool              `json:"machine_passed"`
	MachineFailures []string          `json:"machine_failures,omitempty"`
	Visual          checklist.Result  `json:"visual"`
	Incomplete      []string          `json:"incomplete,omitempty"`
	Certificate     store.Certificate `json:"certificate"`
}

// Finalize grades the machine and visual results of an inspection, stores
// the outcome and, on a pass, issues a certificate. An inspection without
// machine results or with checklist items left unrecorded is incomplete and
// fails. The inspection is queued for sync again.
func (r *Recorder) Finalize(id string) (*Verdict, error) {
	insp, err := r.store.GetInspection(id)
	if err != nil {
		return nil, err
	}
	if insp.Status == store.StatusDeleted {
		return nil, fmt.Errorf("inspection %s is deleted: %w", id, store.ErrNotFound)
	}

	regraded := make([]store.MachineResult, len(insp.MachineResults))
	for i, m := range insp.MachineResults {
		regraded[i] = machine.Regrade(m)
	}

	v := &Verdict{
		InspectionID:    id,
		MachinePassed:   machine.Outcome(regraded),
		MachineFailures: machine.Failures(regraded),
		Visual:          checklist.Score(insp.VisualResults, r.opts.PassThreshold),
	}

	if len(regraded) == 0 {
		v.Incomplete = append(v.Incomplete, "no machine test results")
	}
	if n := len(v.Visual.Missing); n > 0 {
		v.Incomplete = append(v.Incomplete, fmt.Sprintf("%d checklist items not recorded", n))
	}

	v.Status = store.StatusFailed
	if len(v.Incomplete) == 0 && v.MachinePassed && v.Visual.Passed {
		now := r.now()
		v.Status = store.StatusPassed
		v.Certificate = store.Certificate{
			Number:    certificateNumber(now),
			IssuedAt:  now,
			ExpiresAt: now.Add(r.opts.CertificateValidity),
		}
	}

	if err := r.store.FinalizeInspection(id, v.Status, v.Certificate, v.Visual.Points, v.Visual.MaxPoints); err != nil {
		r.logger.Error("failed to finalize inspection", "id", id, "error", err)
		return nil, err
	}

	r.logger.Info("inspection finalized", "id", id, "status", v.Status,
		"visual_percentage", v.Visual.Percentage, "machine_failures", len(v.MachineFailures),
		"incomplete", len(v.Incomplete))
	return v, nil
}

// certificateNumber returns "CERT-<yyyymmdd>-<8 hex>".
func certificateNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CERT-%s-%s", now.Format("20060102"), suffix)
}
