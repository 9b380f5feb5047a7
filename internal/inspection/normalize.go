package inspection

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Eskedar21/VIMS-sub000/internal/checklist"
	"github.com/Eskedar21/VIMS-sub000/internal/machine"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// Defaults fill fields an input leaves out.
type Defaults struct {
	CenterID string
}

// Draft is a normalized inspection whose photos have not been loaded yet.
type Draft struct {
	Inspection *store.Inspection
	Photos     []PhotoInput
}

// NewInspectionID returns "INS-<unix millis>-<8 hex>".
func NewInspectionID(now time.Time) string {
	return fmt.Sprintf("INS-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func newRecordID() string {
	return uuid.NewString()
}

// NormalizePlate trims and upper-cases a plate number.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// normalizeStatus maps any casing of a known inspection status onto its
// canonical spelling. Empty becomes Pending; unknown values pass through.
func normalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return store.StatusPending
	}
	for _, known := range []string{store.StatusPending, store.StatusPassed, store.StatusFailed, store.StatusDeleted} {
		if strings.EqualFold(s, known) {
			return known
		}
	}
	return s
}

func newDraft(id string, now time.Time, createdAt *time.Time) *Draft {
	if id == "" {
		id = NewInspectionID(now)
	}
	insp := &store.Inspection{
		ID:         id,
		SyncStatus: store.SyncPending,
		CreatedAt:  now,
	}
	if createdAt != nil && !createdAt.IsZero() {
		insp.CreatedAt = *createdAt
	}
	return &Draft{Inspection: insp}
}

func machineResult(name, section string, value float64, unit, status string, lo, hi *float64) store.MachineResult {
	r := store.MachineResult{
		ID:           newRecordID(),
		TestName:     strings.TrimSpace(name),
		Section:      section,
		Value:        value,
		Unit:         unit,
		Status:       strings.ToLower(strings.TrimSpace(status)),
		MinThreshold: lo,
		MaxThreshold: hi,
	}
	if s, ok := machine.Lookup(r.TestName); ok {
		if r.Section == "" {
			r.Section = s.Group
		}
		if r.Unit == "" {
			r.Unit = s.Unit
		}
		if r.MinThreshold == nil && r.MaxThreshold == nil {
			r.MinThreshold, r.MaxThreshold = s.Min, s.Max
		}
	}
	if r.Status == "" {
		r = machine.Regrade(r)
	}
	return r
}

func visualResult(item, category, status, severity, note, photoRef string) store.VisualResult {
	r := store.VisualResult{
		ID:         newRecordID(),
		ItemName:   strings.TrimSpace(item),
		Category:   category,
		Status:     strings.ToLower(strings.TrimSpace(status)),
		Severity:   strings.ToLower(strings.TrimSpace(severity)),
		DefectNote: note,
		PhotoRef:   photoRef,
	}
	if r.Category == "" {
		if it, ok := checklist.Lookup(r.ItemName); ok {
			r.Category = it.Zone
		}
	}
	return r
}

func (in KioskInput) normalize(now time.Time, d Defaults) *Draft {
	draft := newDraft(strings.TrimSpace(in.ID), now, in.CreatedAt)
	insp := draft.Inspection

	v := in.Vehicle
	insp.Vehicle = store.Vehicle{
		Plate:           NormalizePlate(v.Plate),
		VIN:             strings.ToUpper(strings.TrimSpace(v.VIN)),
		Make:            strings.TrimSpace(v.Make),
		Model:           strings.TrimSpace(v.Model),
		Year:            v.Year,
		Color:           v.Color,
		FuelType:        v.FuelType,
		OwnerName:       strings.TrimSpace(v.Owner.Name),
		OwnerPhone:      strings.TrimSpace(v.Owner.Phone),
		OwnerNationalID: strings.TrimSpace(v.Owner.NationalID),
	}

	insp.CenterID = in.CenterID
	if insp.CenterID == "" {
		insp.CenterID = d.CenterID
	}
	insp.InspectorID = in.InspectorID
	insp.InspectionType = in.InspectionType
	insp.Status = normalizeStatus(in.Status)
	insp.Notes = in.Notes
	if in.Location != nil {
		insp.Location = store.Location{
			Latitude:  in.Location.Latitude,
			Longitude: in.Location.Longitude,
			Accuracy:  in.Location.Accuracy,
			Address:   in.Location.Address,
		}
	}

	for _, m := range in.MachineResults {
		insp.MachineResults = append(insp.MachineResults,
			machineResult(m.TestName, m.Section, m.Value, m.Unit, m.Status, m.MinThreshold, m.MaxThreshold))
	}
	for _, vr := range in.VisualResults {
		insp.VisualResults = append(insp.VisualResults,
			visualResult(vr.ItemName, vr.Category, vr.Status, vr.Severity, vr.DefectNote, vr.PhotoRef))
	}
	draft.Photos = append(draft.Photos, in.Photos...)

	return draft
}

func (in LegacyInput) normalize(now time.Time, d Defaults) *Draft {
	draft := newDraft(strings.TrimSpace(in.ID), now, nil)
	insp := draft.Inspection

	v := in.Vehicle
	insp.Vehicle = store.Vehicle{
		Plate:      NormalizePlate(v.PlateNumber),
		VIN:        strings.ToUpper(strings.TrimSpace(v.ChassisNumber)),
		Make:       strings.TrimSpace(v.Make),
		Model:      strings.TrimSpace(v.Model),
		Year:       v.Year,
		OwnerName:  strings.TrimSpace(v.OwnerName),
		OwnerPhone: strings.TrimSpace(v.OwnerPhone),
	}

	insp.CenterID = in.Center
	if insp.CenterID == "" {
		insp.CenterID = d.CenterID
	}
	insp.Status = normalizeStatus(in.Status)
	insp.Location = store.Location{Latitude: in.Latitude, Longitude: in.Longitude}

	for _, m := range in.MachineTests {
		status := ""
		if m.Passed != nil {
			status = machine.StatusFail
			if *m.Passed {
				status = machine.StatusPass
			}
		}
		insp.MachineResults = append(insp.MachineResults,
			machineResult(m.Name, "", m.Value, m.Unit, status, nil, nil))
	}
	for _, c := range in.VisualChecks {
		insp.VisualResults = append(insp.VisualResults,
			visualResult(c.Item, c.Zone, c.Result, "", c.Note, ""))
	}

	// map order is random; keep photo order stable
	types := make([]string, 0, len(in.Photos))
	for t := range in.Photos {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		draft.Photos = append(draft.Photos, legacyPhoto(t, in.Photos[t]))
	}

	return draft
}

// legacyPhoto classifies a bare photo string. Anything that is neither a
// data URL nor an HTTP(S) URL yields an input with no source, which is
// rejected as unsupported when the photo is loaded.
func legacyPhoto(photoType, value string) PhotoInput {
	p := PhotoInput{Type: photoType}
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "data:"):
		p.Data = value
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		p.URL = value
	}
	return p
}
