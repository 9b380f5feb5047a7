package remote

import (
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// Payload is the flattened inspection record the central system accepts.
type Payload struct {
	ID              string `json:"id"`
	Plate           string `json:"plate"`
	VIN             string `json:"vin,omitempty"`
	Make            string `json:"make,omitempty"`
	Model           string `json:"model,omitempty"`
	Year            int    `json:"year,omitempty"`
	Color           string `json:"color,omitempty"`
	FuelType        string `json:"fuelType,omitempty"`
	OwnerName       string `json:"ownerName"`
	OwnerPhone      string `json:"ownerPhone,omitempty"`
	OwnerNationalID string `json:"ownerNationalId,omitempty"`

	CenterID       string `json:"centerId,omitempty"`
	InspectorID    string `json:"inspectorId,omitempty"`
	InspectionType string `json:"inspectionType,omitempty"`
	Status         string `json:"status"`
	Notes          string `json:"notes,omitempty"`

	Latitude         float64 `json:"latitude,omitempty"`
	Longitude        float64 `json:"longitude,omitempty"`
	LocationAccuracy float64 `json:"locationAccuracy,omitempty"`
	Address          string  `json:"address,omitempty"`

	CertificateNumber    string     `json:"certificateNumber,omitempty"`
	CertificateIssuedAt  *time.Time `json:"certificateIssuedAt,omitempty"`
	CertificateExpiresAt *time.Time `json:"certificateExpiresAt,omitempty"`
	VisualScore          int        `json:"visualScore"`
	VisualMaxScore       int        `json:"visualMaxScore"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	MachineResults []MachinePayload `json:"machineResults"`
	VisualResults  []VisualPayload  `json:"visualResults"`
	Photos         []PhotoMeta      `json:"photos"`
}

// MachinePayload is one machine reading as sent upstream.
type MachinePayload struct {
	TestName     string     `json:"testName"`
	Section      string     `json:"section,omitempty"`
	Value        float64    `json:"value"`
	Unit         string     `json:"unit,omitempty"`
	Status       string     `json:"status"`
	MinThreshold *float64   `json:"minThreshold,omitempty"`
	MaxThreshold *float64   `json:"maxThreshold,omitempty"`
	RecordedAt   *time.Time `json:"recordedAt,omitempty"`
}

// VisualPayload is one checklist answer as sent upstream.
type VisualPayload struct {
	ItemName   string     `json:"itemName"`
	Category   string     `json:"category,omitempty"`
	Status     string     `json:"status"`
	Severity   string     `json:"severity,omitempty"`
	DefectNote string     `json:"defectNote,omitempty"`
	PhotoRef   string     `json:"photoRef,omitempty"`
	RecordedAt *time.Time `json:"recordedAt,omitempty"`
}

// PhotoMeta describes a photo without its image data.
type PhotoMeta struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Filename  string     `json:"filename"`
	MIMEType  string     `json:"mimeType"`
	Size      int64      `json:"size"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// BuildPayload flattens an inspection for upload. Photo data stays local.
func BuildPayload(insp *store.Inspection) Payload {
	v := insp.Vehicle
	p := Payload{
		ID:               insp.ID,
		Plate:            v.Plate,
		VIN:              v.VIN,
		Make:             v.Make,
		Model:            v.Model,
		Year:             v.Year,
		Color:            v.Color,
		FuelType:         v.FuelType,
		OwnerName:        v.OwnerName,
		OwnerPhone:       v.OwnerPhone,
		OwnerNationalID:  v.OwnerNationalID,
		CenterID:         insp.CenterID,
		InspectorID:      insp.InspectorID,
		InspectionType:   insp.InspectionType,
		Status:           insp.Status,
		Notes:            insp.Notes,
		Latitude:         insp.Location.Latitude,
		Longitude:        insp.Location.Longitude,
		LocationAccuracy: insp.Location.Accuracy,
		Address:          insp.Location.Address,
		VisualScore:      insp.VisualScore,
		VisualMaxScore:   insp.VisualMaxScore,
		CreatedAt:        insp.CreatedAt,
		UpdatedAt:        optionalTime(insp.UpdatedAt),
		CompletedAt:      optionalTime(insp.CompletedAt),

		MachineResults: make([]MachinePayload, 0, len(insp.MachineResults)),
		VisualResults:  make([]VisualPayload, 0, len(insp.VisualResults)),
		Photos:         make([]PhotoMeta, 0, len(insp.Photos)),
	}

	if insp.Certificate.Number != "" {
		p.CertificateNumber = insp.Certificate.Number
		p.CertificateIssuedAt = optionalTime(insp.Certificate.IssuedAt)
		exp := insp.Certificate.ExpiresAt
		p.CertificateExpiresAt = &exp
	}

	for _, m := range insp.MachineResults {
		p.MachineResults = append(p.MachineResults, MachinePayload{
			TestName:     m.TestName,
			Section:      m.Section,
			Value:        m.Value,
			Unit:         m.Unit,
			Status:       m.Status,
			MinThreshold: m.MinThreshold,
			MaxThreshold: m.MaxThreshold,
			RecordedAt:   optionalTime(m.RecordedAt),
		})
	}
	for _, r := range insp.VisualResults {
		p.VisualResults = append(p.VisualResults, VisualPayload{
			ItemName:   r.ItemName,
			Category:   r.Category,
			Status:     r.Status,
			Severity:   r.Severity,
			DefectNote: r.DefectNote,
			PhotoRef:   r.PhotoRef,
			RecordedAt: optionalTime(r.RecordedAt),
		})
	}
	for _, ph := range insp.Photos {
		p.Photos = append(p.Photos, PhotoMeta{
			ID:        ph.ID,
			Type:      ph.Type,
			Filename:  ph.Filename,
			MIMEType:  ph.MIMEType,
			Size:      ph.Size,
			CreatedAt: optionalTime(ph.CreatedAt),
		})
	}

	return p
}

// optionalTime returns nil for the zero time so it is omitted from JSON.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
