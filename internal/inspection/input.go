package inspection

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/photo"
)

// Input is a saved-inspection payload in one of the shapes the kiosk
// screens have produced over time. Each variant maps itself onto the
// canonical record.
type Input interface {
	normalize(now time.Time, d Defaults) *Draft
}

// PhotoInput names exactly one photo source.
type PhotoInput struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Data     string `json:"data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Source converts the input into a photo source.
func (p PhotoInput) Source() (photo.Source, error) {
	var set []photo.Source
	if p.URL != "" {
		set = append(set, photo.URLSource{URL: p.URL})
	}
	if p.Path != "" {
		set = append(set, photo.FileSource{Path: p.Path})
	}
	if p.Data != "" {
		set = append(set, photo.EncodedSource{DataURL: p.Data})
	}
	switch len(set) {
	case 1:
		return set[0], nil
	case 0:
		return nil, fmt.Errorf("%w: photo has no url, path or data", photo.ErrUnsupportedSource)
	default:
		return nil, fmt.Errorf("%w: photo has more than one of url, path and data", photo.ErrUnsupportedSource)
	}
}

// KioskInput is the shape sent by the current registration, visual and
// machine screens.
type KioskInput struct {
	ID             string         `json:"id,omitempty"`
	Vehicle        KioskVehicle   `json:"vehicle"`
	CenterID       string         `json:"centerId,omitempty"`
	InspectorID    string         `json:"inspectorId,omitempty"`
	InspectionType string         `json:"inspectionType,omitempty"`
	Status         string         `json:"status,omitempty"`
	CreatedAt      *time.Time     `json:"createdAt,omitempty"`
	Location       *LocationInput `json:"location,omitempty"`
	MachineResults []MachineInput `json:"machineResults,omitempty"`
	VisualResults  []VisualInput  `json:"visualResults,omitempty"`
	Photos         []PhotoInput   `json:"photos,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// LocationInput is the geolocation captured at registration.
type LocationInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// KioskVehicle is the vehicle block of KioskInput.
type KioskVehicle struct {
	Plate    string `json:"plate"`
	VIN      string `json:"vin,omitempty"`
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	Year     int    `json:"year,omitempty"`
	Color    string `json:"color,omitempty"`
	FuelType string `json:"fuelType,omitempty"`
	Owner    struct {
		Name       string `json:"name"`
		Phone      string `json:"phone,omitempty"`
		NationalID string `json:"nationalId,omitempty"`
	} `json:"owner"`
}

// MachineInput is one equipment reading.
type MachineInput struct {
	TestName     string   `json:"testName"`
	Section      string   `json:"section,omitempty"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	Status       string   `json:"status,omitempty"`
	MinThreshold *float64 `json:"minThreshold,omitempty"`
	MaxThreshold *float64 `json:"maxThreshold,omitempty"`
}

// VisualInput is one checklist answer.
type VisualInput struct {
	ItemName   string `json:"itemName"`
	Category   string `json:"category,omitempty"`
	Status     string `json:"status"`
	Severity   string `json:"severity,omitempty"`
	DefectNote string `json:"defectNote,omitempty"`
	PhotoRef   string `json:"photoRef,omitempty"`
}

// LegacyInput is the shape written by the first release of the
// registration screen: flat owner fields, plateNumber/chassisNumber naming,
// boolean test outcomes and photos keyed by type.
type LegacyInput struct {
	ID      string `json:"id,omitempty"`
	Vehicle struct {
		PlateNumber   string `json:"plateNumber"`
		ChassisNumber string `json:"chassisNumber,omitempty"`
		Make          string `json:"make,omitempty"`
		Model         string `json:"model,omitempty"`
		Year          int    `json:"year,omitempty"`
		OwnerName     string `json:"ownerName"`
		OwnerPhone    string `json:"ownerPhone,omitempty"`
	} `json:"vehicle"`
	Center       string  `json:"center,omitempty"`
	Status       string  `json:"status,omitempty"`
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	MachineTests []struct {
		Name   string  `json:"name"`
		Value  float64 `json:"value"`
		Unit   string  `json:"unit,omitempty"`
		Passed *bool   `json:"passed,omitempty"`
	} `json:"machineTests,omitempty"`
	VisualChecks []struct {
		Item   string `json:"item"`
		Zone   string `json:"zone,omitempty"`
		Result string `json:"result"`
		Note   string `json:"note,omitempty"`
	} `json:"visualChecks,omitempty"`
	// photo type -> URL or data URL
	Photos map[string]string `json:"photos,omitempty"`
}

// legacyVehicleKeys only ever appear in LegacyInput payloads.
var legacyVehicleKeys = []string{"plateNumber", "chassisNumber", "ownerName", "ownerPhone"}

// DecodeInput decodes a JSON payload into the matching input variant.
// An explicit "format" of "kiosk" or "legacy" wins; otherwise the vehicle
// field names decide.
func DecodeInput(data []byte) (Input, error) {
	var head struct {
		Format  string                     `json:"format"`
		Vehicle map[string]json.RawMessage `json:"vehicle"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding inspection input: %w", err)
	}

	legacy := false
	switch strings.ToLower(head.Format) {
	case "legacy":
		legacy = true
	case "kiosk", "":
		if head.Format == "" {
			for _, k := range legacyVehicleKeys {
				if _, ok := head.Vehicle[k]; ok {
					legacy = true
					break
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown inspection input format %q", head.Format)
	}

	if legacy {
		var in LegacyInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("decoding legacy inspection input: %w", err)
		}
		return &in, nil
	}

	var in KioskInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding inspection input: %w", err)
	}
	return &in, nil
}
