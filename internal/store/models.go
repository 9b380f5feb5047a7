package store

import "time"

// Inspection status values
const (
	StatusPending = "Pending"
	StatusPassed  = "Passed"
	StatusFailed  = "Failed"
	StatusDeleted = "Deleted"
)

// Sync status values, shared by inspections and sync queue entries
const (
	SyncPending = "pending"
	SyncSyncing = "syncing"
	SyncSynced  = "synced"
	SyncFailed  = "failed"
)

// Vehicle is the vehicle and owner data embedded in an inspection
type Vehicle struct {
	Plate           string `json:"plate"`
	VIN             string `json:"vin"`
	Make            string `json:"make"`
	Model           string `json:"model"`
	Year            int    `json:"year,omitempty"`
	Color           string `json:"color,omitempty"`
	FuelType        string `json:"fuel_type,omitempty"`
	OwnerName       string `json:"owner_name"`
	OwnerPhone      string `json:"owner_phone,omitempty"`
	OwnerNationalID string `json:"owner_national_id,omitempty"`
}

// Location is where the inspection was recorded
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Certificate is issued when an inspection passes
type Certificate struct {
	Number    string    `json:"number,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Inspection is one vehicle inspection attempt
type Inspection struct {
	ID             string      `json:"id"`
	Vehicle        Vehicle     `json:"vehicle"`
	CenterID       string      `json:"center_id"`
	InspectorID    string      `json:"inspector_id,omitempty"`
	InspectionType string      `json:"inspection_type,omitempty"`
	Status         string      `json:"status"`
	SyncStatus     string      `json:"sync_status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    time.Time   `json:"completed_at"`
	DeletedAt      time.Time   `json:"deleted_at"`
	Location       Location    `json:"location"`
	Certificate    Certificate `json:"certificate"`
	VisualScore    int         `json:"visual_score"`
	VisualMaxScore int         `json:"visual_max_score"`
	Notes          string      `json:"notes,omitempty"`

	MachineResults []MachineResult `json:"machine_results"`
	VisualResults  []VisualResult  `json:"visual_results"`
	Photos         []Photo         `json:"photos"`
}

// MachineResult is one equipment reading belonging to an inspection
type MachineResult struct {
	ID           string    `json:"id"`
	InspectionID string    `json:"inspection_id"`
	TestName     string    `json:"test_name"`
	Section      string    `json:"section"`
	Value        float64   `json:"value"`
	Unit         string    `json:"unit"`
	Status       string    `json:"status"` // "pass", "fail"
	MinThreshold *float64  `json:"min_threshold,omitempty"`
	MaxThreshold *float64  `json:"max_threshold,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// VisualResult is one checklist line item belonging to an inspection
type VisualResult struct {
	ID           string    `json:"id"`
	InspectionID string    `json:"inspection_id"`
	ItemName     string    `json:"item_name"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`   // "pass", "fail", "na"
	Severity     string    `json:"severity"` // "minor", "major", "critical"
	DefectNote   string    `json:"defect_note,omitempty"`
	PhotoRef     string    `json:"photo_ref,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Photo is a normalized image payload belonging to an inspection
type Photo struct {
	ID           string    `json:"id"`
	InspectionID string    `json:"inspection_id"`
	Type         string    `json:"type"` // "registration", "visual", "machine"
	Data         string    `json:"data,omitempty"`
	MIMEType     string    `json:"mime_type"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// SyncQueueEntry shadows an inspection's outbound sync state
type SyncQueueEntry struct {
	InspectionID  string    `json:"inspection_id"`
	Status        string    `json:"status"`
	RetryCount    int       `json:"retry_count"`
	LastError     string    `json:"last_error,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InspectionFilter narrows ListInspections. Zero values match everything.
type InspectionFilter struct {
	Plate          string
	Status         string
	CenterID       string
	From           time.Time
	To             time.Time
	IncludeDeleted bool
}
