package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnavailable is returned when the database cannot be opened or migrated.
	ErrUnavailable = errors.New("record store unavailable")
	// ErrNotFound is returned when an inspection ID is unknown.
	ErrNotFound = errors.New("not found")
)

// Store provides SQLite-backed persistence for inspections and their sync queue
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrUnavailable, err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to run migrations: %v", ErrUnavailable, err)
	}

	logger.Info("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// Inspection Operations
// ============================================================================

const inspectionColumns = `
	id, plate, vin, make, model, year, color, fuel_type,
	owner_name, owner_phone, owner_national_id,
	center_id, inspector_id, inspection_type, status, sync_status,
	created_at, updated_at, completed_at, deleted_at,
	latitude, longitude, location_accuracy, location_address,
	certificate_number, certificate_issued_at, certificate_expires_at,
	visual_score, visual_max_score, notes
`

func scanInspection(scan func(dest ...any) error) (*Inspection, error) {
	insp := &Inspection{}
	v := &insp.Vehicle
	err := scan(
		&insp.ID, &v.Plate, &v.VIN, &v.Make, &v.Model, &v.Year, &v.Color, &v.FuelType,
		&v.OwnerName, &v.OwnerPhone, &v.OwnerNationalID,
		&insp.CenterID, &insp.InspectorID, &insp.InspectionType, &insp.Status, &insp.SyncStatus,
		&insp.CreatedAt, &insp.UpdatedAt, &insp.CompletedAt, &insp.DeletedAt,
		&insp.Location.Latitude, &insp.Location.Longitude, &insp.Location.Accuracy, &insp.Location.Address,
		&insp.Certificate.Number, &insp.Certificate.IssuedAt, &insp.Certificate.ExpiresAt,
		&insp.VisualScore, &insp.VisualMaxScore, &insp.Notes,
	)
	if err != nil {
		return nil, err
	}
	return insp, nil
}

// SaveInspection writes an inspection, all of its sub-records and a pending
// sync queue entry in a single transaction. An existing inspection with the
// same ID is replaced together with all of its sub-records.
func (s *Store) SaveInspection(insp *Inspection) error {
	if insp.ID == "" {
		return fmt.Errorf("inspection id is required")
	}

	now := s.now()
	if insp.CreatedAt.IsZero() {
		insp.CreatedAt = now
	}
	insp.UpdatedAt = now
	insp.SyncStatus = SyncPending

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO inspections (` + inspectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	v := insp.Vehicle
	_, err = tx.Exec(
		query,
		insp.ID, v.Plate, v.VIN, v.Make, v.Model, v.Year, v.Color, v.FuelType,
		v.OwnerName, v.OwnerPhone, v.OwnerNationalID,
		insp.CenterID, insp.InspectorID, insp.InspectionType, insp.Status, insp.SyncStatus,
		insp.CreatedAt, insp.UpdatedAt, insp.CompletedAt, insp.DeletedAt,
		insp.Location.Latitude, insp.Location.Longitude, insp.Location.Accuracy, insp.Location.Address,
		insp.Certificate.Number, insp.Certificate.IssuedAt, insp.Certificate.ExpiresAt,
		insp.VisualScore, insp.VisualMaxScore, insp.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert inspection: %w", err)
	}

	for _, table := range []string{"machine_results", "visual_results", "photos"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE inspection_id = ?", insp.ID); err != nil {
			return fmt.Errorf("failed to clear previous %s: %w", table, err)
		}
	}

	for i := range insp.MachineResults {
		mr := &insp.MachineResults[i]
		mr.InspectionID = insp.ID
		if mr.RecordedAt.IsZero() {
			mr.RecordedAt = now
		}
		if err := insertMachineResult(tx, mr); err != nil {
			return err
		}
	}

	for i := range insp.VisualResults {
		vr := &insp.VisualResults[i]
		vr.InspectionID = insp.ID
		if vr.RecordedAt.IsZero() {
			vr.RecordedAt = now
		}
		if err := insertVisualResult(tx, vr); err != nil {
			return err
		}
	}

	for i := range insp.Photos {
		p := &insp.Photos[i]
		p.InspectionID = insp.ID
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if err := insertPhoto(tx, p); err != nil {
			return err
		}
	}

	if err := requeue(tx, insp.ID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit inspection: %w", err)
	}

	s.logger.Debug("inspection saved", "id", insp.ID, "plate", v.Plate,
		"machine_results", len(insp.MachineResults), "visual_results", len(insp.VisualResults),
		"photos", len(insp.Photos))
	return nil
}

// GetInspection retrieves an inspection joined with its sub-records
func (s *Store) GetInspection(id string) (*Inspection, error) {
	return loadInspection(s.db, id)
}

func loadInspection(q queryer, id string) (*Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE id = ?`

	insp, err := scanInspection(q.QueryRow(query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("inspection %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query inspection: %w", err)
	}

	if insp.MachineResults, err = listMachineResults(q, id); err != nil {
		return nil, err
	}
	if insp.VisualResults, err = listVisualResults(q, id); err != nil {
		return nil, err
	}
	if insp.Photos, err = listPhotos(q, id); err != nil {
		return nil, err
	}

	return insp, nil
}

// allInspections scans the whole inspections table, newest first.
// Sub-records are not joined.
func (s *Store) allInspections() ([]Inspection, error) {
	query := `SELECT ` + inspectionColumns + ` FROM inspections ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query inspections: %w", err)
	}
	defer rows.Close()

	var inspections []Inspection
	for rows.Next() {
		insp, err := scanInspection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		inspections = append(inspections, *insp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspections: %w", err)
	}

	return inspections, nil
}

// ListInspections returns inspections matching the filter, newest first.
// It performs a full scan and matches predicates in memory.
func (s *Store) ListInspections(f InspectionFilter) ([]Inspection, error) {
	all, err := s.allInspections()
	if err != nil {
		return nil, err
	}

	plate := strings.ToUpper(strings.TrimSpace(f.Plate))
	var matched []Inspection
	for _, insp := range all {
		if insp.Status == StatusDeleted && !f.IncludeDeleted && f.Status != StatusDeleted {
			continue
		}
		if plate != "" && !strings.Contains(strings.ToUpper(insp.Vehicle.Plate), plate) {
			continue
		}
		if f.Status != "" && !strings.EqualFold(insp.Status, f.Status) {
			continue
		}
		if f.CenterID != "" && insp.CenterID != f.CenterID {
			continue
		}
		if !f.From.IsZero() && insp.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && insp.CreatedAt.After(f.To) {
			continue
		}
		matched = append(matched, insp)
	}

	return matched, nil
}

// SearchInspections performs a free-text search. A query containing a digit
// matches plate or VIN substrings only; any other query matches owner names.
func (s *Store) SearchInspections(query string) ([]Inspection, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	all, err := s.allInspections()
	if err != nil {
		return nil, err
	}

	numeric := strings.IndexFunc(q, unicode.IsDigit) >= 0
	var matched []Inspection
	for _, insp := range all {
		if insp.Status == StatusDeleted {
			continue
		}
		if numeric {
			if strings.Contains(strings.ToUpper(insp.Vehicle.Plate), q) ||
				strings.Contains(strings.ToUpper(insp.Vehicle.VIN), q) {
				matched = append(matched, insp)
			}
			continue
		}
		if strings.Contains(strings.ToUpper(insp.Vehicle.OwnerName), q) {
			matched = append(matched, insp)
		}
	}

	return matched, nil
}

// SoftDeleteInspection marks an inspection deleted. Sub-records are kept.
func (s *Store) SoftDeleteInspection(id string) error {
	const query = `
		UPDATE inspections SET status = ?, deleted_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := s.now()
	result, err := s.db.Exec(query, StatusDeleted, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete inspection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("inspection %s: %w", id, ErrNotFound)
	}

	return nil
}

// FinalizeInspection records the inspection outcome and certificate and
// queues the inspection for sync again, in one transaction.
func (s *Store) FinalizeInspection(id, status string, cert Certificate, visualScore, visualMax int) error {
	const query = `
		UPDATE inspections SET
			status = ?, sync_status = ?, completed_at = ?, updated_at = ?,
			certificate_number = ?, certificate_issued_at = ?, certificate_expires_at = ?,
			visual_score = ?, visual_max_score = ?
		WHERE id = ? AND status != ?
	`

	now := s.now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		query,
		status, SyncPending, now, now,
		cert.Number, cert.IssuedAt, cert.ExpiresAt,
		visualScore, visualMax,
		id, StatusDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize inspection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("inspection %s: %w", id, ErrNotFound)
	}

	if err := requeue(tx, id, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalize: %w", err)
	}

	return nil
}

// ============================================================================
// Sub-record Operations
// ============================================================================

func insertMachineResult(q queryer, mr *MachineResult) error {
	const query = `
		INSERT OR REPLACE INTO machine_results (
			id, inspection_id, test_name, section, value, unit, status,
			min_threshold, max_threshold, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(
		query,
		mr.ID, mr.InspectionID, mr.TestName, mr.Section, mr.Value, mr.Unit, mr.Status,
		mr.MinThreshold, mr.MaxThreshold, mr.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert machine result: %w", err)
	}
	return nil
}

func insertVisualResult(q queryer, vr *VisualResult) error {
	const query = `
		INSERT OR REPLACE INTO visual_results (
			id, inspection_id, item_name, category, status, severity,
			defect_note, photo_ref, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(
		query,
		vr.ID, vr.InspectionID, vr.ItemName, vr.Category, vr.Status, vr.Severity,
		vr.DefectNote, vr.PhotoRef, vr.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visual result: %w", err)
	}
	return nil
}

func insertPhoto(q queryer, p *Photo) error {
	const query = `
		INSERT OR REPLACE INTO photos (
			id, inspection_id, type, data, mime_type, filename, size, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.Exec(
		query,
		p.ID, p.InspectionID, p.Type, p.Data, p.MIMEType, p.Filename, p.Size, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

func listMachineResults(q queryer, inspectionID string) ([]MachineResult, error) {
	const query = `
		SELECT id, inspection_id, test_name, section, value, unit, status,
		       min_threshold, max_threshold, recorded_at
		FROM machine_results WHERE inspection_id = ? ORDER BY recorded_at, id
	`

	rows, err := q.Query(query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query machine results: %w", err)
	}
	defer rows.Close()

	var results []MachineResult
	for rows.Next() {
		mr := MachineResult{}
		err := rows.Scan(
			&mr.ID, &mr.InspectionID, &mr.TestName, &mr.Section, &mr.Value, &mr.Unit,
			&mr.Status, &mr.MinThreshold, &mr.MaxThreshold, &mr.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan machine result: %w", err)
		}
		results = append(results, mr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating machine results: %w", err)
	}

	return results, nil
}

func listVisualResults(q queryer, inspectionID string) ([]VisualResult, error) {
	const query = `
		SELECT id, inspection_id, item_name, category, status, severity,
		       defect_note, photo_ref, recorded_at
		FROM visual_results WHERE inspection_id = ? ORDER BY recorded_at, id
	`

	rows, err := q.Query(query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query visual results: %w", err)
	}
	defer rows.Close()

	var results []VisualResult
	for rows.Next() {
		vr := VisualResult{}
		err := rows.Scan(
			&vr.ID, &vr.InspectionID, &vr.ItemName, &vr.Category, &vr.Status,
			&vr.Severity, &vr.DefectNote, &vr.PhotoRef, &vr.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visual result: %w", err)
		}
		results = append(results, vr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating visual results: %w", err)
	}

	return results, nil
}

func listPhotos(q queryer, inspectionID string) ([]Photo, error) {
	const query = `
		SELECT id, inspection_id, type, data, mime_type, filename, size, created_at
		FROM photos WHERE inspection_id = ? ORDER BY created_at, id
	`

	rows, err := q.Query(query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p := Photo{}
		err := rows.Scan(
			&p.ID, &p.InspectionID, &p.Type, &p.Data, &p.MIMEType,
			&p.Filename, &p.Size, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

// ============================================================================
// Sync Queue Operations
// ============================================================================

// requeue marks the queue entry for an inspection pending, creating it if needed
func requeue(q queryer, inspectionID string, now time.Time) error {
	const updateQuery = `
		UPDATE sync_queue SET status = ?, last_error = '', updated_at = ?
		WHERE inspection_id = ?
	`

	result, err := q.Exec(updateQuery, SyncPending, now, inspectionID)
	if err != nil {
		return fmt.Errorf("failed to update sync queue entry: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		return nil
	}

	const insertQuery = `
		INSERT INTO sync_queue (
			inspection_id, status, retry_count, last_error, last_attempt_at, created_at, updated_at
		) VALUES (?, ?, 0, '', ?, ?, ?)
	`

	if _, err := q.Exec(insertQuery, inspectionID, SyncPending, time.Time{}, now, now); err != nil {
		return fmt.Errorf("failed to insert sync queue entry: %w", err)
	}
	return nil
}

// UpdateSyncStatus sets the sync status of an inspection and its queue entry
// in one transaction. A failed status increments the retry count and records
// errMsg; a synced status clears the last error.
func (s *Store) UpdateSyncStatus(id, status, errMsg string) error {
	switch status {
	case SyncPending, SyncSyncing, SyncSynced, SyncFailed:
	default:
		return fmt.Errorf("invalid sync status: %q", status)
	}

	now := s.now()

	// nil keeps the stored column value
	var lastError any
	var lastAttempt any
	retryIncrement := 0
	switch status {
	case SyncFailed:
		lastError = errMsg
		retryIncrement = 1
	case SyncSynced, SyncPending:
		lastError = ""
	case SyncSyncing:
		lastAttempt = now
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"UPDATE inspections SET sync_status = ?, updated_at = ? WHERE id = ?",
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update inspection sync status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("inspection %s: %w", id, ErrNotFound)
	}

	const updateQuery = `
		UPDATE sync_queue SET
			status = ?,
			retry_count = retry_count + ?,
			last_error = COALESCE(?, last_error),
			last_attempt_at = COALESCE(?, last_attempt_at),
			updated_at = ?
		WHERE inspection_id = ?
	`

	result, err = tx.Exec(updateQuery, status, retryIncrement, lastError, lastAttempt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update sync queue entry: %w", err)
	}

	rowsAffected, _ = result.RowsAffected()
	if rowsAffected == 0 {
		const insertQuery = `
			INSERT INTO sync_queue (
				inspection_id, status, retry_count, last_error, last_attempt_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		attempt := time.Time{}
		if status == SyncSyncing {
			attempt = now
		}
		errText := ""
		if status == SyncFailed {
			errText = errMsg
		}
		if _, err := tx.Exec(insertQuery, id, status, retryIncrement, errText, attempt, now, now); err != nil {
			return fmt.Errorf("failed to insert sync queue entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync status: %w", err)
	}

	return nil
}

// GetSyncQueueEntry retrieves the queue entry for an inspection
func (s *Store) GetSyncQueueEntry(inspectionID string) (*SyncQueueEntry, error) {
	const query = `
		SELECT inspection_id, status, retry_count, last_error, last_attempt_at, created_at, updated_at
		FROM sync_queue WHERE inspection_id = ?
	`

	e := &SyncQueueEntry{}
	err := s.db.QueryRow(query, inspectionID).Scan(
		&e.InspectionID, &e.Status, &e.RetryCount, &e.LastError,
		&e.LastAttemptAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sync queue entry %s: %w", inspectionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query sync queue entry: %w", err)
	}

	return e, nil
}

// ListSyncQueue retrieves queue entries, optionally filtered by status
func (s *Store) ListSyncQueue(status string) ([]SyncQueueEntry, error) {
	query := `
		SELECT inspection_id, status, retry_count, last_error, last_attempt_at, created_at, updated_at
		FROM sync_queue
	`
	var args []any

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at, inspection_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	var entries []SyncQueueEntry
	for rows.Next() {
		e := SyncQueueEntry{}
		err := rows.Scan(
			&e.InspectionID, &e.Status, &e.RetryCount, &e.LastError,
			&e.LastAttemptAt, &e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync queue entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}

	return entries, nil
}

// SyncQueueCounts returns the number of queue entries per status
func (s *Store) SyncQueueCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count sync queue: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		SyncPending: 0,
		SyncSyncing: 0,
		SyncSynced:  0,
		SyncFailed:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan sync queue count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// ListPendingSync returns full inspections whose queue entry is pending
func (s *Store) ListPendingSync() ([]Inspection, error) {
	const query = `
		SELECT q.inspection_id FROM sync_queue q
		JOIN inspections i ON i.id = q.inspection_id
		WHERE q.status = ?
		ORDER BY q.created_at, q.inspection_id
	`
	return s.loadQueued(query, SyncPending)
}

// ListSyncCandidates returns full inspections that a sync pass should send:
// every pending entry plus failed entries that have been retried fewer than
// maxRetries times. maxRetries <= 0 selects pending entries only.
func (s *Store) ListSyncCandidates(maxRetries int) ([]Inspection, error) {
	if maxRetries <= 0 {
		return s.ListPendingSync()
	}

	const query = `
		SELECT q.inspection_id FROM sync_queue q
		JOIN inspections i ON i.id = q.inspection_id
		WHERE q.status = ? OR (q.status = ? AND q.retry_count < ?)
		ORDER BY q.created_at, q.inspection_id
	`
	return s.loadQueued(query, SyncPending, SyncFailed, maxRetries)
}

func (s *Store) loadQueued(query string, args ...any) ([]Inspection, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sync queue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	rows.Close()

	inspections := make([]Inspection, 0, len(ids))
	for _, id := range ids {
		insp, err := loadInspection(s.db, id)
		if err != nil {
			return nil, err
		}
		inspections = append(inspections, *insp)
	}

	return inspections, nil
}

// RequeueFailed moves every failed queue entry back to pending
func (s *Store) RequeueFailed() (int, error) {
	return s.moveQueueStatus(SyncFailed, SyncPending)
}

// RecoverInterrupted moves entries left in syncing by an interrupted process
// back to pending
func (s *Store) RecoverInterrupted() (int, error) {
	return s.moveQueueStatus(SyncSyncing, SyncPending)
}

func (s *Store) moveQueueStatus(from, to string) (int, error) {
	now := s.now()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const inspectionsQuery = `
		UPDATE inspections SET sync_status = ?, updated_at = ?
		WHERE id IN (SELECT inspection_id FROM sync_queue WHERE status = ?)
	`
	if _, err := tx.Exec(inspectionsQuery, to, now, from); err != nil {
		return 0, fmt.Errorf("failed to update inspection sync status: %w", err)
	}

	result, err := tx.Exec(
		"UPDATE sync_queue SET status = ?, updated_at = ? WHERE status = ?",
		to, now, from,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update sync queue: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sync queue update: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("sync queue entries moved", "from", from, "to", to, "count", rowsAffected)
	}
	return int(rowsAffected), nil
}

// CountInspections returns the number of inspections per status
func (s *Store) CountInspections() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM inspections GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count inspections: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan inspection count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

// StatusNames returns the keys of a count map in stable order
func StatusNames(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
