package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("current schema version", "version", currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE inspections (
					id TEXT PRIMARY KEY,
					plate TEXT NOT NULL DEFAULT '',
					vin TEXT NOT NULL DEFAULT '',
					make TEXT NOT NULL DEFAULT '',
					model TEXT NOT NULL DEFAULT '',
					year INTEGER NOT NULL DEFAULT 0,
					color TEXT NOT NULL DEFAULT '',
					fuel_type TEXT NOT NULL DEFAULT '',
					owner_name TEXT NOT NULL DEFAULT '',
					owner_phone TEXT NOT NULL DEFAULT '',
					owner_national_id TEXT NOT NULL DEFAULT '',
					center_id TEXT NOT NULL DEFAULT '',
					inspector_id TEXT NOT NULL DEFAULT '',
					inspection_type TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'Pending',
					sync_status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					completed_at DATETIME NOT NULL,
					deleted_at DATETIME NOT NULL,
					latitude REAL NOT NULL DEFAULT 0,
					longitude REAL NOT NULL DEFAULT 0,
					location_accuracy REAL NOT NULL DEFAULT 0,
					location_address TEXT NOT NULL DEFAULT '',
					certificate_number TEXT NOT NULL DEFAULT '',
					certificate_issued_at DATETIME NOT NULL,
					certificate_expires_at DATETIME NOT NULL,
					visual_score INTEGER NOT NULL DEFAULT 0,
					visual_max_score INTEGER NOT NULL DEFAULT 0,
					notes TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX idx_inspections_plate ON inspections(plate);
				CREATE INDEX idx_inspections_vin ON inspections(vin);
				CREATE INDEX idx_inspections_status ON inspections(status);
				CREATE INDEX idx_inspections_created_at ON inspections(created_at);
				CREATE INDEX idx_inspections_center ON inspections(center_id);
				CREATE INDEX idx_inspections_sync_status ON inspections(sync_status);

				CREATE TABLE machine_results (
					id TEXT PRIMARY KEY,
					inspection_id TEXT NOT NULL,
					test_name TEXT NOT NULL,
					section TEXT NOT NULL DEFAULT '',
					value REAL NOT NULL DEFAULT 0,
					unit TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT '',
					min_threshold REAL,
					max_threshold REAL,
					recorded_at DATETIME NOT NULL
				);

				CREATE INDEX idx_machine_results_inspection ON machine_results(inspection_id);

				CREATE TABLE visual_results (
					id TEXT PRIMARY KEY,
					inspection_id TEXT NOT NULL,
					item_name TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT '',
					severity TEXT NOT NULL DEFAULT '',
					defect_note TEXT NOT NULL DEFAULT '',
					photo_ref TEXT NOT NULL DEFAULT '',
					recorded_at DATETIME NOT NULL
				);

				CREATE INDEX idx_visual_results_inspection ON visual_results(inspection_id);

				CREATE TABLE photos (
					id TEXT PRIMARY KEY,
					inspection_id TEXT NOT NULL,
					type TEXT NOT NULL DEFAULT '',
					data TEXT NOT NULL DEFAULT '',
					mime_type TEXT NOT NULL DEFAULT '',
					filename TEXT NOT NULL DEFAULT '',
					size INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX idx_photos_inspection ON photos(inspection_id);

				CREATE TABLE sync_queue (
					inspection_id TEXT PRIMARY KEY,
					status TEXT NOT NULL DEFAULT 'pending',
					retry_count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					last_attempt_at DATETIME NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX idx_sync_queue_status ON sync_queue(status);
			`,
		},
	}

	for _, mig := range migrations {
		if mig.version > currentVersion {
			s.logger.Info("running migration", "version", mig.version)

			if err := s.runMigration(mig.version, mig.sql); err != nil {
				return fmt.Errorf("failed to run migration %d: %w", mig.version, err)
			}

			s.logger.Info("migration completed", "version", mig.version)
		}
	}

	return nil
}

// runMigration executes a migration and records it
func (s *Store) runMigration(version int, sql string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	insertSQL := "INSERT INTO migrations (version) VALUES (?)"
	if _, err := tx.Exec(insertSQL, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	return nil
}
