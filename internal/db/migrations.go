package db

import (
	"fmt"

	"gorm.io/gorm"

	"vms-service/internal/repository"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id              BIGSERIAL PRIMARY KEY,
		event_id        TEXT NOT NULL,
		visitor_id      TEXT NOT NULL,
		name            TEXT,
		camera_id       TEXT NOT NULL,
		location        TEXT,
		zone_type       TEXT,
		event_type      TEXT NOT NULL,
		confidence      NUMERIC(6,4),
		extra           JSONB,
		timestamp       TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_events_event_id ON events(event_id);`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_events_visitor_ts ON events(visitor_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_events_camera_ts ON events(camera_id, timestamp);`,
	`CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, timestamp);`,
	`CREATE TABLE IF NOT EXISTS cameras (
		id              BIGSERIAL PRIMARY KEY,
		camera_id       TEXT NOT NULL,
		source          TEXT NOT NULL,
		location        TEXT,
		zone_type       TEXT NOT NULL DEFAULT 'general',
		target_fps      DOUBLE PRECISION NOT NULL,
		boundary        JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cameras_camera_id ON cameras(camera_id);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// autoMigrate is used for SQLite, which does not understand the Postgres DDL.
func autoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&repository.EventRecord{}, &repository.CameraRecord{}); err != nil {
		return fmt.Errorf("auto migration failed: %w", err)
	}
	return nil
}
