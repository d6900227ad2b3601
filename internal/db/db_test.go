package db

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vms-service/internal/config"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestMigrateSQLite(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(gdb, "sqlite"))
	require.NoError(t, Migrate(gdb, "sqlite"), "migrations are idempotent")

	assert.True(t, gdb.Migrator().HasTable("events"))
	assert.True(t, gdb.Migrator().HasTable("cameras"))
	assert.True(t, gdb.Migrator().HasIndex("events", "ux_events_event_id"))
	assert.True(t, gdb.Migrator().HasIndex("events", "idx_events_visitor_ts"))
}

func TestPostgresStatementsCoverIndexes(t *testing.T) {
	all := strings.Join(migrationStatements, "\n")
	for _, idx := range []string{
		"ux_events_event_id",
		"idx_events_timestamp",
		"idx_events_visitor_ts",
		"idx_events_camera_ts",
		"idx_events_type_ts",
		"ux_cameras_camera_id",
	} {
		assert.Contains(t, all, idx)
	}
}
