// Package database provides database connectivity and management for the publication discovery service.
package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrator_Validation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database is required")
	})

	t.Run("nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{pool: nil}, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "database pool not initialized")
	})

	t.Run("empty migrations path", func(t *testing.T) {
		db := setupTestDB(t)
		if db == nil {
			t.Skip("Skipping: cannot connect to database")
		}
		defer db.Close()

		migrator, err := NewMigrator(db, "", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path is required")
	})

	t.Run("nonexistent migrations path", func(t *testing.T) {
		if testing.Short() {
			t.Skip("Skipping integration test in short mode")
		}

		db := setupTestDB(t)
		if db == nil {
			t.Skip("Skipping: cannot connect to database")
		}
		defer db.Close()

		migrator, err := NewMigrator(db, "/nonexistent/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "migrations path validation failed")
	})
}

// setupTestMigrator connects to the local test database and builds a
// migrator over the repo's migrations directory, skipping when either
// is unavailable.
func setupTestMigrator(t *testing.T) *Migrator {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := setupTestDB(t)
	if db == nil {
		t.Skip("Skipping: cannot connect to database")
	}
	t.Cleanup(db.Close)

	migrator, err := NewMigrator(db, migrationsDir(t), zerolog.Nop())
	require.NoError(t, err)
	return migrator
}

func TestMigrator_UpAndVersion(t *testing.T) {
	migrator := setupTestMigrator(t)
	defer migrator.Close()

	require.NoError(t, migrator.Up())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Greater(t, version, uint(0))

	// A second Up against a current schema is a no-op, not an error.
	require.NoError(t, migrator.Up())
}

func TestMigrator_StepsPastEnd(t *testing.T) {
	migrator := setupTestMigrator(t)
	defer migrator.Close()

	require.NoError(t, migrator.Up())

	// Stepping forward with the schema current must not fail.
	assert.NoError(t, migrator.Steps(1))
}

func TestMigrator_Force(t *testing.T) {
	migrator := setupTestMigrator(t)
	defer migrator.Close()

	require.NoError(t, migrator.Up())

	version, _, err := migrator.Version()
	require.NoError(t, err)

	assert.NoError(t, migrator.Force(int(version)))
}

func TestMigrator_Close(t *testing.T) {
	migrator := setupTestMigrator(t)
	assert.NoError(t, migrator.Close())
}

func migrationsDir(t *testing.T) string {
	t.Helper()

	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := filepath.Join(cwd, "..", "..", "migrations")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skipf("Skipping test: migrations directory not found at %s", dir)
	}
	return dir
}
