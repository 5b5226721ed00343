// Package testing provides database helpers shared by the engine's tests.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/portfolio-engine/internal/database"
)

// NewTestDB opens a migrated database in a temporary directory using the cgo
// driver. Supported names are the schemas under internal/database/schemas;
// unknown names yield an empty database. The database is closed on cleanup.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Driver:  database.DriverMattn,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}
	return db
}
