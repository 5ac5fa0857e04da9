package testutil

import (
	"path/filepath"
	"testing"

	"github.com/cvperfect/SessionService/internal/database"
)

// NewTestFileStore creates a file-backed store rooted in a fresh temp dir.
// The root directory itself does not exist yet, like a fresh deployment.
func NewTestFileStore(t *testing.T) (*database.FileStore, string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), ".sessions")
	return database.NewFileStore(dir), dir
}

// NewTestSQLiteDB opens a migrated SQLite database in a temp dir.
func NewTestSQLiteDB(t *testing.T) *database.SQLiteDB {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to create test SQLite DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
