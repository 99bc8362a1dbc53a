package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/teranos/shopper/db"
)

// CreateTestDB creates a migrated SQLite database in the test's temp dir.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "shopper.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}

// CountUsageRows returns how many ai_model_usage rows exist
func CountUsageRows(t *testing.T, conn *sql.DB) int {
	t.Helper()

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM ai_model_usage").Scan(&n); err != nil {
		t.Fatalf("Failed to count usage rows: %v", err)
	}
	return n
}
