package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dropsheet/patchd/internal/doc"
)

var testTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord creates a stored record with minimal required fields.
func testRecord(table, id string, version int64) StoredRecord {
	rec := doc.Record{"id": id, "name": "Acme"}.WithVersion(version)
	return StoredRecord{
		Table:     table,
		ID:        id,
		Version:   version,
		Record:    rec,
		Digest:    "test-digest",
		UpdatedAt: testTime,
	}
}
