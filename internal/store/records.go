package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropsheet/patchd/internal/doc"
)

// ErrConflict is returned when a write finds the row in a different state
// than expected: an insert over an existing record or an update from a
// stale version.
var ErrConflict = errors.New("store: record write conflict")

// StoredRecord is the current state of one record.
type StoredRecord struct {
	Table     string
	ID        string
	Version   int64
	Record    doc.Record
	Digest    string
	UpdatedAt time.Time
}

// ReadRecord returns the current state of a record.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadRecord(ctx context.Context, table, id string) (StoredRecord, error) {
	return readRecord(ctx, s.db, table, id)
}

// ReadRecord reads a record inside the transaction.
func (t *Tx) ReadRecord(ctx context.Context, table, id string) (StoredRecord, error) {
	return readRecord(ctx, t.tx, table, id)
}

func readRecord(ctx context.Context, q queryer, table, id string) (StoredRecord, error) {
	rec := StoredRecord{Table: table, ID: id}
	var data, updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT version, data, digest, updated_at
		FROM records
		WHERE table_name = ? AND id = ?
	`, table, id).Scan(&rec.Version, &data, &rec.Digest, &updatedAt)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("read record %s/%s: %w", table, id, err)
	}

	if rec.Record, err = unmarshalRecord(data); err != nil {
		return StoredRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return StoredRecord{}, err
	}
	return rec, nil
}

// InsertRecord stores a new record. It returns ErrConflict if the record
// already exists.
func (t *Tx) InsertRecord(ctx context.Context, rec StoredRecord) error {
	data, err := marshalRecord(rec.Record)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO records (table_name, id, version, data, digest, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, id) DO NOTHING
	`, rec.Table, rec.ID, rec.Version, data, rec.Digest, formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return expectOneRow(result, "insert record")
}

// UpdateRecord replaces a record whose stored version is prevVersion. It
// returns ErrConflict if the stored version differs.
func (t *Tx) UpdateRecord(ctx context.Context, rec StoredRecord, prevVersion int64) error {
	data, err := marshalRecord(rec.Record)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE records
		SET version = ?, data = ?, digest = ?, updated_at = ?
		WHERE table_name = ? AND id = ? AND version = ?
	`, rec.Version, data, rec.Digest, formatTime(rec.UpdatedAt), rec.Table, rec.ID, prevVersion)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return expectOneRow(result, "update record")
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(result rowsAffecter, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return nil
}
