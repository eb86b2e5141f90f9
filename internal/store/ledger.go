package store

import (
	"context"
	"fmt"
	"time"
)

// RecordPatch marks a patch id as applied. It returns true iff this call
// inserted the id, i.e. the patch has not been seen inside the retention
// window. The insert belongs to the surrounding transaction and rolls back
// with it.
func (t *Tx) RecordPatch(ctx context.Context, patchID string, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO applied_patches (patch_id, applied_at)
		VALUES (?, ?)
		ON CONFLICT(patch_id) DO NOTHING
	`, patchID, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("record patch: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record patch: rows affected: %w", err)
	}
	return n == 1, nil
}

// HasPatch reports whether a patch id is in the ledger.
func (s *Store) HasPatch(ctx context.Context, patchID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applied_patches WHERE patch_id = ?
	`, patchID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has patch: %w", err)
	}
	return n > 0, nil
}

// PrunePatches deletes ledger entries applied before olderThan and
// returns how many were removed.
func (s *Store) PrunePatches(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM applied_patches WHERE applied_at < ?
	`, formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune patches: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune patches: rows affected: %w", err)
	}
	return n, nil
}
