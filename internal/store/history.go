package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultHistoryLimit caps history queries that do not set a limit.
const DefaultHistoryLimit = 200

// HistoryEntry is one committed version of a record.
type HistoryEntry struct {
	Seq         int64           `json:"seq"`
	Table       string          `json:"tableName"`
	RecordID    string          `json:"recordId"`
	Version     int64           `json:"version"`
	Diff        json.RawMessage `json:"diff"`
	UserID      string          `json:"userId"`
	Form        string          `json:"form"`
	ChangedTime time.Time       `json:"changedTime"`
	Digest      string          `json:"digest"`
}

// AppendHistory writes a version row. The (table, record, version) triple
// is unique; a duplicate is an error.
func (t *Tx) AppendHistory(ctx context.Context, e HistoryEntry) error {
	diff := string(e.Diff)
	if diff == "" {
		diff = "null"
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO record_history
		(table_name, record_id, version, diff, user_id, form, changed_time, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Table, e.RecordID, e.Version, diff, e.UserID, e.Form, formatTime(e.ChangedTime), e.Digest)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// NextHistoryVersion returns one past the highest recorded version of a
// record, or 0 when it has no history.
func (t *Tx) NextHistoryVersion(ctx context.Context, table, id string) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT coalesce(max(version) + 1, 0)
		FROM record_history
		WHERE table_name = ? AND record_id = ?
	`, table, id).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next history version: %w", err)
	}
	return next, nil
}

// HistoryFilter selects history rows. Zero fields do not filter.
type HistoryFilter struct {
	Table    string
	RecordID string
	UserID   string

	// From is inclusive, Before is exclusive.
	From   time.Time
	Before time.Time

	Limit int
}

// History returns matching rows, newest first.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Table != "" {
		conds = append(conds, "table_name = ?")
		args = append(args, f.Table)
	}
	if f.RecordID != "" {
		conds = append(conds, "record_id = ?")
		args = append(args, f.RecordID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "changed_time >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.Before.IsZero() {
		conds = append(conds, "changed_time < ?")
		args = append(args, formatTime(f.Before))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT seq, table_name, record_id, version, diff, user_id, form, changed_time, digest
		FROM record_history`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY changed_time DESC, seq DESC\n\t\tLIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e       HistoryEntry
			diff    string
			changed string
		)
		if err := rows.Scan(&e.Seq, &e.Table, &e.RecordID, &e.Version, &diff, &e.UserID, &e.Form, &changed, &e.Digest); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Diff = json.RawMessage(diff)
		if e.ChangedTime, err = parseTime(changed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
