package mutate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/doc"
	"github.com/dropsheet/patchd/internal/store"
)

// HistoryTable is the pseudo-table whose read capability guards history.
const HistoryTable = "RecordHistory"

// Snapshot is the stored state of a record.
type Snapshot struct {
	Record    doc.Record `json:"record"`
	Version   int64      `json:"recordVersion"`
	Digest    string     `json:"digest"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Read returns the current state of a record.
func (c *Coordinator) Read(ctx context.Context, p authz.Principal, table, id string) (*Snapshot, error) {
	if _, ok := c.schemas.Lookup(table); !ok {
		return nil, newError(CodeUnknownTable, table, id, "no schema for table %q", table)
	}
	if err := c.checker.Verify(p, table, authz.Read); err != nil {
		return nil, denied(Batch{Table: table, ID: id}, err)
	}

	rec, err := c.store.ReadRecord(ctx, table, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newError(CodeNotFound, table, id, "record does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", table, id, err)
	}
	return &Snapshot{
		Record:    rec.Record,
		Version:   rec.Version,
		Digest:    rec.Digest,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// HistoryQuery filters history. Dates are calendar days; ToDate includes
// the whole day.
type HistoryQuery struct {
	Table    string
	RecordID string
	UserID   string
	FromDate time.Time
	ToDate   time.Time
	Limit    int
}

// History returns matching history rows, newest first.
func (c *Coordinator) History(ctx context.Context, p authz.Principal, q HistoryQuery) ([]store.HistoryEntry, error) {
	if err := c.checker.Verify(p, HistoryTable, authz.Read); err != nil {
		return nil, denied(Batch{Table: HistoryTable}, err)
	}

	f := store.HistoryFilter{
		Table:    q.Table,
		RecordID: q.RecordID,
		UserID:   q.UserID,
		Limit:    q.Limit,
	}
	if !q.FromDate.IsZero() {
		f.From = startOfDay(q.FromDate)
	}
	if !q.ToDate.IsZero() {
		f.Before = startOfDay(q.ToDate).AddDate(0, 0, 1)
	}

	entries, err := c.store.History(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
