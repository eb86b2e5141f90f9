package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTestHistory(t *testing.T, s *Store, entries ...HistoryEntry) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		for _, e := range entries {
			if err := tx.AppendHistory(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func historyEntry(table, id string, version int64, user string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Table:       table,
		RecordID:    id,
		Version:     version,
		Diff:        json.RawMessage(fmt.Sprintf(`{"n":[%d,%d]}`, version, version+1)),
		UserID:      user,
		Form:        "customer-form",
		ChangedTime: at,
		Digest:      "d",
	}
}

func TestHistory_NextVersion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var next int64
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		var err error
		next, err = tx.NextHistoryVersion(ctx, "Customer", "r1")
		return err
	}))
	assert.Equal(t, int64(0), next)

	appendTestHistory(t, s,
		historyEntry("Customer", "r1", 0, "u1", testTime),
		historyEntry("Customer", "r1", 1, "u1", testTime.Add(time.Minute)),
	)

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		var err error
		next, err = tx.NextHistoryVersion(ctx, "Customer", "r1")
		return err
	}))
	assert.Equal(t, int64(2), next)
}

func TestHistory_DuplicateVersionRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appendTestHistory(t, s, historyEntry("Customer", "r1", 0, "u1", testTime))

	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.AppendHistory(ctx, historyEntry("Customer", "r1", 0, "u1", testTime))
	})
	assert.Error(t, err)
}

func TestHistory_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	day1 := testTime
	day2 := testTime.Add(24 * time.Hour)
	appendTestHistory(t, s,
		historyEntry("Customer", "r1", 0, "u1", day1),
		historyEntry("Customer", "r1", 1, "u2", day2),
		historyEntry("Customer", "r2", 0, "u1", day2.Add(time.Hour)),
		historyEntry("Note", "n1", 0, "u2", day1.Add(time.Hour)),
	)

	all, err := s.History(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "r2", all[0].RecordID, "newest first")
	assert.Equal(t, "r1", all[3].RecordID)
	assert.Equal(t, int64(0), all[3].Version)
	assert.JSONEq(t, `{"n":[0,1]}`, string(all[3].Diff))
	assert.Equal(t, "customer-form", all[3].Form)
	assert.True(t, day1.Equal(all[3].ChangedTime))

	byTable, err := s.History(ctx, HistoryFilter{Table: "Note"})
	require.NoError(t, err)
	require.Len(t, byTable, 1)
	assert.Equal(t, "n1", byTable[0].RecordID)

	byRecord, err := s.History(ctx, HistoryFilter{Table: "Customer", RecordID: "r1"})
	require.NoError(t, err)
	assert.Len(t, byRecord, 2)

	byUser, err := s.History(ctx, HistoryFilter{UserID: "u2"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	window, err := s.History(ctx, HistoryFilter{From: day2, Before: day2.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(1), window[0].Version)

	limited, err := s.History(ctx, HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestHistory_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.History(context.Background(), HistoryFilter{Table: "Customer"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
