package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordPatch(t *testing.T, s *Store, id string, at time.Time) bool {
	t.Helper()
	ctx := context.Background()
	var inserted bool
	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		var err error
		inserted, err = tx.RecordPatch(ctx, id, at)
		return err
	}))
	return inserted
}

func TestLedger_RecordPatchOnce(t *testing.T) {
	s := createTestStore(t)

	assert.True(t, recordPatch(t, s, "p1", testTime))
	assert.False(t, recordPatch(t, s, "p1", testTime.Add(time.Second)))
	assert.True(t, recordPatch(t, s, "p2", testTime))

	ok, err := s.HasPatch(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasPatch(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_SameIDTwiceInOneTx(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx *Tx) error {
		first, err := tx.RecordPatch(ctx, "p1", testTime)
		require.NoError(t, err)
		second, err := tx.RecordPatch(ctx, "p1", testTime)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
		return nil
	}))
}

func TestLedger_ConcurrentInsertsHaveOneWinner(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(tx *Tx) error {
				inserted, err := tx.RecordPatch(ctx, "shared", testTime)
				if err != nil {
					return err
				}
				if inserted {
					mu.Lock()
					winners++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestLedger_Prune(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		recordPatch(t, s, fmt.Sprintf("p%d", i), testTime.Add(time.Duration(i)*24*time.Hour))
	}

	removed, err := s.PrunePatches(ctx, testTime.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for i, want := range []bool{false, false, true, true, true} {
		ok, err := s.HasPatch(ctx, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		assert.Equal(t, want, ok, "p%d", i)
	}

	// A pruned id is accepted again.
	assert.True(t, recordPatch(t, s, "p0", testTime.Add(10*24*time.Hour)))
}
