package mutate

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ConcurrentMutationsGetContiguousVersions(t *testing.T) {
	f := newFixture(t)
	const n = 20

	batches := make([]Batch, n)
	for i := range batches {
		batches[i] = Batch{
			Table:     "Counter",
			ID:        counterID,
			Principal: alice,
			Patches:   []Patch{p(t, "c"+strconv.Itoa(i), `{"count": ["`+strconv.Itoa(i+1)+`"]}`)},
		}
	}

	var wg sync.WaitGroup
	versions := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Mutate(context.Background(), batches[i])
			errs[i] = err
			if err == nil {
				versions[i] = res.Version
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	slices.Sort(versions)
	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i)
	}
	assert.Equal(t, want, versions)

	history := historyVersions(t, f, "Counter", counterID)
	slices.Reverse(history)
	assert.Equal(t, want, history)
	assert.Equal(t, 0, f.svc.Pending())
}

func TestService_QueuedCallerCanGiveUp(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Mutate(ctx, customerBatch(alice, p(t, "p1", `{"name": ["", "Acme"]}`)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, hasPatch(t, f, "p1"))
}

func TestService_Prune(t *testing.T) {
	f := newFixture(t)
	mustMutate(t, f, customerBatch(alice, p(t, "p1", `{"name": ["", "Acme"]}`)))

	n, err := f.svc.Prune(context.Background(), DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.True(t, hasPatch(t, f, "p1"))

	f.clock.Advance(8 * 24 * time.Hour)
	n, err = f.svc.Prune(context.Background(), DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, hasPatch(t, f, "p1"))
}

func TestService_RunPruner(t *testing.T) {
	f := newFixture(t)
	mustMutate(t, f, customerBatch(alice, p(t, "p1", `{"name": ["", "Acme"]}`)))
	f.clock.Advance(8 * 24 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.RunPruner(ctx, 10*time.Millisecond, DefaultRetention)
	}()

	require.Eventually(t, func() bool { return !hasPatch(t, f, "p1") }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
