package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtStart(t *testing.T) {
	clock := NewClock(Epoch, time.Second)
	assert.Equal(t, Epoch, clock.Peek())
}

func TestClock_NowAdvancesByStep(t *testing.T) {
	clock := NewClock(Epoch, time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Peek())
}

func TestClock_ZeroStepIsFrozen(t *testing.T) {
	clock := NewClock(Epoch, 0)
	clock.Now()
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_Advance(t *testing.T) {
	clock := NewClock(Epoch, 0)
	clock.Advance(48 * time.Hour)
	assert.Equal(t, Epoch.Add(48*time.Hour), clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(Epoch, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	seen := make(chan time.Time, numGoroutines*callsPerGoroutine)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seen <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, numGoroutines*callsPerGoroutine)
	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*time.Millisecond), clock.Peek())
}
