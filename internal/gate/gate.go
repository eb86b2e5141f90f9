// Package gate serializes work process-wide in strict FIFO order.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Gate admits one call at a time in arrival order, regardless of what
// the call touches.
//
// Each caller swaps a fresh completion channel into the tail under the
// mutex and waits for the previous tail to close. The caller closes its
// own channel when it finishes, on success, error or panic, so one
// failing call never blocks the ones behind it.
//
// A caller whose context ends while it is still queued returns ctx.Err()
// without running, but its slot still closes in order once its
// predecessor finishes. Once admitted, fn runs to completion: it receives
// a context that carries the caller's values but not its cancellation.
//
// A Gate serializes only within one process.
type Gate struct {
	mu      sync.Mutex
	tail    chan struct{}
	pending atomic.Int64
	onWait  func(time.Duration)
}

// Option configures a Gate.
type Option func(*Gate)

// WithWaitObserver registers fn to receive how long each admitted call
// waited in the queue.
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(g *Gate) { g.onWait = fn }
}

// New creates an idle gate.
func New(opts ...Option) *Gate {
	g := &Gate{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs fn once every previously admitted call has finished and
// returns fn's error.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	done := make(chan struct{})

	g.mu.Lock()
	prev := g.tail
	g.tail = done
	g.mu.Unlock()

	g.pending.Add(1)
	defer g.pending.Add(-1)

	start := time.Now()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				close(done)
			}()
			return ctx.Err()
		}
	}
	defer close(done)

	if err := ctx.Err(); err != nil {
		return err
	}
	if g.onWait != nil {
		g.onWait(time.Since(start))
	}
	return fn(context.WithoutCancel(ctx))
}

// Len reports the number of callers queued or running.
func (g *Gate) Len() int {
	return int(g.pending.Load())
}
