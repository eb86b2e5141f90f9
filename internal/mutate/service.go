package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/gate"
	"github.com/dropsheet/patchd/internal/metrics"
	"github.com/dropsheet/patchd/internal/store"
)

// DefaultRetention is how long ledger entries are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Service serializes all mutations of a process through one gate. It is
// safe for concurrent use.
type Service struct {
	coord   *Coordinator
	gate    *gate.Gate
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService puts c behind a fresh gate.
func NewService(c *Coordinator) *Service {
	return &Service{
		coord:   c,
		gate:    gate.New(gate.WithWaitObserver(c.metrics.ObserveGateWait)),
		metrics: c.metrics,
		logger:  c.logger,
	}
}

// Mutate waits its turn and applies b. A caller whose context ends while
// queued gets ctx.Err(); once admitted the batch runs to completion.
func (s *Service) Mutate(ctx context.Context, b Batch) (*Result, error) {
	var res *Result
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.coord.Mutate(ctx, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Read returns the stored state of a record. Reads do not take the gate.
func (s *Service) Read(ctx context.Context, p authz.Principal, table, id string) (*Snapshot, error) {
	return s.coord.Read(ctx, p, table, id)
}

// History returns matching history rows, newest first.
func (s *Service) History(ctx context.Context, p authz.Principal, q HistoryQuery) ([]store.HistoryEntry, error) {
	return s.coord.History(ctx, p, q)
}

// Pending reports queued plus running mutations.
func (s *Service) Pending() int { return s.gate.Len() }

// Prune removes ledger entries older than retention. It holds the gate so
// it never interleaves with a mutation.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	var n int64
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.coord.store.PrunePatches(ctx, s.coord.now().Add(-retention))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	s.metrics.AddPruned(n)
	s.logger.InfoContext(ctx, "pruned ledger", "removed", n, "retention", retention)
	return n, nil
}

// RunPruner prunes every interval until ctx ends.
func (s *Service) RunPruner(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(ctx, retention); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "ledger prune failed", "error", err)
			}
		}
	}
}
