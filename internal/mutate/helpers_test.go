package mutate

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/store"
	"github.com/dropsheet/patchd/internal/testutil"
)

const (
	customerID = "0190f5a4-7c1e-7a32-9b6e-3f1c2d4e5a60"
	counterID  = "0190f5a4-7c1e-7a32-9b6e-3f1c2d4e5a61"
)

type fixture struct {
	store    *store.Store
	coord    *Coordinator
	svc      *Service
	clock    *testutil.Clock
	reporter *captureReporter
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewStore(t),
		clock:    testutil.NewClock(testutil.Epoch, time.Minute),
		reporter: &captureReporter{},
	}
	opts = append([]Option{WithClock(f.clock.Now), WithReporter(f.reporter)}, opts...)
	f.coord = NewCoordinator(f.store, testutil.Schemas(t), authz.PermissionList{}, opts...)
	f.svc = NewService(f.coord)
	return f
}

func principal(id string, perms ...string) authz.Principal {
	return authz.Principal{ID: id, Permissions: perms}
}

func everything(id string) authz.Principal {
	var perms []string
	for _, table := range []string{"Customer", "Counter", HistoryTable} {
		for _, c := range []authz.Capability{authz.Read, authz.Write, authz.Create} {
			perms = append(perms, authz.Permission(table, c))
		}
	}
	return principal(id, perms...)
}

var (
	alice = everything(testutil.AliceID)
	bob   = everything(testutil.BobID)
)

func p(t *testing.T, id, raw string) Patch {
	t.Helper()
	d, err := delta.DecodeJSON([]byte(raw))
	require.NoError(t, err)
	return Patch{ID: id, Delta: d}
}

func customerBatch(who authz.Principal, patches ...Patch) Batch {
	return Batch{Table: "Customer", ID: customerID, Principal: who, Form: "customer-edit", Patches: patches}
}

func mustMutate(t *testing.T, f *fixture, b Batch) *Result {
	t.Helper()
	res, err := f.svc.Mutate(context.Background(), b)
	require.NoError(t, err)
	return res
}

func hasPatch(t *testing.T, f *fixture, id string) bool {
	t.Helper()
	ok, err := f.store.HasPatch(context.Background(), id)
	require.NoError(t, err)
	return ok
}

func historyVersions(t *testing.T, f *fixture, table, id string) []int64 {
	t.Helper()
	entries, err := f.store.History(context.Background(), store.HistoryFilter{Table: table, RecordID: id})
	require.NoError(t, err)
	versions := make([]int64, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
	}
	return versions
}

func rawMessages(ss ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(ss))
	for i, s := range ss {
		out[i] = json.RawMessage(s)
	}
	return out
}

type captureReporter struct {
	mu      sync.Mutex
	reports []BadPatchReport
}

func (r *captureReporter) ReportBadPatch(_ context.Context, rep BadPatchReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

func (r *captureReporter) all() []BadPatchReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BadPatchReport(nil), r.reports...)
}
