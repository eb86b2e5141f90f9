package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/schema"
	"github.com/dropsheet/patchd/internal/store"
	"github.com/dropsheet/patchd/internal/testutil"
)

// Run executes a scenario against a fresh in-memory store with a
// deterministic clock. Failed expectations and assertions are collected
// in the result; the returned error is reserved for scenarios that cannot
// run at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	reg, err := schema.Compile(s.Schema)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(testutil.Epoch, time.Second)
	coord := mutate.NewCoordinator(st, reg, authz.PermissionList{},
		mutate.WithClock(clock.Now),
		mutate.WithLogger(quiet),
	)

	r := &runner{
		scenario: s,
		svc:      mutate.NewService(coord),
		result:   NewResult(),
	}

	for i, step := range s.Steps {
		if err := r.runStep(ctx, i, step); err != nil {
			return nil, err
		}
	}

	for i, a := range s.Assertions {
		if err := evaluateAssertion(ctx, st, a); err != nil {
			r.result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return r.result, nil
}

type runner struct {
	scenario *Scenario
	svc      *mutate.Service
	result   *Result
}

// outcome is what a step produced, before it is checked.
type outcome struct {
	event  TraceEvent
	record doc.Record
	fields []string
}

func (r *runner) runStep(ctx context.Context, i int, step Step) error {
	var (
		out outcome
		err error
	)
	if step.Mutate != nil {
		out, err = r.mutate(ctx, step.Mutate)
	} else {
		out, err = r.read(ctx, step.Read)
	}
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", i, err)
	}

	r.result.addTrace(out.event)
	for _, msg := range checkExpect(step.Expect, out) {
		r.result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
	}
	return nil
}

func (r *runner) principal(name string) authz.Principal {
	p, ok := r.scenario.Principals[name]
	if !ok {
		return authz.Principal{}
	}
	return authz.Principal{ID: p.ID, Permissions: p.Permissions}
}

func (r *runner) mutate(ctx context.Context, m *MutateStep) (outcome, error) {
	patches := make([]mutate.Patch, len(m.Patches))
	for i, ps := range m.Patches {
		d, err := decodeDelta(ps.Delta)
		if err != nil {
			return outcome{}, fmt.Errorf("patch %q: %w", ps.ID, err)
		}
		patches[i] = mutate.Patch{ID: ps.ID, Delta: d}
	}

	res, err := r.svc.Mutate(ctx, mutate.Batch{
		Table:     m.Table,
		ID:        m.ID,
		Principal: r.principal(m.As),
		Form:      m.Form,
		Patches:   patches,
		Override:  m.Override,
		System:    m.System,
	})

	out := outcome{event: TraceEvent{Op: "mutate", Table: m.Table, ID: m.ID, PatchIndex: -1}}
	if err != nil {
		if err := failed(&out, err); err != nil {
			return outcome{}, err
		}
		return out, nil
	}
	out.event.Status = StatusOK
	out.event.Version = &res.Version
	out.event.Applied = res.Applied
	out.event.Replayed = res.Replayed
	out.record = res.Record
	return out, nil
}

func (r *runner) read(ctx context.Context, rs *ReadStep) (outcome, error) {
	snap, err := r.svc.Read(ctx, r.principal(rs.As), rs.Table, rs.ID)

	out := outcome{event: TraceEvent{Op: "read", Table: rs.Table, ID: rs.ID, PatchIndex: -1}}
	if err != nil {
		if err := failed(&out, err); err != nil {
			return outcome{}, err
		}
		return out, nil
	}
	out.event.Status = StatusOK
	out.event.Version = &snap.Version
	out.record = snap.Record
	return out, nil
}

// failed fills out from a domain error. Anything else aborts the run.
func failed(out *outcome, err error) error {
	me, ok := asMutateError(err)
	if !ok {
		return err
	}
	out.event.Status = string(me.Code)
	out.event.PatchIndex = me.PatchIndex
	for _, f := range me.Fields {
		out.fields = append(out.fields, f.Path)
	}
	return nil
}

func checkExpect(e *Expect, out outcome) []string {
	if e == nil {
		e = &Expect{Status: StatusOK}
	}

	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if out.event.Status != e.Status {
		add("status: expected %s, got %s", e.Status, out.event.Status)
		return errs
	}
	if e.Version != nil && (out.event.Version == nil || *out.event.Version != *e.Version) {
		add("version: expected %d, got %s", *e.Version, formatVersion(out.event.Version))
	}
	if e.Applied != nil && !slices.Equal(nonNil(out.event.Applied), e.Applied) {
		add("applied: expected %v, got %v", e.Applied, out.event.Applied)
	}
	if e.Replayed != nil && !slices.Equal(nonNil(out.event.Replayed), e.Replayed) {
		add("replayed: expected %v, got %v", e.Replayed, out.event.Replayed)
	}
	if e.PatchIndex != nil && out.event.PatchIndex != *e.PatchIndex {
		add("patch_index: expected %d, got %d", *e.PatchIndex, out.event.PatchIndex)
	}
	for _, path := range e.Fields {
		if !slices.Contains(out.fields, path) {
			add("fields: expected an error at %s, got %v", path, out.fields)
		}
	}
	if e.Record != nil {
		if err := matchSubset(out.record, e.Record); err != nil {
			add("record: %v", err)
		}
	}
	return errs
}

func formatVersion(v *int64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprint(*v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// decodeDelta turns a delta written as YAML into a Delta, going through
// JSON so numbers and keys match what the wire format produces.
func decodeDelta(v any) (delta.Delta, error) {
	plain, err := jsonValue(v)
	if err != nil {
		return nil, err
	}
	norm, err := doc.Normalize(plain)
	if err != nil {
		return nil, err
	}
	return delta.Decode(norm)
}
