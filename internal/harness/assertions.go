package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/store"
)

// AssertionError is returned when a check on stored state fails.
type AssertionError struct {
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual)
}

func evaluateAssertion(ctx context.Context, st *store.Store, a Assertion) error {
	switch a.Type {
	case AssertFinalRecord:
		return assertFinalRecord(ctx, st, a)
	case AssertRecordMissing:
		return assertRecordMissing(ctx, st, a)
	case AssertHistoryCount:
		return assertHistoryCount(ctx, st, a)
	case AssertLedgerContains:
		return assertLedger(ctx, st, a.Patches, true)
	case AssertLedgerMissing:
		return assertLedger(ctx, st, a.Patches, false)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalRecord(ctx context.Context, st *store.Store, a Assertion) error {
	rec, err := st.ReadRecord(ctx, a.Table, a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return &AssertionError{Expected: fmt.Sprintf("record %s/%s", a.Table, a.ID), Actual: "no record"}
	}
	if err != nil {
		return err
	}
	if a.Version != nil && rec.Version != *a.Version {
		return &AssertionError{
			Expected: fmt.Sprintf("version %d", *a.Version),
			Actual:   fmt.Sprintf("version %d", rec.Version),
		}
	}
	if a.Expect != nil {
		return matchSubset(rec.Record, a.Expect)
	}
	return nil
}

func assertRecordMissing(ctx context.Context, st *store.Store, a Assertion) error {
	rec, err := st.ReadRecord(ctx, a.Table, a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return &AssertionError{
		Expected: fmt.Sprintf("no record %s/%s", a.Table, a.ID),
		Actual:   fmt.Sprintf("version %d", rec.Version),
	}
}

func assertHistoryCount(ctx context.Context, st *store.Store, a Assertion) error {
	entries, err := st.History(ctx, store.HistoryFilter{Table: a.Table, RecordID: a.ID})
	if err != nil {
		return err
	}
	if len(entries) != a.Count {
		return &AssertionError{
			Expected: fmt.Sprintf("%d history rows", a.Count),
			Actual:   fmt.Sprintf("%d", len(entries)),
		}
	}
	return nil
}

func assertLedger(ctx context.Context, st *store.Store, ids []string, want bool) error {
	var wrong []string
	for _, id := range ids {
		ok, err := st.HasPatch(ctx, id)
		if err != nil {
			return err
		}
		if ok != want {
			wrong = append(wrong, id)
		}
	}
	if len(wrong) == 0 {
		return nil
	}
	if want {
		return &AssertionError{Expected: fmt.Sprintf("ledger entries %v", ids), Actual: fmt.Sprintf("missing %v", wrong)}
	}
	return &AssertionError{Expected: fmt.Sprintf("no ledger entries %v", ids), Actual: fmt.Sprintf("found %v", wrong)}
}

// matchSubset checks that every key in expected is present in actual with
// an equal value. Nested values compare whole.
func matchSubset(actual doc.Record, expected map[string]any) error {
	if actual == nil {
		return &AssertionError{Expected: "a record", Actual: "none"}
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		plain, err := jsonValue(expected[k])
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		want, err := doc.Normalize(plain)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		got, ok := actual[k]
		if !ok {
			return &AssertionError{Expected: fmt.Sprintf("%s = %v", k, want), Actual: "missing"}
		}
		if !delta.Equal(got, want) {
			return &AssertionError{Expected: fmt.Sprintf("%s = %v", k, want), Actual: fmt.Sprintf("%v", got)}
		}
	}
	return nil
}

// jsonValue rewrites YAML-decoded values into shapes encoding/json
// accepts. Mappings with non-string keys become string-keyed objects.
func jsonValue(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			c, err := jsonValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			c, err := jsonValue(e)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			c, err := jsonValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case nil, string, bool, int, int64, uint64, float64:
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported YAML value of type %T", v)
	}
}

func asMutateError(err error) (*mutate.Error, bool) {
	var me *mutate.Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
