package mutate

import (
	"encoding/json"
	"time"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
)

// Patch is one client edit, identified by a client-generated id that
// makes re-delivery safe.
type Patch struct {
	ID    string
	Delta delta.Delta
}

// Batch is an ordered list of patches against one record.
type Batch struct {
	Table     string
	ID        string
	Principal authz.Principal

	// Time stamps audit fields and ledger entries. Zero means now.
	Time time.Time

	// Form names the client form that produced the edit. It is kept on
	// history rows.
	Form string

	Patches []Patch

	// Override skips prior-value verification and repairs the result.
	Override bool

	// System marks internal batches, which are not audit-stamped.
	System bool
}

// Result describes a committed (or no-op) batch.
type Result struct {
	Record  doc.Record `json:"record"`
	Version int64      `json:"recordVersion"`

	// Applied lists patch ids applied by this call, Replayed those that
	// were already in the ledger.
	Applied  []string `json:"applied"`
	Replayed []string `json:"replayed"`

	// AppliedPatchIDs lists every submitted id in order.
	AppliedPatchIDs []string `json:"appliedPatches"`

	// Created is set when this batch inserted the record.
	Created bool `json:"created"`

	// Changed is false when nothing was written.
	Changed bool `json:"changed"`
}

// DecodePatches pairs patch ids with their encoded deltas. A count
// mismatch is INVALID_PATCH; a delta that does not decode is BAD_PATCH.
func DecodePatches(table, id string, ids []string, raw []json.RawMessage) ([]Patch, error) {
	if len(ids) != len(raw) {
		return nil, newError(CodeInvalidPatch, table, id, "%d patch ids for %d patches", len(ids), len(raw))
	}
	patches := make([]Patch, len(ids))
	for i := range ids {
		d, err := delta.DecodeJSON(raw[i])
		if err != nil {
			e := newError(CodeBadPatch, table, id, "patch does not decode")
			e.PatchIndex = i
			e.PatchID = ids[i]
			e.Err = err
			return nil, e
		}
		patches[i] = Patch{ID: ids[i], Delta: d}
	}
	return patches, nil
}
