package mutate

import (
	"context"
	"log/slog"

	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
)

// BadPatchReport carries what is needed to diagnose a rejected patch.
type BadPatchReport struct {
	Table      string
	RecordID   string
	PatchIndex int
	PatchID    string
	Record     doc.Record
	Delta      delta.Delta
	Err        error
}

// Reporter receives rejected patches for postmortem.
type Reporter interface {
	ReportBadPatch(ctx context.Context, r BadPatchReport)
}

// LogReporter writes reports as structured log records.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) ReportBadPatch(ctx context.Context, rep BadPatchReport) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	recordJSON, err := doc.MarshalCanonical(rep.Record)
	if err != nil {
		recordJSON = []byte(err.Error())
	}
	deltaJSON, err := delta.Marshal(rep.Delta)
	if err != nil {
		deltaJSON = []byte(err.Error())
	}

	logger.ErrorContext(ctx, "bad patch",
		"table", rep.Table,
		"id", rep.RecordID,
		"patch_index", rep.PatchIndex,
		"patch_id", rep.PatchID,
		"record", string(recordJSON),
		"delta", string(deltaJSON),
		"error", rep.Err,
	)
}
