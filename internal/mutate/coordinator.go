package mutate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/delta"
	"github.com/dropsheet/patchd/internal/doc"
	"github.com/dropsheet/patchd/internal/metrics"
	"github.com/dropsheet/patchd/internal/patch"
	"github.com/dropsheet/patchd/internal/schema"
	"github.com/dropsheet/patchd/internal/store"
)

const tracerName = "github.com/dropsheet/patchd/internal/mutate"

// Coordinator applies mutation batches. It is not safe for concurrent
// use: callers go through a Service, which serializes them.
type Coordinator struct {
	store    *store.Store
	schemas  *schema.Registry
	checker  authz.Checker
	reporter Reporter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReporter sets the bad patch reporter. The default logs.
func WithReporter(r Reporter) Option { return func(c *Coordinator) { c.reporter = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// WithMetrics sets the instruments.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithTracerProvider sets where spans go. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// WithClock sets the time source for batches without a timestamp.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// NewCoordinator wires the pipeline collaborators.
func NewCoordinator(st *store.Store, schemas *schema.Registry, checker authz.Checker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		schemas: schemas,
		checker: checker,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = LogReporter{Logger: c.logger}
	}
	return c
}

// Mutate applies a batch and commits the result, the history row and the
// ledger entries in one transaction.
func (c *Coordinator) Mutate(ctx context.Context, b Batch) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "mutate.Mutate",
		trace.WithAttributes(
			attribute.String("table", b.Table),
			attribute.String("record_id", b.ID),
			attribute.Int("patches", len(b.Patches)),
			attribute.Bool("override", b.Override),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := c.mutate(ctx, b)
	c.metrics.ObserveMutation(b.Table, outcome(res, err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.WarnContext(ctx, "mutation rejected", "table", b.Table, "id", b.ID, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("version", res.Version),
		attribute.Int("applied", len(res.Applied)),
		attribute.Int("replayed", len(res.Replayed)),
	)
	c.metrics.AddPatches(b.Table, len(res.Applied), len(res.Replayed))
	if res.Changed {
		c.logger.InfoContext(ctx, "mutation committed",
			"table", b.Table, "id", b.ID, "version", res.Version,
			"applied", len(res.Applied), "replayed", len(res.Replayed), "created", res.Created)
	} else {
		c.logger.DebugContext(ctx, "mutation was a no-op",
			"table", b.Table, "id", b.ID, "version", res.Version, "replayed", len(res.Replayed))
	}
	return res, nil
}

func outcome(res *Result, err error) string {
	switch {
	case err != nil:
		if code := CodeOf(err); code != "" {
			return strings.ToLower(string(code))
		}
		return "error"
	case !res.Changed:
		return "noop"
	default:
		return "ok"
	}
}

func (c *Coordinator) mutate(ctx context.Context, b Batch) (*Result, error) {
	if b.Table == "" || b.ID == "" {
		return nil, newError(CodeInvalidPatch, b.Table, b.ID, "table and record id are required")
	}
	ids := make([]string, len(b.Patches))
	for i, p := range b.Patches {
		if p.ID == "" {
			e := newError(CodeInvalidPatch, b.Table, b.ID, "patch %d has no id", i)
			e.PatchIndex = i
			return nil, e
		}
		ids[i] = p.ID
	}

	meta, ok := c.schemas.Lookup(b.Table)
	if !ok {
		return nil, newError(CodeUnknownTable, b.Table, b.ID, "no schema for table %q", b.Table)
	}

	if err := c.checker.Verify(b.Principal, b.Table, authz.Write); err != nil {
		return nil, denied(b, err)
	}

	at := b.Time
	if at.IsZero() {
		at = c.now()
	}

	var res *Result
	err := c.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		res, err = c.mutateTx(ctx, tx, meta, b, at)
		return err
	})
	if err != nil {
		var me *Error
		if errors.As(err, &me) {
			return nil, err
		}
		return nil, fmt.Errorf("mutate %s/%s: %w", b.Table, b.ID, err)
	}
	res.AppliedPatchIDs = ids
	return res, nil
}

func (c *Coordinator) mutateTx(ctx context.Context, tx *store.Tx, meta *schema.Meta, b Batch, at time.Time) (*Result, error) {
	current, err := tx.ReadRecord(ctx, b.Table, b.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	base := meta.Default(b.ID)
	if exists {
		base = current.Record
	}

	res := &Result{Applied: []string{}, Replayed: []string{}}
	record := base
	for i, p := range b.Patches {
		fresh, err := tx.RecordPatch(ctx, p.ID, at)
		if err != nil {
			return nil, err
		}
		if !fresh {
			res.Replayed = append(res.Replayed, p.ID)
			continue
		}

		next, err := patch.ApplyRecord(record, p.Delta, b.Override)
		if err != nil {
			c.reporter.ReportBadPatch(ctx, BadPatchReport{
				Table:      b.Table,
				RecordID:   b.ID,
				PatchIndex: i,
				PatchID:    p.ID,
				Record:     record,
				Delta:      p.Delta,
				Err:        err,
			})
			e := newError(CodeBadPatch, b.Table, b.ID, "patch does not apply to the current record")
			e.PatchIndex = i
			e.PatchID = p.ID
			e.Err = err
			return nil, e
		}
		record = next
		res.Applied = append(res.Applied, p.ID)
	}

	// Nothing new to apply to an existing record: keep the stored version.
	if exists && len(res.Applied) == 0 {
		res.Record = current.Record
		res.Version = current.Version
		return res, nil
	}

	if b.Override {
		record = meta.Repair(record)
	}
	record = record.Clone()
	if !b.System {
		stampModified(meta, record, b.Principal.ID, at)
	}

	var version int64
	if !exists {
		next, err := tx.NextHistoryVersion(ctx, b.Table, b.ID)
		if err != nil {
			return nil, err
		}
		if next != 0 {
			return nil, newError(CodeDeletedOrRaced, b.Table, b.ID, "record has history but no current row")
		}
		if err := c.checker.Verify(b.Principal, b.Table, authz.Create); err != nil {
			return nil, denied(b, err)
		}
		if !b.System {
			stampAdded(meta, record, b.Principal.ID, at)
		}
	} else {
		if !b.System {
			preserveAdded(meta, record, current.Record)
		}
		version = current.Version + 1
	}
	record = record.WithVersion(version)

	if record.ID() != b.ID {
		e := newError(CodeInvalidRecord, b.Table, b.ID, "record id changed")
		e.Fields = []schema.FieldError{{Path: "/" + doc.FieldID, Message: "must equal " + b.ID}}
		return nil, e
	}
	if fields := meta.Validate(record); len(fields) > 0 {
		e := newError(CodeInvalidRecord, b.Table, b.ID, "record fails validation (%d errors)", len(fields))
		e.Fields = fields
		return nil, e
	}

	change := delta.Diff(withoutVersion(base), withoutVersion(record))
	if exists && change == nil {
		res.Record = current.Record
		res.Version = current.Version
		return res, nil
	}

	digest, err := doc.Digest(record)
	if err != nil {
		return nil, err
	}
	row := store.StoredRecord{
		Table:     b.Table,
		ID:        b.ID,
		Version:   version,
		Record:    record,
		Digest:    digest,
		UpdatedAt: at,
	}
	if exists {
		err = tx.UpdateRecord(ctx, row, current.Version)
	} else {
		err = tx.InsertRecord(ctx, row)
	}
	if errors.Is(err, store.ErrConflict) {
		return nil, newError(CodeDeletedOrRaced, b.Table, b.ID, "record changed underneath the batch")
	}
	if err != nil {
		return nil, err
	}

	diffJSON, err := delta.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode history diff: %w", err)
	}
	err = tx.AppendHistory(ctx, store.HistoryEntry{
		Table:       b.Table,
		RecordID:    b.ID,
		Version:     version,
		Diff:        diffJSON,
		UserID:      b.Principal.ID,
		Form:        b.Form,
		ChangedTime: at,
		Digest:      digest,
	})
	if err != nil {
		return nil, err
	}

	res.Record = record
	res.Version = version
	res.Created = !exists
	res.Changed = true
	return res, nil
}

func denied(b Batch, err error) error {
	var de *authz.DeniedError
	if !errors.As(err, &de) {
		return fmt.Errorf("permission check: %w", err)
	}
	e := newError(CodePermissionDenied, b.Table, b.ID, "%s permission required", de.Capability)
	e.Err = err
	return e
}

// Audit timestamps follow the client conventions: a local calendar date
// and a UTC instant with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z"

func stampModified(meta *schema.Meta, r doc.Record, principal string, at time.Time) {
	if meta.Has(doc.FieldModifiedBy) {
		r[doc.FieldModifiedBy] = principal
	}
	if meta.Has(doc.FieldModifiedDate) {
		r[doc.FieldModifiedDate] = at.Format(time.DateOnly)
	}
	if meta.Has(doc.FieldModifiedDateTime) {
		r[doc.FieldModifiedDateTime] = at.UTC().Format(isoMillis)
	}
}

func stampAdded(meta *schema.Meta, r doc.Record, principal string, at time.Time) {
	if meta.Has(doc.FieldAddedBy) {
		r[doc.FieldAddedBy] = principal
	}
	if meta.Has(doc.FieldAddedDate) {
		r[doc.FieldAddedDate] = at.Format(time.DateOnly)
	}
	if meta.Has(doc.FieldAddedDateTime) {
		r[doc.FieldAddedDateTime] = at.UTC().Format(isoMillis)
	}
}

// preserveAdded copies the insert stamps verbatim from the stored record.
func preserveAdded(meta *schema.Meta, r, current doc.Record) {
	for _, field := range doc.AddedFields {
		if !meta.Has(field) {
			continue
		}
		if v, ok := current[field]; ok {
			r[field] = v
		} else {
			delete(r, field)
		}
	}
}

func withoutVersion(r doc.Record) doc.Record {
	out := r.Clone()
	delete(out, doc.FieldRecordVersion)
	return out
}
