// Package server exposes the mutation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/schema"
	"github.com/dropsheet/patchd/internal/store"
)

// Principal headers.
const (
	HeaderPrincipalID          = "X-Principal-Id"
	HeaderPrincipalPermissions = "X-Principal-Permissions"
)

// StatusUnknownError is reported for failures that are not mutation
// errors.
const StatusUnknownError = "UNKNOWN_ERROR"

// Service is the subset of mutate.Service the handlers use.
type Service interface {
	Mutate(ctx context.Context, b mutate.Batch) (*mutate.Result, error)
	Read(ctx context.Context, p authz.Principal, table, id string) (*mutate.Snapshot, error)
	History(ctx context.Context, p authz.Principal, q mutate.HistoryQuery) ([]store.HistoryEntry, error)
}

type handlers struct {
	svc    Service
	health func(context.Context) error
	logger *slog.Logger
}

// Option configures the router.
type Option func(*options)

type options struct {
	metrics http.Handler
	health  func(context.Context) error
	logger  *slog.Logger
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option { return func(o *options) { o.metrics = h } }

// WithHealthCheck makes /health report check's error.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(o *options) { o.health = check }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New builds the router.
func New(svc Service, opts ...Option) http.Handler {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	h := &handlers{svc: svc, health: o.health, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.getHealth)
	if o.metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/records/{table}/{id}", h.getRecord)
		r.Post("/records/{table}/{id}/patches", h.postPatches)
		r.Get("/history", h.getHistory)
	})
	return r
}

func (h *handlers) getHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "message": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Read(r.Context(), principalFrom(r), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PatchRequest is the body of a patch submission.
type PatchRequest struct {
	PatchIDs []string          `json:"patchIds"`
	Patches  []json.RawMessage `json:"patches"`
	Form     string            `json:"form"`
	Override bool              `json:"override"`
}

func (h *handlers) postPatches(w http.ResponseWriter, r *http.Request) {
	table, id := chi.URLParam(r, "table"), chi.URLParam(r, "id")

	var req PatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Status:   string(mutate.CodeInvalidPatch),
			Message:  "malformed request body: " + err.Error(),
			Table:    table,
			RecordID: id,
		})
		return
	}

	patches, err := mutate.DecodePatches(table, id, req.PatchIDs, req.Patches)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Mutate(r.Context(), mutate.Batch{
		Table:     table,
		ID:        id,
		Principal: principalFrom(r),
		Form:      req.Form,
		Patches:   patches,
		Override:  req.Override,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := mutate.HistoryQuery{
		Table:    q.Get("table"),
		RecordID: q.Get("recordId"),
		UserID:   q.Get("userId"),
	}

	var err error
	if query.FromDate, err = parseDate(q.Get("from")); err != nil {
		writeBadRequest(w, "from: "+err.Error())
		return
	}
	if query.ToDate, err = parseDate(q.Get("to")); err != nil {
		writeBadRequest(w, "to: "+err.Error())
		return
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		query.Limit = n
	}

	entries, err := h.svc.History(r.Context(), principalFrom(r), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func principalFrom(r *http.Request) authz.Principal {
	p := authz.Principal{ID: r.Header.Get(HeaderPrincipalID)}
	for _, perm := range strings.Split(r.Header.Get(HeaderPrincipalPermissions), ",") {
		if perm = strings.TrimSpace(perm); perm != "" {
			p.Permissions = append(p.Permissions, perm)
		}
	}
	return p
}

type errorBody struct {
	Status     string              `json:"status"`
	Message    string              `json:"message"`
	Table      string              `json:"tableName,omitempty"`
	RecordID   string              `json:"recordId,omitempty"`
	PatchIndex *int                `json:"patchIndex,omitempty"`
	PatchID    string              `json:"patchId,omitempty"`
	Errors     []schema.FieldError `json:"errors,omitempty"`
}

// StatusCode maps a mutation error code to an HTTP status.
func StatusCode(code mutate.Code) int {
	switch code {
	case mutate.CodePermissionDenied:
		return http.StatusForbidden
	case mutate.CodeBadPatch, mutate.CodeDeletedOrRaced:
		return http.StatusConflict
	case mutate.CodeInvalidRecord:
		return http.StatusUnprocessableEntity
	case mutate.CodeInvalidPatch:
		return http.StatusBadRequest
	case mutate.CodeUnknownTable, mutate.CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var me *mutate.Error
	if !errors.As(err, &me) {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, status, errorBody{Status: StatusUnknownError, Message: "internal error"})
		return
	}

	body := errorBody{
		Status:   string(me.Code),
		Message:  me.Message,
		Table:    me.Table,
		RecordID: me.RecordID,
		PatchID:  me.PatchID,
		Errors:   me.Fields,
	}
	if me.PatchIndex >= 0 {
		idx := me.PatchIndex
		body.PatchIndex = &idx
	}
	writeJSON(w, StatusCode(me.Code), body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Status: "INVALID_REQUEST", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
