package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropsheet/patchd/internal/authz"
	"github.com/dropsheet/patchd/internal/metrics"
	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/testutil"
)

const customerID = "0190f5a4-7c1e-7a32-9b6e-3f1c2d4e5a60"

const allPermissions = "Customer-read,Customer-write,Customer-create,RecordHistory-read"

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	clock := testutil.NewClock(testutil.Epoch, time.Minute)
	coord := mutate.NewCoordinator(testutil.NewStore(t), testutil.Schemas(t), authz.PermissionList{}, mutate.WithClock(clock.Now))
	srv := httptest.NewServer(New(mutate.NewService(coord), opts...))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, perms, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(HeaderPrincipalID, testutil.AliceID)
	req.Header.Set(HeaderPrincipalPermissions, perms)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestHealth_Failing(t *testing.T) {
	srv := newTestServer(t, WithHealthCheck(func(context.Context) error { return errors.New("database is closed") }))
	status, body := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "database is closed", body["message"])
}

func TestMetrics(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, WithMetrics(m.Handler()))

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPatchThenRead(t *testing.T) {
	srv := newTestServer(t)
	path := "/v1/records/Customer/" + customerID

	status, body := do(t, srv, http.MethodPost, path+"/patches", allPermissions,
		`{"patchIds": ["p1"], "patches": [{"name": ["", "Acme"]}], "form": "customer-edit"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(0), body["recordVersion"])
	assert.Equal(t, true, body["created"])
	assert.Equal(t, []any{"p1"}, body["appliedPatches"])

	status, body = do(t, srv, http.MethodGet, path, allPermissions, "")
	require.Equal(t, http.StatusOK, status, body)
	record := body["record"].(map[string]any)
	assert.Equal(t, "Acme", record["name"])
	assert.Equal(t, testutil.AliceID, record["addedBy"])

	status, body = do(t, srv, http.MethodGet, "/v1/history?table=Customer&recordId="+customerID+"&to=2024-03-15", allPermissions, "")
	require.Equal(t, http.StatusOK, status, body)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "customer-edit", entries[0].(map[string]any)["form"])
}

func TestPatch_Errors(t *testing.T) {
	srv := newTestServer(t)
	path := "/v1/records/Customer/" + customerID + "/patches"

	tests := []struct {
		name       string
		perms      string
		body       string
		wantCode   int
		wantStatus string
	}{
		{"count mismatch", allPermissions, `{"patchIds": ["p1", "p2"], "patches": [{}]}`, http.StatusBadRequest, "INVALID_PATCH"},
		{"malformed body", allPermissions, `{"patchIds": `, http.StatusBadRequest, "INVALID_PATCH"},
		{"undecodable delta", allPermissions, `{"patchIds": ["p1"], "patches": [{"_t": "b"}]}`, http.StatusConflict, "BAD_PATCH"},
		{"mismatch", allPermissions, `{"patchIds": ["p1"], "patches": [{"name": ["x", "y"]}]}`, http.StatusConflict, "BAD_PATCH"},
		{"invalid record", allPermissions, `{"patchIds": ["p2"], "patches": [{"status": ["prospect", "bogus"]}]}`, http.StatusUnprocessableEntity, "INVALID_RECORD"},
		{"denied", "Customer-read", `{"patchIds": ["p3"], "patches": [{"name": ["", "Acme"]}]}`, http.StatusForbidden, "PERMISSION_DENIED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, path, tt.perms, tt.body)
			assert.Equal(t, tt.wantCode, status)
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}

func TestPatch_ErrorDetails(t *testing.T) {
	srv := newTestServer(t)
	path := "/v1/records/Customer/" + customerID + "/patches"

	_, body := do(t, srv, http.MethodPost, path, allPermissions,
		`{"patchIds": ["p1", "p2"], "patches": [{"name": ["", "A"]}, {"name": ["x", "y"]}]}`)
	assert.Equal(t, float64(1), body["patchIndex"])
	assert.Equal(t, "p2", body["patchId"])
	assert.Equal(t, "Customer", body["tableName"])

	_, body = do(t, srv, http.MethodPost, path, allPermissions,
		`{"patchIds": ["p3"], "patches": [{"status": ["prospect", "bogus"]}]}`)
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "/status", errs[0].(map[string]any)["path"])
	_, hasIndex := body["patchIndex"]
	assert.False(t, hasIndex)
}

func TestRead_Errors(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/v1/records/Customer/"+customerID, allPermissions, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["status"])

	status, body = do(t, srv, http.MethodGet, "/v1/records/Nope/"+customerID, allPermissions, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_TABLE", body["status"])
}

func TestHistory_BadQuery(t *testing.T) {
	srv := newTestServer(t)

	status, body := do(t, srv, http.MethodGet, "/v1/history?from=yesterday", allPermissions, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_REQUEST", body["status"])

	status, _ = do(t, srv, http.MethodGet, "/v1/history?limit=-1", allPermissions, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, http.MethodGet, "/v1/history", "Customer-read", "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "PERMISSION_DENIED", body["status"])
}

type failingService struct{ Service }

func (failingService) Read(context.Context, authz.Principal, string, string) (*mutate.Snapshot, error) {
	return nil, errors.New("disk on fire")
}

func TestUnknownError(t *testing.T) {
	srv := httptest.NewServer(New(failingService{}))
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/v1/records/Customer/"+customerID, "", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, StatusUnknownError, body["status"])
	assert.Equal(t, "internal error", body["message"])
}

func TestPrincipalFrom(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderPrincipalID, "u1")
	r.Header.Set(HeaderPrincipalPermissions, " Customer-read , ,Customer-write")

	p := principalFrom(r)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, []string{"Customer-read", "Customer-write"}, p.Permissions)
}
