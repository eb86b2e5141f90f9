package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropsheet/patchd/internal/testutil"
)

const customerID = "0190f5a4-7c1e-7a32-9b6e-3f1c2d4e5a60"

type workspace struct {
	db     string
	schema string
	dir    string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	schemaDir := filepath.Join(dir, "tables")
	require.NoError(t, os.MkdirAll(schemaDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(schemaDir, "tables.cue"), []byte("package tables\n"+testutil.TablesCUE), 0644))
	return workspace{db: filepath.Join(dir, "patchd.db"), schema: schemaDir, dir: dir}
}

func (w workspace) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(w.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (w workspace) storeFlags() []string {
	return []string{"--db", w.db, "--schema", w.schema}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func (w workspace) mutate(t *testing.T, batch string, extra ...string) (string, error) {
	t.Helper()
	path := w.file(t, "batch.json", batch)
	args := append([]string{"--format", "json", "mutate"}, w.storeFlags()...)
	args = append(args,
		"--table", "Customer",
		"--id", customerID,
		"--user", testutil.AliceID,
		"--permissions", "Customer-write,Customer-create",
	)
	args = append(args, extra...)
	return execute(t, append(args, path)...)
}

func TestMutateReadHistory(t *testing.T) {
	w := newWorkspace(t)
	batch := `{"patchIds": ["p1"], "patches": [{"name": ["", "Acme"]}], "form": "cli"}`

	out, err := w.mutate(t, batch)
	require.NoError(t, err, out)
	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(0), data["recordVersion"])
	assert.Equal(t, true, data["created"])
	assert.Equal(t, customerID, data["id"])

	out, err = w.mutate(t, batch)
	require.NoError(t, err, out)
	data = decodeResponse(t, out).Data.(map[string]any)
	assert.Equal(t, false, data["changed"])
	assert.Equal(t, []any{"p1"}, data["replayed"])

	args := append([]string{"--format", "json", "read"}, w.storeFlags()...)
	out, err = execute(t, append(args, "--user", testutil.AliceID, "--permissions", "Customer-read", "Customer", customerID)...)
	require.NoError(t, err, out)
	record := decodeResponse(t, out).Data.(map[string]any)["record"].(map[string]any)
	assert.Equal(t, "Acme", record["name"])
	assert.Equal(t, testutil.AliceID, record["addedBy"])

	args = append([]string{"--format", "json", "history"}, w.storeFlags()...)
	out, err = execute(t, append(args, "--table", "Customer", "--permissions", "RecordHistory-read")...)
	require.NoError(t, err, out)
	entries := decodeResponse(t, out).Data.([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "cli", entries[0].(map[string]any)["form"])
}

func TestMutate_Rejected(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.mutate(t, `{"patchIds": ["p1"], "patches": [{"name": ["x", "y"]}]}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "BAD_PATCH", resp.Error.Code)

	out, err = w.mutate(t, `{"patchIds": ["p1", "p2"], "patches": [{}]}`)
	require.Error(t, err)
	assert.Equal(t, "INVALID_PATCH", decodeResponse(t, out).Error.Code)
}

func TestMutate_OverrideFlag(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.mutate(t, `{"patchIds": ["p1"], "patches": [{"name": ["x", "y"]}]}`, "--override")
	require.NoError(t, err, out)
	record := decodeResponse(t, out).Data.(map[string]any)["record"].(map[string]any)
	assert.Equal(t, "y", record["name"])
}

func TestMutate_BadInput(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.mutate(t, `{"patchIds": ["p1"], "patches": [], "extra": true}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err), out)

	args := append([]string{"mutate"}, w.storeFlags()...)
	_, err = execute(t, append(args, filepath.Join(w.dir, "missing.json"))...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRead_NotFound(t *testing.T) {
	w := newWorkspace(t)

	args := append([]string{"read"}, w.storeFlags()...)
	out, err := execute(t, append(args, "--permissions", "Customer-read", "Customer", customerID)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestPrune(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.mutate(t, `{"patchIds": ["p1"], "patches": [{"name": ["", "Acme"]}]}`)
	require.NoError(t, err)

	args := append([]string{"prune"}, w.storeFlags()...)
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Equal(t, "✓ removed 0 ledger entries older than 168h0m0s\n", out)
}

func TestDiff_Golden(t *testing.T) {
	w := newWorkspace(t)
	from := w.file(t, "from.json", `{"name": "Acme", "tags": ["a", "b"], "active": true}`)
	to := w.file(t, "to.json", `{"name": "Acme Ltd", "tags": ["b", "c"], "active": true}`)

	out, err := execute(t, "diff", from, to)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "diff_text", []byte(out))
}

func TestDiff_NoChanges(t *testing.T) {
	w := newWorkspace(t)
	a := w.file(t, "a.json", `{"n": 1.0}`)
	b := w.file(t, "b.json", `{"n": 1}`)

	out, err := execute(t, "diff", a, b)
	require.NoError(t, err)
	assert.Equal(t, "no changes\n", out)

	out, err = execute(t, "--format", "json", "diff", a, b)
	require.NoError(t, err)
	assert.Nil(t, decodeResponse(t, out).Data.(map[string]any)["delta"])
}

func TestValidate(t *testing.T) {
	w := newWorkspace(t)

	out, err := execute(t, "validate", w.schema)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 2 table(s) valid")
	assert.Contains(t, out, "Counter (3 fields)")
	assert.Contains(t, out, "Customer (14 fields)")
}

func TestValidate_Invalid(t *testing.T) {
	w := newWorkspace(t)
	bad := filepath.Join(w.dir, "bad")
	require.NoError(t, os.MkdirAll(bad, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "bad.cue"), []byte("package bad\ntable: Thing: fields: {size: \"huge\"}\n"), 0644))

	out, err := execute(t, "--format", "json", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, "INVALID_SCHEMA", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "huge")
}
