package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropsheet/patchd/internal/mutate"
	"github.com/dropsheet/patchd/internal/schema"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("BAD_PATCH", "patch does not apply", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_PATCH", resp.Error.Code)
	assert.Equal(t, "patch does not apply", resp.Error.Message)
}

type greeting struct{ name string }

func (g greeting) WriteText(w io.Writer, p Painter) error {
	_, err := fmt.Fprintf(w, "%s %s\n", p.OK("hello"), g.name)
	return err
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(greeting{name: "world"}))
	assert.Equal(t, "hello world\n", buf.String(), "no color codes when not writing to a terminal")
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("all tables valid"))
	assert.Equal(t, "all tables valid\n", buf.String())
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, formatter.Error("INVALID_RECORD", "record fails validation", []string{"/status"}))
	assert.Contains(t, buf.String(), "Error [INVALID_RECORD]: record fails validation")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Loading %s", "tables")
	assert.Empty(t, out.String(), "verbose logs must not corrupt JSON output")
	assert.Equal(t, "Loading tables\n", errOut.String())

	formatter.Verbose = false
	formatter.VerboseLog("quiet")
	assert.Equal(t, "Loading tables\n", errOut.String())
}

func TestOutputFormatter_MutationError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.MutationError(&mutate.Error{
		Code:       mutate.CodeInvalidRecord,
		Message:    "record fails validation (1 errors)",
		PatchIndex: -1,
		Fields:     []schema.FieldError{{Path: "/status", Message: "must be one of [a b]"}},
	})
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "INVALID_RECORD", resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_MutationErrorInfrastructure(t *testing.T) {
	formatter := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}}

	err := formatter.MutationError(errors.New("disk full"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitCommandError, "x", errors.New("y")))))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "failed to open database: locked", WrapExitError(ExitCommandError, "failed to open database", errors.New("locked")).Error())
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
}
