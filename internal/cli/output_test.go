package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/edb"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(CommitResult{Timestamp: 3, Revision: "rev-3"}))
	resp := decodeResponse(t, buf)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"timestamp": float64(3), "revision": "rev-3", "oids": nil}, resp.Data)

	buf.Reset()
	require.NoError(t, f.Error("CONFLICT", "commit rejected", map[string]string{"oid": "P-1"}))
	resp = decodeResponse(t, buf)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "commit rejected", resp.Error.Message)
	assert.Equal(t, map[string]any{"oid": "P-1"}, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"quiet", false, "Error [NOT_FOUND]: no live version of P-9\n"},
		{"verbose", true, "Error [NOT_FOUND]: no live version of P-9\nDetails: map[oid:P-9]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error("NOT_FOUND", "no live version of P-9", map[string]string{"oid": "P-9"}))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, f.Success("committed rev-1 at 1"))
	assert.Equal(t, "committed rev-1 at 1\n", buf.String())
}

func TestOutputFormatter_VerboseLogGoesToErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	f.VerboseLog("Validated model: %s", "Part")
	assert.Empty(t, out.String())
	assert.Equal(t, "Validated model: Part\n", errOut.String())
	assert.Same(t, errOut, f.GetErrWriter())

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("dropped")
	assert.Empty(t, out.String())
	assert.Same(t, out, quiet.GetErrWriter())
}

func testCommand(format string) (*cobra.Command, *RootOptions, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	return cmd, &RootOptions{Format: format}, buf
}

func TestRender(t *testing.T) {
	oids := []string{"P-2"}
	text := func(w io.Writer) { fmt.Fprintln(w, "P-2") }

	cmd, opts, buf := testCommand("text")
	require.NoError(t, render(cmd, opts, oids, text))
	assert.Equal(t, "P-2\n", buf.String())

	cmd, opts, buf = testCommand("json")
	require.NoError(t, render(cmd, opts, oids, text))
	assert.JSONEq(t, `{"status":"ok","data":["P-2"]}`, buf.String())
}

func TestFail(t *testing.T) {
	cause := &edb.Error{Code: edb.ErrCodeNotFound, Message: "no such object", OID: "P-9"}

	cmd, opts, buf := testCommand("json")
	err := fail(cmd, opts, "get failed", cause)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, edb.IsNotFound(err))
	resp := decodeResponse(t, buf)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "get failed: NOT_FOUND")

	cmd, opts, buf = testCommand("text")
	err = fail(cmd, opts, "get failed", cause)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, buf.String())
}

func TestExitError(t *testing.T) {
	plain := NewExitError(ExitFailure, "verification failed")
	assert.Equal(t, "verification failed", plain.Error())
	assert.Equal(t, ExitFailure, GetExitCode(plain))

	cause := errors.New("disk full")
	wrapped := WrapExitError(ExitCommandError, "failed to open database", cause)
	assert.Equal(t, "failed to open database: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("run: %w", wrapped)))

	assert.Equal(t, ExitFailure, GetExitCode(cause))
}
