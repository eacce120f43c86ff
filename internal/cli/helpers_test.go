package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// env is a scratch directory with a config pointing at its own database.
type env struct {
	dir    string
	config string
}

// newEnv writes a config with a logical clock, so timestamps run 1, 2, 3
// across invocations, and revision checks enabled.
func newEnv(t *testing.T, extra string) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  path: %s
clock:
  mode: logical
commit:
  revision_check: true
log:
  level: error
%s`, filepath.Join(dir, "edb.db"), extra)
	path := filepath.Join(dir, "edb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &env{dir: dir, config: path}
}

// file writes name under the env directory and returns its path.
func (e *env) file(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

// run executes the root command and returns stdout.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun fails the test if the command fails.
func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)
	return out
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runJSON executes with --format json and decodes the response data into v.
func (e *env) runJSON(t *testing.T, v any, args ...string) response {
	t.Helper()
	out, _ := e.run(t, append([]string{"--format", "json"}, args...)...)
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, v))
	}
	return resp
}

const firstCommit = `committer: alice
context: cad
comment: initial parts
inserts:
  - oid: P-1
    attributes: { name: bracket, mass: 40 }
  - oid: P-2
    attributes: { name: bolt, mass: 5 }
`

const secondCommit = `committer: bob
context: cad
updates:
  - oid: P-1
    attributes: { name: bracket, mass: 38 }
deletes: [P-2]
`

// seed applies the two commits above at timestamps 1 and 2 and returns
// their revisions.
func (e *env) seed(t *testing.T) (rev1, rev2 string) {
	t.Helper()
	var r1, r2 CommitResult
	resp := e.runJSON(t, &r1, "commit", e.file(t, "c1.yaml", firstCommit))
	require.Equal(t, "ok", resp.Status)
	resp = e.runJSON(t, &r2, "commit", e.file(t, "c2.yaml", secondCommit))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, int64(1), r1.Timestamp)
	require.Equal(t, int64(2), r2.Timestamp)
	return r1.Revision, r2.Revision
}
