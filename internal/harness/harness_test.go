package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFile(t *testing.T, name string) *Result {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"lifecycle", "conflicts", "models"} {
		t.Run(name, func(t *testing.T) {
			result := runFile(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			AssertGolden(t, name, result)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	first, err := Snapshot("conflicts", runFile(t, "conflicts"))
	require.NoError(t, err)
	second, err := Snapshot("conflicts", runFile(t, "conflicts"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRun_UnexpectedStepError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad-delete
revision_check: true
steps:
  - event: delete
    connector: cad+onshape+ws1
    oids: [ghost]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 0 (delete)")
	assert.Contains(t, result.Trace[0].Error, "ghost does not exist")
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: no-error
steps:
  - event: insert
    connector: cad+onshape+ws1
    objects:
      - oid: p1
        attributes: { name: bracket }
    expect_error: exists already
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "got success")
	assert.Equal(t, int64(1), result.Trace[0].Timestamp)
}

func TestRun_WrongExpectedError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong-error
steps:
  - event: insert
    connector: not-a-connector
    objects:
      - oid: p1
        attributes: { name: bracket }
    expect_error: collision
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "collision"`)
}

func TestRun_FailingAssertion(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: miscounted
steps:
  - event: insert
    connector: cad+onshape+ws1
    objects:
      - oid: p1
        attributes: { name: bracket }
assertions:
  - type: head_count
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], "expected 2 live objects")
}

func TestRun_MissingModelsDir(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: no-models
models: does-not-exist
steps:
  - event: delete
    connector: cad+onshape+ws1
    oids: [p1]
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	assert.ErrorContains(t, err, "failed to load models")
}
