package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "conflicts.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "conflicts", s.Name)
	assert.True(t, s.RevisionCheck)
	require.NotNil(t, s.Collision)
	assert.Equal(t, "reject", s.Collision.Mode)
	require.Len(t, s.Steps, 7)
	assert.Equal(t, StepBatch, s.Steps[3].Event)
	assert.Equal(t, "rev-1", s.Steps[3].HeadRevision)
	assert.Equal(t, []string{"ENG-1"}, s.Steps[3].Deletes)
	assert.Equal(t, "rev-2", s.Steps[6].Revision)
	assert.Len(t, s.Assertions, 9)
}

func TestLoadScenario_ModelsDirResolvesAgainstFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "models.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "models"), s.ModelsDir())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nstep: []\n"), 0o644))

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "steps: [{event: delete, connector: a+b+c, oids: [x]}]", "name is required"},
		{"no steps", "name: x", "at least one step"},
		{"missing connector", "name: x\nsteps: [{event: delete, oids: [x]}]", "connector is required"},
		{"unknown event", "name: x\nsteps: [{event: merge, connector: a+b+c}]", `unknown event "merge"`},
		{"empty insert", "name: x\nsteps: [{event: insert, connector: a+b+c}]", "objects are required"},
		{"empty delete", "name: x\nsteps: [{event: delete, connector: a+b+c}]", "oids are required"},
		{"empty batch", "name: x\nsteps: [{event: batch, connector: a+b+c}]", "batch has no operations"},
		{"revert without revision", "name: x\nsteps: [{event: revert}]", "revision is required"},
		{"object without oid", "name: x\nsteps: [{event: insert, connector: a+b+c, objects: [{attributes: {a: 1}}]}]", "needs an oid or a model"},
		{"bad collision mode", "name: x\ncollision: {mode: ignore}\nsteps: [{event: delete, connector: a+b+c, oids: [x]}]", "collision.mode"},
		{"unknown assertion", "name: x\nsteps: [{event: delete, connector: a+b+c, oids: [x]}]\nassertions: [{type: trace_order}]", `unknown assertion type "trace_order"`},
		{"head_contains without oid", "name: x\nsteps: [{event: delete, connector: a+b+c, oids: [x]}]\nassertions: [{type: head_contains}]", "oid is required"},
		{"query_count without params", "name: x\nsteps: [{event: delete, connector: a+b+c, oids: [x]}]\nassertions: [{type: query_count}]", "params are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
