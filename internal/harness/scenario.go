package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/edb/internal/event"
)

// Scenario defines one harness run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Models is a directory of CUE model schemas, relative to the scenario
	// file. Objects that name a model are converted through it.
	Models string `yaml:"models,omitempty"`

	// RevisionCheck enables the conflict check and head revision checks.
	RevisionCheck bool `yaml:"revision_check,omitempty"`

	// Collision enables the collision detector for inserts.
	Collision *CollisionSpec `yaml:"collision,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`

	dir string
}

// CollisionSpec configures collision detection for a scenario.
type CollisionSpec struct {
	Mode      string  `yaml:"mode"` // warn | reject
	Threshold float64 `yaml:"threshold,omitempty"`
}

// Step is one event or revert.
type Step struct {
	// Event is insert, update, delete, batch or revert.
	Event string `yaml:"event"`

	Connector    string `yaml:"connector,omitempty"`
	Committer    string `yaml:"committer,omitempty"`
	Context      string `yaml:"context,omitempty"`
	Comment      string `yaml:"comment,omitempty"`
	HeadRevision string `yaml:"head_revision,omitempty"`

	// Objects are the models of an insert or update event.
	Objects []ObjectSpec `yaml:"objects,omitempty"`

	// OIDs are deleted by a delete event.
	OIDs []string `yaml:"oids,omitempty"`

	// Batch operations.
	Inserts []ObjectSpec `yaml:"inserts,omitempty"`
	Updates []ObjectSpec `yaml:"updates,omitempty"`
	Deletes []string     `yaml:"deletes,omitempty"`

	// Revision is the commit a revert step undoes.
	Revision string `yaml:"revision,omitempty"`

	// ExpectError, when set, makes the step pass only if it fails with an
	// error containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ObjectSpec describes one object of an event.
type ObjectSpec = event.ObjectDoc

// Assertion checks database state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// At is the timestamp to evaluate at. 0 means the head.
	At int64 `yaml:"at,omitempty"`

	Count int    `yaml:"count,omitempty"`
	OID   string `yaml:"oid,omitempty"`

	// Attributes is a subset the object must carry (head_contains).
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// Diff window and expected OIDs (diff_changed).
	From    int64    `yaml:"from,omitempty"`
	To      int64    `yaml:"to,omitempty"`
	Added   []string `yaml:"added,omitempty"`
	Removed []string `yaml:"removed,omitempty"`
	Changed []string `yaml:"changed,omitempty"`

	// OIDs expected by resurrected.
	OIDs []string `yaml:"oids,omitempty"`

	// Params of a query_count query.
	Params map[string]any `yaml:"params,omitempty"`
}

// Assertion type constants.
const (
	AssertHeadCount     = "head_count"
	AssertHeadContains  = "head_contains"
	AssertHistoryLength = "history_length"
	AssertDiffChanged   = "diff_changed"
	AssertResurrected   = "resurrected"
	AssertQueryCount    = "query_count"
)

// Step event names.
const (
	StepInsert = "insert"
	StepUpdate = "update"
	StepDelete = "delete"
	StepBatch  = "batch"
	StepRevert = "revert"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario parses scenario YAML. Relative model paths resolve against
// the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// ModelsDir returns the resolved models directory, or "" if none.
func (s *Scenario) ModelsDir() string {
	if s.Models == "" || filepath.IsAbs(s.Models) {
		return s.Models
	}
	return filepath.Join(s.dir, s.Models)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if s.Collision != nil {
		switch s.Collision.Mode {
		case "warn", "reject":
		default:
			return fmt.Errorf("collision.mode %q: want warn or reject", s.Collision.Mode)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	if step.Event != StepRevert && step.Connector == "" {
		return fmt.Errorf("steps[%d]: connector is required for %s", index, step.Event)
	}
	switch step.Event {
	case StepInsert, StepUpdate:
		if len(step.Objects) == 0 {
			return fmt.Errorf("steps[%d]: objects are required for %s", index, step.Event)
		}
	case StepDelete:
		if len(step.OIDs) == 0 {
			return fmt.Errorf("steps[%d]: oids are required for delete", index)
		}
	case StepBatch:
		if len(step.Inserts)+len(step.Updates)+len(step.Deletes) == 0 {
			return fmt.Errorf("steps[%d]: batch has no operations", index)
		}
	case StepRevert:
		if step.Revision == "" {
			return fmt.Errorf("steps[%d]: revision is required for revert", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: event is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown event %q", index, step.Event)
	}

	for _, specs := range [][]ObjectSpec{step.Objects, step.Inserts, step.Updates} {
		for j, o := range specs {
			if o.OID == "" && o.Model == "" {
				return fmt.Errorf("steps[%d]: object %d needs an oid or a model", index, j)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	if a.At < 0 {
		return fmt.Errorf("assertions[%d]: at must be non-negative", index)
	}
	switch a.Type {
	case AssertHeadCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for head_count", index)
		}
	case AssertHeadContains:
		if a.OID == "" {
			return fmt.Errorf("assertions[%d]: oid is required for head_contains", index)
		}
	case AssertHistoryLength:
		if a.OID == "" {
			return fmt.Errorf("assertions[%d]: oid is required for history_length", index)
		}
	case AssertDiffChanged:
		if a.From < 0 || a.To < 0 {
			return fmt.Errorf("assertions[%d]: from and to must be non-negative for diff_changed", index)
		}
	case AssertResurrected:
	case AssertQueryCount:
		if len(a.Params) == 0 {
			return fmt.Errorf("assertions[%d]: params are required for query_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
