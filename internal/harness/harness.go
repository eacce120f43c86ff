package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/edb/internal/collision"
	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/event"
	"github.com/roach88/edb/internal/model"
	"github.com/roach88/edb/internal/testutil"
)

// revertCommitter commits revert steps.
const revertCommitter = "harness"

// Harness holds the per-run state of a scenario.
type Harness struct {
	db        *edb.Database
	processor *event.Processor
	models    *model.Registry
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Open the database with a deterministic clock and revisions
//  2. Load the CUE models, if any
//  3. Execute the steps in order, recording the trace
//  4. Evaluate the assertions against the final database
//
// The error return is reserved for failures of the harness itself; step
// and assertion failures are reported in the Result.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	logger := testutil.DiscardLogger()
	opts := append(testutil.DeterministicOptions(), edb.WithRevisionCheck(s.RevisionCheck))
	db, err := edb.Open(":memory:", nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()

	h := &Harness{db: db, logger: logger}

	if dir := s.ModelsDir(); dir != "" {
		registry, errs := model.LoadDir(dir)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load models: %w", errors.Join(errs...))
		}
		h.models = registry
	}

	procOpts := []event.Option{event.WithLogger(logger)}
	if s.Collision != nil {
		var detOpts []collision.Option
		if s.Collision.Threshold > 0 {
			detOpts = append(detOpts, collision.WithThreshold(s.Collision.Threshold))
		}
		procOpts = append(procOpts, event.WithDetector(
			collision.NewHeadDetector(db, detOpts...),
			event.CollisionMode(s.Collision.Mode),
		))
	}
	h.processor = event.NewProcessor(db, procOpts...)

	result := NewResult()
	for i, step := range s.Steps {
		entry, stepErr := h.executeStep(ctx, i, step)
		if stepErr != nil {
			entry.Error = stepErr.Error()
		}
		result.Trace = append(result.Trace, entry)

		switch {
		case step.ExpectError != "" && stepErr == nil:
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got success", i, step.Event, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(stepErr.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("step %d (%s): expected error containing %q, got %v", i, step.Event, step.ExpectError, stepErr))
		case step.ExpectError == "" && stepErr != nil:
			result.AddError(fmt.Sprintf("step %d (%s): %v", i, step.Event, stepErr))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, db, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step) (TraceEntry, error) {
	entry := TraceEntry{Step: index, Event: step.Event}

	var ts int64
	var err error
	if step.Event == StepRevert {
		ts, err = h.db.Revert(ctx, step.Revision, revertCommitter)
	} else {
		var ev event.Event
		ev, err = h.buildEvent(step)
		if err != nil {
			return entry, err
		}
		ts, err = h.processor.Process(ctx, ev)
	}
	if err != nil {
		return entry, err
	}

	c, err := h.db.GetCommit(ctx, ts)
	if err != nil {
		return entry, fmt.Errorf("read back commit %d: %w", ts, err)
	}
	if c == nil {
		return entry, fmt.Errorf("commit %d not found after processing", ts)
	}
	entry.Timestamp = ts
	entry.Revision = c.Revision
	entry.Context = c.Context
	entry.OIDs = c.OIDs()
	return entry, nil
}

func (h *Harness) buildEvent(step Step) (event.Event, error) {
	doc := event.Document{
		Kind: event.Kind(step.Event),
		Header: event.Header{
			Connector:    step.Connector,
			Committer:    step.Committer,
			Context:      step.Context,
			Comment:      step.Comment,
			HeadRevision: step.HeadRevision,
		},
		Models:  step.Objects,
		OIDs:    step.OIDs,
		Inserts: step.Inserts,
		Updates: step.Updates,
		Deletes: step.Deletes,
	}
	if h.models == nil {
		return doc.Event(nil)
	}
	return doc.Event(h.models)
}
