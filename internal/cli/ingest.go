package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/collision"
	"github.com/roach88/edb/internal/config"
	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/event"
	"github.com/roach88/edb/internal/metrics"
)

// EventResult is the outcome of one ingested event.
type EventResult struct {
	Kind      string `json:"kind"`
	Context   string `json:"context,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Events    []EventResult `json:"events"`
	Committed int           `json:"committed"`
	Failed    int           `json:"failed"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <events.yaml>...",
		Short: "Process connector events",
		Long: `Process the YAML event documents of one or more files through the event
processor, in file order. Each event becomes exactly one commit.

  kind: insert
  connector: cad+onshape+ws1
  models:
    - model: Part
      attributes: { number: B-100, name: bracket, mass: 40 }
  ---
  kind: delete
  connector: cad+onshape+ws1
  oids: [cad+onshape+ws1/B-099]

Collision detection, context locking and the queue size come from the
events section of the config. A failed event is reported and the remaining
events are still processed.

Exit codes:
  0 - All events committed
  1 - One or more events failed
  2 - Command error (unreadable file, bad document, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, files []string, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	registry, err := loadModels(opts)
	if err != nil {
		return err
	}
	var conv event.Converter
	if registry != nil {
		conv = registry
	}

	// Build every event before touching the database so a bad file
	// commits nothing.
	var events []event.Event
	for _, path := range files {
		evs, err := readEvents(path, conv)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
		}
		events = append(events, evs...)
	}

	db, m, err := openDatabase(cmd, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	var mu sync.Mutex
	result := IngestResult{Events: make([]EventResult, 0, len(events))}
	onResult := func(r event.Result) {
		mu.Lock()
		defer mu.Unlock()
		er := EventResult{Kind: string(r.Kind), Context: r.Context, Timestamp: r.Timestamp}
		if r.Err != nil {
			er.Error = r.Err.Error()
			result.Failed++
		} else {
			result.Committed++
		}
		result.Events = append(result.Events, er)
	}

	proc, err := newProcessor(db, cfg, m, opts, cmd, onResult)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid events config", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()

	for _, ev := range events {
		// A bounded queue refuses events until Run catches up.
		for !proc.Enqueue(ev) {
			time.Sleep(time.Millisecond)
		}
	}
	proc.Stop()
	if err := <-done; err != nil {
		return WrapExitError(ExitCommandError, "event processor stopped", err)
	}

	if err := render(cmd, opts, result, func(w io.Writer) {
		for i, er := range result.Events {
			if er.Error != "" {
				fmt.Fprintf(w, "✗ event %d (%s): %s\n", i, er.Kind, er.Error)
				continue
			}
			fmt.Fprintf(w, "✓ event %d (%s) committed at %d\n", i, er.Kind, er.Timestamp)
		}
		fmt.Fprintf(w, "\nIngest Summary: %d committed, %d failed\n", result.Committed, result.Failed)
	}); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d event(s) failed", result.Failed))
	}
	return nil
}

func readEvents(path string, conv event.Converter) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := event.DecodeDocuments(f)
	if err != nil {
		return nil, err
	}
	events := make([]event.Event, 0, len(docs))
	for i, doc := range docs {
		ev, err := doc.Event(conv)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func newProcessor(db *edb.Database, cfg config.Config, m *metrics.Metrics, opts *RootOptions, cmd *cobra.Command, onResult func(event.Result)) (*event.Processor, error) {
	mode, err := event.ParseCollisionMode(cfg.Events.Collision.Mode)
	if err != nil {
		return nil, err
	}

	procOpts := []event.Option{
		event.WithLogger(cfg.Logger(cmd.ErrOrStderr())),
		event.WithMetrics(m),
		event.WithContextLocking(cfg.Events.ContextLocking),
		event.WithQueueSize(cfg.Events.QueueSize),
		event.WithResultHandler(onResult),
	}
	if mode != event.CollisionIgnore {
		var detOpts []collision.Option
		if cfg.Events.Collision.Threshold > 0 {
			detOpts = append(detOpts, collision.WithThreshold(cfg.Events.Collision.Threshold))
		}
		if cfg.Events.Collision.Limit > 0 {
			detOpts = append(detOpts, collision.WithLimit(cfg.Events.Collision.Limit))
		}
		procOpts = append(procOpts, event.WithDetector(collision.NewHeadDetector(db, detOpts...), mode))
	}
	newFormatter(cmd, opts).VerboseLog("collision mode %s, context locking %v", mode, cfg.Events.ContextLocking)
	return event.NewProcessor(db, procOpts...), nil
}
