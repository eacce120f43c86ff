package event

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roach88/edb/internal/collision"
	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/metrics"
)

// CollisionMode decides what happens when inserts collide with existing objects.
type CollisionMode string

const (
	CollisionIgnore CollisionMode = "ignore" // detector is not consulted
	CollisionWarn   CollisionMode = "warn"   // collisions are logged, the event commits
	CollisionReject CollisionMode = "reject" // the event fails with *CollisionError
)

// ParseCollisionMode parses a configured mode.
func ParseCollisionMode(s string) (CollisionMode, error) {
	switch m := CollisionMode(s); m {
	case CollisionIgnore, CollisionWarn, CollisionReject:
		return m, nil
	case "":
		return CollisionIgnore, nil
	default:
		return "", fmt.Errorf("unknown collision mode %q (want ignore, warn or reject)", s)
	}
}

// Result is the outcome of one event processed by the Run loop.
type Result struct {
	Kind      Kind
	Context   string
	Timestamp int64
	Err       error
}

// Processor turns events into commits: one event, one commit, one timestamp.
//
// Thread-safety model:
//   - Process* methods: safe from any goroutine; commits serialize inside
//     the database
//   - Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Processor struct {
	db        *edb.Database
	detector  collision.Detector
	mode      CollisionMode
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onResult  func(Result)
	queueSize int
	queue     *queue

	lockContexts bool
	locks        *xsync.MapOf[string, struct{}]
}

// Option configures a Processor.
type Option func(*Processor)

// WithDetector sets the collision detector and mode.
func WithDetector(d collision.Detector, mode CollisionMode) Option {
	return func(p *Processor) {
		p.detector = d
		p.mode = mode
	}
}

// WithContextLocking rejects a write into a context that another write is
// still committing into.
func WithContextLocking(enabled bool) Option {
	return func(p *Processor) { p.lockContexts = enabled }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetrics records processed events on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithResultHandler receives the outcome of every event handled by Run.
func WithResultHandler(fn func(Result)) Option {
	return func(p *Processor) { p.onResult = fn }
}

// WithQueueSize bounds the Run queue. 0 means unbounded.
func WithQueueSize(n int) Option {
	return func(p *Processor) { p.queueSize = n }
}

// NewProcessor creates a processor writing into db.
func NewProcessor(db *edb.Database, opts ...Option) *Processor {
	p := &Processor{
		db:       db,
		detector: collision.NopDetector{},
		mode:     CollisionIgnore,
		logger:   slog.Default(),
		locks:    xsync.NewMapOf[string, struct{}](),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = newQueue(p.queueSize)
	return p
}

// ProcessInsertEvent commits the event's models as inserts.
func (p *Processor) ProcessInsertEvent(ctx context.Context, ev InsertEvent) (int64, error) {
	return p.Process(ctx, ev)
}

// ProcessUpdateEvent commits the event's models as updates.
func (p *Processor) ProcessUpdateEvent(ctx context.Context, ev UpdateEvent) (int64, error) {
	return p.Process(ctx, ev)
}

// ProcessDeleteEvent commits deletes of the event's OIDs.
func (p *Processor) ProcessDeleteEvent(ctx context.Context, ev DeleteEvent) (int64, error) {
	return p.Process(ctx, ev)
}

// ProcessBatchEvent commits every operation of the batch in one commit.
func (p *Processor) ProcessBatchEvent(ctx context.Context, ev BatchEvent) (int64, error) {
	return p.Process(ctx, ev)
}

// Process commits any event and returns the commit timestamp.
func (p *Processor) Process(ctx context.Context, ev Event) (int64, error) {
	ts, err := p.process(ctx, ev)
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.metrics.EventProcessed(string(ev.Kind()), result)
	return ts, err
}

func (p *Processor) process(ctx context.Context, ev Event) (int64, error) {
	h := ev.header()
	conn, err := ir.ParseConnectorID(h.Connector)
	if err != nil {
		return 0, &edb.Error{Code: edb.ErrCodeValidation, Message: "invalid connector id", Err: err}
	}
	committer := h.Committer
	if committer == "" {
		committer = conn.String()
	}
	commitCtx := h.Context
	if commitCtx == "" {
		commitCtx = conn.Domain
	}

	if p.lockContexts {
		if _, held := p.locks.LoadOrStore(commitCtx, struct{}{}); held {
			return 0, &ContextBusyError{Context: commitCtx}
		}
		defer p.locks.Delete(commitCtx)
	}

	inserts, updates, deletes := ops(ev)
	if err := p.checkCollisions(ctx, commitCtx, inserts); err != nil {
		return 0, err
	}

	c := p.db.CreateCommit(committer, commitCtx)
	c.SetConnector(conn)
	c.SetComment(h.Comment)
	if h.HeadRevision != "" {
		c.ExpectHead(h.HeadRevision)
	}
	for _, obj := range inserts {
		if err := c.Insert(obj); err != nil {
			return 0, err
		}
	}
	for _, obj := range updates {
		if err := c.Update(obj); err != nil {
			return 0, err
		}
	}
	for _, oid := range deletes {
		if err := c.Delete(oid); err != nil {
			return 0, err
		}
	}

	ts, err := p.db.Commit(ctx, c)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("event committed",
		"kind", ev.Kind(),
		"connector", conn.String(),
		"context", commitCtx,
		"timestamp", ts,
	)
	return ts, nil
}

// checkCollisions consults the detector for inserts. It runs before the
// commit and only reads the store.
func (p *Processor) checkCollisions(ctx context.Context, commitCtx string, inserts []ir.Object) error {
	if p.mode == CollisionIgnore || len(inserts) == 0 {
		return nil
	}

	found, err := p.detector.FindCollisions(ctx, inserts)
	if err != nil {
		return &edb.Error{Code: edb.ErrCodeBackend, Message: "collision detection", Err: err}
	}
	if len(found) != len(inserts) {
		return &edb.Error{
			Code:    edb.ErrCodeBackend,
			Message: fmt.Sprintf("collision detector returned %d results for %d samples", len(found), len(inserts)),
		}
	}

	collisions := make(map[string][]string)
	for i, candidates := range found {
		if len(candidates) > 0 {
			collisions[inserts[i].OID] = candidates
		}
	}
	if len(collisions) == 0 {
		return nil
	}

	if p.mode == CollisionReject {
		return &CollisionError{Collisions: collisions}
	}
	for _, oid := range sortedKeys(collisions) {
		p.logger.Warn("insert collides with existing objects",
			"oid", oid,
			"context", commitCtx,
			"candidates", collisions[oid],
		)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Enqueue submits an event to the Run loop.
// Returns false if the processor is stopped or the queue is full.
func (p *Processor) Enqueue(ev Event) bool {
	return p.queue.Enqueue(ev)
}

// Run processes queued events one at a time until ctx is cancelled or Stop
// is called and the queue has drained.
//
// A failed event is logged and reported to the result handler; processing
// continues with the next event.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("event processor starting")

	for {
		ev, ok := p.queue.TryDequeue()
		if ok {
			ts, err := p.Process(ctx, ev)
			if err != nil {
				p.logger.Error("event failed",
					"kind", ev.Kind(),
					"connector", ev.header().Connector,
					"error", err,
				)
			}
			if p.onResult != nil {
				p.onResult(Result{Kind: ev.Kind(), Context: ev.header().Context, Timestamp: ts, Err: err})
			}
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("event processor stopping: context cancelled")
			p.queue.Close()
			return ctx.Err()

		case <-p.queue.Wait():
			// The signal channel is closed with the queue, so a closed and
			// drained queue lands here with nothing left.
			if p.queue.Len() == 0 && p.stopped() {
				p.logger.Info("event processor stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queued events are processed.
func (p *Processor) Stop() {
	p.queue.Close()
}

func (p *Processor) stopped() bool {
	p.queue.mu.Lock()
	defer p.queue.mu.Unlock()
	return p.queue.closed
}
