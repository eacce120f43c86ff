// Package collision finds existing objects that look like incoming ones.
//
// The event processor consults a Detector before inserting objects so that a
// connector re-importing an entity under a new local id can be caught. The
// similarity metric is pluggable; the package only fixes the shape and order
// of the result.
package collision

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash"

	"github.com/roach88/edb/internal/ir"
)

// Detector finds, for each sample, the existing OIDs most similar to it.
//
// The result has one entry per sample, in sample order. Each entry lists
// OIDs by descending similarity (index 0 is the best match) and is empty,
// never nil, when nothing is similar enough.
type Detector interface {
	FindCollisions(ctx context.Context, samples []ir.Object) ([][]string, error)
}

// Metric scores the similarity of two objects in [0, 1].
type Metric interface {
	Similarity(a, b ir.Object) float64
}

// MetricFunc adapts a function to Metric.
type MetricFunc func(a, b ir.Object) float64

// Similarity implements Metric.
func (f MetricFunc) Similarity(a, b ir.Object) float64 { return f(a, b) }

// Fingerprint hashes every attribute of obj, type tag included, into a set
// of 64-bit values.
func Fingerprint(obj ir.Object) map[uint64]struct{} {
	fp := make(map[uint64]struct{}, len(obj.Attributes))
	for _, k := range obj.Attributes.SortedKeys() {
		v := obj.Attributes[k]
		var b strings.Builder
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(string(ir.TypeOf(v)))
		b.WriteByte(0)
		b.WriteString(ir.FormatValue(v))
		fp[xxhash.Sum64String(b.String())] = struct{}{}
	}
	return fp
}

// Jaccard is the default Metric: |A∩B| / |A∪B| over attribute fingerprints.
// Two objects without attributes have similarity 0.
var Jaccard Metric = MetricFunc(func(a, b ir.Object) float64 {
	return jaccard(Fingerprint(a), Fingerprint(b))
})

func jaccard(a, b map[uint64]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for h := range a {
		if _, ok := b[h]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// Match is one candidate with its score.
type Match struct {
	OID   string  `json:"oid"`
	Score float64 `json:"score"`
}

// HeadReader reads the current live objects.
type HeadReader interface {
	Head(ctx context.Context) ([]ir.Object, error)
}

// HeadDetector compares samples against every live object of the head.
type HeadDetector struct {
	source    HeadReader
	metric    Metric
	threshold float64
	limit     int
}

// DefaultThreshold is the minimum score reported by NewHeadDetector.
const DefaultThreshold = 0.8

// Option configures a HeadDetector.
type Option func(*HeadDetector)

// WithMetric replaces the Jaccard metric.
func WithMetric(m Metric) Option {
	return func(d *HeadDetector) { d.metric = m }
}

// WithThreshold sets the minimum score a candidate needs.
func WithThreshold(t float64) Option {
	return func(d *HeadDetector) { d.threshold = t }
}

// WithLimit caps the number of candidates per sample. 0 means no cap.
func WithLimit(n int) Option {
	return func(d *HeadDetector) { d.limit = n }
}

// NewHeadDetector creates a detector over source.
func NewHeadDetector(source HeadReader, opts ...Option) *HeadDetector {
	d := &HeadDetector{source: source, metric: Jaccard, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindCollisions implements Detector.
func (d *HeadDetector) FindCollisions(ctx context.Context, samples []ir.Object) ([][]string, error) {
	scored, err := d.FindScored(ctx, samples)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(scored))
	for i, matches := range scored {
		out[i] = make([]string, len(matches))
		for j, m := range matches {
			out[i][j] = m.OID
		}
	}
	return out, nil
}

// FindScored is FindCollisions with scores. A sample never matches its own
// OID. Ties are broken by OID so the order is deterministic.
func (d *HeadDetector) FindScored(ctx context.Context, samples []ir.Object) ([][]Match, error) {
	out := make([][]Match, len(samples))
	if len(samples) == 0 {
		return out, nil
	}

	head, err := d.source.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("find collisions: %w", err)
	}

	for i, sample := range samples {
		matches := []Match{}
		for _, existing := range head {
			if existing.OID == sample.OID {
				continue
			}
			score := d.metric.Similarity(sample, existing)
			if score >= d.threshold && score > 0 {
				matches = append(matches, Match{OID: existing.OID, Score: score})
			}
		}
		slices.SortFunc(matches, func(a, b Match) int {
			switch {
			case a.Score > b.Score:
				return -1
			case a.Score < b.Score:
				return 1
			default:
				return strings.Compare(a.OID, b.OID)
			}
		})
		if d.limit > 0 && len(matches) > d.limit {
			matches = matches[:d.limit]
		}
		out[i] = matches
	}
	return out, nil
}

// NopDetector never reports a collision.
type NopDetector struct{}

// FindCollisions returns one empty list per sample.
func (NopDetector) FindCollisions(_ context.Context, samples []ir.Object) ([][]string, error) {
	out := make([][]string, len(samples))
	for i := range out {
		out[i] = []string{}
	}
	return out, nil
}
