package edb

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RevisionGenerator produces commit revision ids.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type RevisionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 revision ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... so test output
// and golden traces are stable.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
