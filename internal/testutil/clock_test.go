package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/edb"
)

var _ edb.Clock = (*DeterministicClock)(nil)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Current())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, int64(1), clock.Next(0))
	assert.Equal(t, int64(2), clock.Next(1))
	assert.Equal(t, int64(3), clock.Next(2))
	assert.Equal(t, int64(3), clock.Current())
}

func TestDeterministicClock_NeverBehindLast(t *testing.T) {
	clock := NewDeterministicClock()

	// A store opened with existing commits hands in a newer last.
	assert.Equal(t, int64(51), clock.Next(50))
	assert.Equal(t, int64(52), clock.Next(51))
}

func TestSteppedClock(t *testing.T) {
	clock := NewSteppedClock(1000)

	assert.Equal(t, int64(1000), clock.Next(0))
	assert.Equal(t, int64(2000), clock.Next(1000))

	assert.Equal(t, int64(1), NewSteppedClock(0).Next(0))
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Next(0)
	clock.Next(1)

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, int64(1), clock.Next(0))
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				v := clock.Next(0)
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Current())
}
