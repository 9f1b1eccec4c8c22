package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTurn(i int) Turn {
	return Turn{
		ID:        fmt.Sprintf("turn-%d", i),
		Question:  fmt.Sprintf("question %d", i),
		Answer:    fmt.Sprintf("answer %d", i),
		Timestamp: time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC),
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	m := New(3, nil)
	for i := 0; i < 5; i++ {
		m.Append(makeTurn(i))
	}

	require.Equal(t, 3, m.Len())
	snapshot := m.Snapshot()
	assert.Equal(t, "turn-2", snapshot[0].ID)
	assert.Equal(t, "turn-3", snapshot[1].ID)
	assert.Equal(t, "turn-4", snapshot[2].ID)
}

func TestBoundNeverExceeded(t *testing.T) {
	m := New(4, nil)
	for i := 0; i < 100; i++ {
		m.Append(makeTurn(i))
		assert.LessOrEqual(t, m.Len(), 4)
	}
}

func TestRecentMostRecentLast(t *testing.T) {
	m := New(10, nil)
	for i := 0; i < 6; i++ {
		m.Append(makeTurn(i))
	}

	recent := m.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "turn-3", recent[0].ID)
	assert.Equal(t, "turn-5", recent[2].ID)

	// Oversized limits return everything.
	assert.Len(t, m.Recent(100), 6)
}

func TestRecentZeroLimitReturnsNothing(t *testing.T) {
	m := New(10, nil)
	for i := 0; i < 3; i++ {
		m.Append(makeTurn(i))
	}

	assert.Empty(t, m.Recent(0))
	assert.Empty(t, m.Recent(-1))
}

func TestRecentReturnsCopy(t *testing.T) {
	m := New(10, nil)
	m.Append(makeTurn(0))

	recent := m.Recent(1)
	recent[0].Answer = "mutated"
	assert.Equal(t, "answer 0", m.Snapshot()[0].Answer)
}

func TestSeedTruncatedToBound(t *testing.T) {
	seed := []Turn{makeTurn(0), makeTurn(1), makeTurn(2), makeTurn(3)}
	m := New(2, seed)

	require.Equal(t, 2, m.Len())
	assert.Equal(t, "turn-2", m.Snapshot()[0].ID)
	assert.Equal(t, "turn-3", m.Snapshot()[1].ID)
}
