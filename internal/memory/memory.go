// Package memory holds the bounded per-session conversation history.
//
// A Memory exclusively owns its session's turn sequence; no other component
// mutates it. Persistence is a boundary concern handled by the TurnStore,
// which loads history at session start and flushes after each completed
// turn.
package memory

import (
	"sync"
	"time"
)

// Turn is one completed question/answer exchange. Turns are immutable once
// appended.
type Turn struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Citations []string  `json:"citations,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory is a bounded, ordered turn sequence. When the bound is exceeded
// the oldest turns are evicted first.
type Memory struct {
	mu       sync.RWMutex
	turns    []Turn
	maxTurns int
}

// New creates a Memory bounded to maxTurns, seeded with previously
// persisted turns. If the seed exceeds the bound, only the most recent
// turns are kept.
func New(maxTurns int, seed []Turn) *Memory {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	turns := make([]Turn, 0, maxTurns)
	if over := len(seed) - maxTurns; over > 0 {
		seed = seed[over:]
	}
	turns = append(turns, seed...)

	return &Memory{
		turns:    turns,
		maxTurns: maxTurns,
	}
}

// Append adds a turn, evicting the oldest if the bound is exceeded.
func (m *Memory) Append(turn Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, turn)
	if len(m.turns) > m.maxTurns {
		over := len(m.turns) - m.maxTurns
		m.turns = append(m.turns[:0], m.turns[over:]...)
	}
}

// Recent returns up to limit of the most recent turns, most-recent-last.
// A limit of zero or less returns nothing. The returned slice is a copy.
func (m *Memory) Recent(limit int) []Turn {
	if limit <= 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit > len(m.turns) {
		limit = len(m.turns)
	}
	out := make([]Turn, limit)
	copy(out, m.turns[len(m.turns)-limit:])
	return out
}

// Len returns the current number of turns.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Snapshot returns a copy of the full turn sequence, oldest first.
func (m *Memory) Snapshot() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}
