// Package history keeps the transcript of translated utterances.
//
// [Memory] is a bounded in-process store; the postgres subpackage persists
// entries across runs.
package history

import (
	"context"
	"sync"

	"github.com/MrWong99/polyglot/pkg/types"
)

// DefaultMaxEntries bounds a [Memory] store created with a non-positive size.
const DefaultMaxEntries = 100

// Entry is one translated utterance together with where it happened.
type Entry struct {
	types.TranslationResult

	// SessionID identifies the session that produced the entry.
	SessionID string `json:"sessionId"`

	// Room is the relay room code, empty in solo mode.
	Room string `json:"room,omitempty"`
}

// Store persists history entries.
type Store interface {
	// Add appends e.
	Add(ctx context.Context, e Entry) error

	// List returns up to limit entries, newest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

var _ Store = (*Memory)(nil)

// Memory is a bounded ring of the most recent entries. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries []Entry // oldest first
}

// NewMemory returns a store keeping at most size entries.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMaxEntries
	}
	return &Memory{max: size}
}

// Add appends e, evicting the oldest entry when full. The synthesized audio
// is not retained.
func (m *Memory) Add(_ context.Context, e Entry) error {
	e.Audio = nil
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.max {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, e)
	return nil
}

// List returns up to limit entries, newest first.
func (m *Memory) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Clear removes every entry.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
