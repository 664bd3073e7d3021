// Package history keeps bounded per-model training history.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/iphwatch/backend/internal/domain"
)

// Ring is a fixed-capacity buffer per key. When a key is full, its oldest
// entry is overwritten.
type Ring[T any] struct {
	capacity int
	buffers  map[string]*ring[T]
	order    []string
}

type ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity items per key
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{capacity: capacity, buffers: make(map[string]*ring[T])}
}

// Push appends item under key, evicting that key's oldest item when full
func (r *Ring[T]) Push(key string, item T) {
	b, ok := r.buffers[key]
	if !ok {
		b = &ring[T]{items: make([]T, r.capacity)}
		r.buffers[key] = b
		r.order = append(r.order, key)
	}
	idx := (b.head + b.size) % r.capacity
	b.items[idx] = item
	if b.size < r.capacity {
		b.size++
	} else {
		b.head = (b.head + 1) % r.capacity
	}
}

// Items returns key's items, oldest first
func (r *Ring[T]) Items(key string) []T {
	b, ok := r.buffers[key]
	if !ok {
		return nil
	}
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%r.capacity]
	}
	return out
}

// Len returns the number of items held for key
func (r *Ring[T]) Len(key string) int {
	if b, ok := r.buffers[key]; ok {
		return b.size
	}
	return 0
}

// Keys returns every key in first-seen order
func (r *Ring[T]) Keys() []string {
	return append([]string(nil), r.order...)
}

// MemoryStore is an in-process domain.HistoryStore
type MemoryStore struct {
	mu   sync.RWMutex
	ring *Ring[domain.HistoryEntry]
}

// NewMemoryStore creates a store retaining limit entries per model
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{ring: NewRing[domain.HistoryEntry](limit)}
}

// Append adds entries under their model names
func (s *MemoryStore) Append(ctx context.Context, entries []domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.ring.Push(e.ModelName, e)
	}
	return nil
}

// List returns all retained entries ordered by training time
func (s *MemoryStore) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.HistoryEntry
	for _, key := range s.ring.Keys() {
		out = append(out, s.ring.Items(key)...)
	}
	SortByTime(out)
	return out, nil
}

// SortByTime orders entries by TrainedAt, keeping insertion order on ties
func SortByTime(entries []domain.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TrainedAt.Before(entries[j].TrainedAt)
	})
}

// GroupByModel splits entries by model name, preserving their order
func GroupByModel(entries []domain.HistoryEntry) map[string][]domain.HistoryEntry {
	groups := make(map[string][]domain.HistoryEntry)
	for _, e := range entries {
		groups[e.ModelName] = append(groups[e.ModelName], e)
	}
	return groups
}

// Trim keeps the newest limit entries per model. entries must be ordered
// oldest first.
func Trim(entries []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	r := NewRing[domain.HistoryEntry](limit)
	for _, e := range entries {
		r.Push(e.ModelName, e)
	}
	var out []domain.HistoryEntry
	for _, key := range r.Keys() {
		out = append(out, r.Items(key)...)
	}
	SortByTime(out)
	return out
}
