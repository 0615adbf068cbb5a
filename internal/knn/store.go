package knn

import (
	"fmt"
	"slices"
	"sync"
)

// Label identifies a class of examples.
type Label string

// Example is a labeled embedding kept for the lifetime of a session.
type Example struct {
	Label     Label
	Embedding []float32
}

// Neighbor is a stored example returned by a nearest-neighbor query.
type Neighbor struct {
	ID       int
	Label    Label
	Distance float64
}

// Store is an in-memory, per-label collection of embeddings.
//
// The first example fixes the dimension; later embeddings must match it.
// Labels keep the order in which they were first added, which is the
// tie-break order used by the classifier.
type Store struct {
	mu       sync.RWMutex
	index    Index
	distance func(a, b []float32) float64
	dim      int
	examples []Example
	labels   []Label
	counts   map[Label]int
}

// NewStore creates an empty store searching through index with the given metric.
func NewStore(index Index, metric Metric) *Store {
	return &Store{
		index:    index,
		distance: metric.Func(),
		counts:   make(map[Label]int),
	}
}

// Add appends a copy of embedding under label. No deduplication is done.
func (s *Store) Add(embedding []float32, label Label) error {
	if label == "" {
		return ErrInvalidLabel
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && len(embedding) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	s.add(slices.Clone(embedding), label)
	return nil
}

func (s *Store) add(vec []float32, label Label) {
	if s.dim == 0 {
		s.dim = len(vec)
	}
	id := len(s.examples)
	s.examples = append(s.examples, Example{Label: label, Embedding: vec})
	if s.counts[label] == 0 {
		s.labels = append(s.labels, label)
	}
	s.counts[label]++
	s.index.Add(id, vec)
}

// Nearest returns up to k stored examples closest to query, nearest first,
// along with the store's label order at the time of the query.
func (s *Store) Nearest(query []float32, k int) ([]Neighbor, []Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.examples) == 0 {
		return nil, nil, ErrEmptyStore
	}
	if len(query) != s.dim {
		return nil, nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}

	k = min(k, len(s.examples))
	ids := s.index.Search(query, k)
	neighbors := make([]Neighbor, len(ids))
	for i, id := range ids {
		ex := s.examples[id]
		neighbors[i] = Neighbor{ID: id, Label: ex.Label, Distance: s.distance(query, ex.Embedding)}
	}
	return neighbors, slices.Clone(s.labels), nil
}

// Len returns the total number of stored examples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.examples)
}

// Dim returns the embedding dimension, or 0 for an empty store.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Count returns the number of examples stored for label.
func (s *Store) Count(label Label) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[label]
}

// Counts returns the number of examples per label.
func (s *Store) Counts() map[Label]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Label]int, len(s.counts))
	for l, n := range s.counts {
		out[l] = n
	}
	return out
}

// Labels returns the labels in first-insertion order.
func (s *Store) Labels() []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.labels)
}

// Examples returns a deep copy of all stored examples in insertion order.
func (s *Store) Examples() []Example {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Example, len(s.examples))
	for i, ex := range s.examples {
		out[i] = Example{Label: ex.Label, Embedding: slices.Clone(ex.Embedding)}
	}
	return out
}

// ClearLabel removes every example stored under label and returns how many were removed.
func (s *Store) ClearLabel(label Label) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.counts[label]
	if removed == 0 {
		return 0
	}

	kept := make([]Example, 0, len(s.examples)-removed)
	for _, ex := range s.examples {
		if ex.Label != label {
			kept = append(kept, ex)
		}
	}
	s.rebuild(kept)
	return removed
}

// Reset removes all examples.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuild(nil)
}

// rebuild replaces the contents with examples, preserving their order.
func (s *Store) rebuild(examples []Example) {
	s.index.Reset()
	s.dim = 0
	s.examples = nil
	s.labels = nil
	s.counts = make(map[Label]int)
	for _, ex := range examples {
		s.add(ex.Embedding, ex.Label)
	}
}
