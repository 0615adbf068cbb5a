package knn

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// IndexKind selects the neighbor search backend.
type IndexKind string

// Supported index kinds.
const (
	IndexExact IndexKind = "exact"
	IndexHNSW  IndexKind = "hnsw"
)

// ParseIndexKind parses an index kind, defaulting to exact search.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", IndexExact:
		return IndexExact, nil
	case IndexHNSW:
		return IndexHNSW, nil
	default:
		return "", fmt.Errorf("unknown index kind %q", s)
	}
}

// Index finds the stored vectors closest to a query.
// Search returns example ids ordered by ascending distance, equal distances by ascending id.
type Index interface {
	Add(id int, vec []float32)
	Search(query []float32, k int) []int
	Reset()
}

// NewIndex creates an empty index of the given kind.
func NewIndex(kind IndexKind, metric Metric) (Index, error) {
	switch kind {
	case "", IndexExact:
		return newExactIndex(metric), nil
	case IndexHNSW:
		return newHNSWIndex(metric), nil
	default:
		return nil, fmt.Errorf("unknown index kind %q", kind)
	}
}

type indexEntry struct {
	id  int
	vec []float32
}

type scored struct {
	id       int
	distance float64
}

// exactIndex is a brute-force index; results are exact and deterministic.
type exactIndex struct {
	distance func(a, b []float32) float64
	entries  []indexEntry
}

func newExactIndex(metric Metric) *exactIndex {
	return &exactIndex{distance: metric.Func()}
}

func (e *exactIndex) Add(id int, vec []float32) {
	e.entries = append(e.entries, indexEntry{id: id, vec: vec})
}

func (e *exactIndex) Search(query []float32, k int) []int {
	if k <= 0 || len(e.entries) == 0 {
		return nil
	}
	candidates := make([]scored, len(e.entries))
	for i, entry := range e.entries {
		candidates[i] = scored{id: entry.id, distance: e.distance(query, entry.vec)}
	}
	return topK(candidates, k)
}

func (e *exactIndex) Reset() {
	e.entries = nil
}

// topK sorts candidates by (distance, id) and returns the first k ids.
func topK(candidates []scored, k int) []int {
	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	k = min(k, len(candidates))
	ids := make([]int, k)
	for i := range k {
		ids[i] = candidates[i].id
	}
	return ids
}
