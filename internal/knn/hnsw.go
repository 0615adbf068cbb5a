package knn

import (
	"math/rand"

	"github.com/coder/hnsw"
)

// HNSW parameters. The example sets collected during training are small,
// so the graph favors recall over memory.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16

	// hnswEfSearch is the search candidate pool size.
	hnswEfSearch = 100

	// hnswSearchMultiplier requests more candidates than k so the exact
	// re-ranking below can restore a stable order.
	hnswSearchMultiplier = 3

	// hnswSeed fixes level assignment so the same insertions build the same graph.
	hnswSeed = 1
)

// hnswIndex wraps the HNSW graph for approximate neighbor search.
type hnswIndex struct {
	metric   Metric
	distance func(a, b []float32) float64
	graph    *hnsw.Graph[int]
}

func newHNSWIndex(metric Metric) *hnswIndex {
	h := &hnswIndex{metric: metric, distance: metric.Func()}
	h.Reset()
	return h
}

func (h *hnswIndex) Reset() {
	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.EfSearch = hnswEfSearch
	g.Rng = rand.New(rand.NewSource(hnswSeed))
	if h.metric == MetricCosine {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}
	h.graph = g
}

func (h *hnswIndex) Add(id int, vec []float32) {
	h.graph.Add(hnsw.MakeNode(id, vec))
}

func (h *hnswIndex) Search(query []float32, k int) []int {
	if k <= 0 || h.graph.Len() == 0 {
		return nil
	}

	nodes := h.graph.Search(query, k*hnswSearchMultiplier)
	candidates := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		candidates = append(candidates, scored{id: n.Key, distance: h.distance(query, n.Value)})
	}
	return topK(candidates, k)
}
