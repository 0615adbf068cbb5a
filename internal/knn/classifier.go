// Package knn implements the few-shot example store and the k-nearest-neighbor
// classifier used to label frame embeddings.
//
// Predictions use a plain majority vote: the k stored examples closest to the
// query (Euclidean distance on raw embeddings by default) each cast one vote
// for their label, and confidence[label] = votes / k. Ties between neighbors
// at equal distance are broken by insertion order, ties between labels by the
// order in which labels were first added.
package knn

import (
	"fmt"
)

// DefaultK is the number of neighbors consulted per prediction.
const DefaultK = 10

// Config configures a Classifier.
type Config struct {
	K      int
	Metric Metric
	Index  IndexKind
}

// DefaultConfig returns k=10 exact Euclidean search.
func DefaultConfig() Config {
	return Config{K: DefaultK, Metric: MetricEuclidean, Index: IndexExact}
}

// Prediction is the outcome of classifying one embedding.
type Prediction struct {
	Label       Label             `json:"label"`
	Confidences map[Label]float64 `json:"confidences"`
	K           int               `json:"k"`
}

// Confidence returns the vote share for label, 0 if the label is unknown.
func (p Prediction) Confidence(label Label) float64 {
	return p.Confidences[label]
}

// Classifier labels embeddings by k-nearest-neighbor vote over an ExampleStore.
type Classifier struct {
	store *Store
	k     int
}

// New creates a classifier with an empty store.
func New(cfg Config) (*Classifier, error) {
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricEuclidean
	}
	index, err := NewIndex(cfg.Index, cfg.Metric)
	if err != nil {
		return nil, err
	}
	return &Classifier{store: NewStore(index, cfg.Metric), k: cfg.K}, nil
}

// K returns the configured neighbor count.
func (c *Classifier) K() int {
	return c.k
}

// Store returns the underlying example store.
func (c *Classifier) Store() *Store {
	return c.store
}

// AddExample stores embedding under label.
func (c *Classifier) AddExample(embedding []float32, label Label) error {
	return c.store.Add(embedding, label)
}

// LoadExamples adds examples in order and returns how many were accepted.
// It stops at the first rejected example.
func (c *Classifier) LoadExamples(examples []Example) (int, error) {
	for i, ex := range examples {
		if err := c.store.Add(ex.Embedding, ex.Label); err != nil {
			return i, fmt.Errorf("loading example %d (%s): %w", i, ex.Label, err)
		}
	}
	return len(examples), nil
}

// Predict classifies embedding against the stored examples.
func (c *Classifier) Predict(embedding []float32) (Prediction, error) {
	neighbors, labels, err := c.store.Nearest(embedding, c.k)
	if err != nil {
		return Prediction{}, err
	}

	votes := make(map[Label]int, len(labels))
	for _, n := range neighbors {
		votes[n.Label]++
	}

	k := len(neighbors)
	pred := Prediction{
		Confidences: make(map[Label]float64, len(labels)),
		K:           k,
	}
	best := -1
	for _, label := range labels {
		pred.Confidences[label] = float64(votes[label]) / float64(k)
		if votes[label] > best {
			best = votes[label]
			pred.Label = label
		}
	}
	return pred, nil
}
