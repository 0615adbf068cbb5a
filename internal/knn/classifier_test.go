package knn

import (
	"errors"
	"reflect"
	"testing"
)

const (
	notTouch Label = "not_touch"
	touched  Label = "touched"
)

func filled(dim int, v float32) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

// newTrainedClassifier returns a classifier with n examples per label,
// not_touch at 0.0 and touched at 1.0 in every coordinate.
func newTrainedClassifier(t *testing.T, cfg Config, n, dim int) *Classifier {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range n {
		if err := c.AddExample(filled(dim, 0), notTouch); err != nil {
			t.Fatalf("AddExample: %v", err)
		}
	}
	for range n {
		if err := c.AddExample(filled(dim, 1), touched); err != nil {
			t.Fatalf("AddExample: %v", err)
		}
	}
	return c
}

func TestPredict_Scenario(t *testing.T) {
	c := newTrainedClassifier(t, DefaultConfig(), 10, 8)

	tests := []struct {
		name      string
		query     float32
		wantLabel Label
		wantConf  float64
	}{
		{"near touched", 0.9, touched, 1.0},
		{"near not_touch", 0.1, notTouch, 1.0},
		{"exactly touched", 1.0, touched, 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pred, err := c.Predict(filled(8, tc.query))
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if pred.Label != tc.wantLabel {
				t.Errorf("label = %q, want %q", pred.Label, tc.wantLabel)
			}
			if got := pred.Confidence(tc.wantLabel); got != tc.wantConf {
				t.Errorf("confidence = %v, want %v", got, tc.wantConf)
			}
			if pred.K != 10 {
				t.Errorf("K = %d, want 10", pred.K)
			}
		})
	}
}

func TestPredict_Deterministic(t *testing.T) {
	c := newTrainedClassifier(t, DefaultConfig(), 7, 4)
	query := []float32{0.4, 0.6, 0.5, 0.5}

	first, err := c.Predict(query)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i := range 20 {
		got, err := c.Predict(query)
		if err != nil {
			t.Fatalf("Predict #%d: %v", i, err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("Predict #%d = %+v, want %+v", i, got, first)
		}
	}
}

func TestPredict_EquidistantUsesInsertionOrder(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for range 10 {
		c.AddExample([]float32{0, 0}, notTouch)
	}
	for range 10 {
		c.AddExample([]float32{2, 2}, touched)
	}

	pred, err := c.Predict([]float32{1, 1})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Label != notTouch {
		t.Errorf("label = %q, want %q (inserted first)", pred.Label, notTouch)
	}
	if pred.Confidence(notTouch) != 1.0 || pred.Confidence(touched) != 0 {
		t.Errorf("confidences = %v", pred.Confidences)
	}
}

func TestPredict_LabelTieUsesLabelOrder(t *testing.T) {
	c, err := New(Config{K: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddExample([]float32{5, 5}, touched)
	c.AddExample([]float32{0, 0}, notTouch)
	c.AddExample([]float32{1, 1}, touched)

	// Query at 0.5 has one neighbor of each label at equal distance.
	pred, err := c.Predict([]float32{0.5, 0.5})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Label != touched {
		t.Errorf("label = %q, want %q (first label added)", pred.Label, touched)
	}
	if pred.Confidence(touched) != 0.5 || pred.Confidence(notTouch) != 0.5 {
		t.Errorf("confidences = %v, want 0.5 each", pred.Confidences)
	}
}

func TestPredict_KClampedToStoreSize(t *testing.T) {
	c, err := New(Config{K: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddExample([]float32{0}, notTouch)
	c.AddExample([]float32{1}, touched)
	c.AddExample([]float32{1.1}, touched)

	pred, err := c.Predict([]float32{0.9})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.K != 3 {
		t.Errorf("K = %d, want 3", pred.K)
	}
	if got := pred.Confidence(touched); got < 0.66 || got > 0.67 {
		t.Errorf("touched confidence = %v, want 2/3", got)
	}
}

func TestPredict_ThreeLabels(t *testing.T) {
	c, err := New(Config{K: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, ex := range []struct {
		vec   []float32
		label Label
	}{
		{[]float32{0, 0}, "a"}, {[]float32{0, 1}, "a"},
		{[]float32{10, 10}, "b"}, {[]float32{10, 11}, "b"},
		{[]float32{-10, 5}, "c"}, {[]float32{-11, 5}, "c"},
	} {
		if err := c.AddExample(ex.vec, ex.label); err != nil {
			t.Fatalf("AddExample: %v", err)
		}
	}

	pred, err := c.Predict([]float32{-10, 4})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Label != "c" {
		t.Errorf("label = %q, want c", pred.Label)
	}
	if len(pred.Confidences) != 3 {
		t.Errorf("expected confidences for 3 labels, got %v", pred.Confidences)
	}
}

func TestPredict_EmptyStore(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Predict([]float32{1, 2, 3}); !errors.Is(err, ErrEmptyStore) {
		t.Errorf("expected ErrEmptyStore, got %v", err)
	}
}

func TestPredict_DimensionMismatch(t *testing.T) {
	c := newTrainedClassifier(t, DefaultConfig(), 2, 4)
	if _, err := c.Predict([]float32{1, 2}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestPredict_Cosine(t *testing.T) {
	c, err := New(Config{K: 1, Metric: MetricCosine})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddExample([]float32{1, 0}, notTouch)
	c.AddExample([]float32{0, 1}, touched)

	// Far away in Euclidean terms but pointing at touched.
	pred, err := c.Predict([]float32{0.1, 50})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Label != touched {
		t.Errorf("label = %q, want %q", pred.Label, touched)
	}
}

func TestPredict_HNSWMatchesExact(t *testing.T) {
	// Small enough that every node fits in one neighbor list.
	exact := newTrainedClassifier(t, Config{K: 3}, 5, 16)
	approx := newTrainedClassifier(t, Config{K: 3, Index: IndexHNSW}, 5, 16)

	for _, q := range []float32{0.05, 0.2, 0.8, 0.95} {
		want, err := exact.Predict(filled(16, q))
		if err != nil {
			t.Fatalf("exact Predict: %v", err)
		}
		got, err := approx.Predict(filled(16, q))
		if err != nil {
			t.Fatalf("hnsw Predict: %v", err)
		}
		if got.Label != want.Label {
			t.Errorf("query %v: hnsw label %q, exact label %q", q, got.Label, want.Label)
		}
	}
}

func TestLoadExamples(t *testing.T) {
	c, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := c.LoadExamples([]Example{
		{Label: notTouch, Embedding: []float32{0, 0}},
		{Label: touched, Embedding: []float32{1, 1}},
		{Label: touched, Embedding: []float32{1}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if n != 2 {
		t.Errorf("loaded = %d, want 2", n)
	}
	if c.Store().Len() != 2 {
		t.Errorf("store len = %d, want 2", c.Store().Len())
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricEuclidean, false},
		{"euclidean", MetricEuclidean, false},
		{"Cosine", MetricCosine, false},
		{"manhattan", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMetric(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseMetric(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseMetric(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
