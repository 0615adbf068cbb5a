package detector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// valueSource returns a one-dimensional embedding holding the current value.
type valueSource struct {
	mu      sync.Mutex
	value   float32
	calls   int
	failAt  int // 1-based call number from which Infer fails, 0 never
	failErr error
}

func (s *valueSource) set(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

func (s *valueSource) Infer(_ context.Context, _ camera.Frame) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls >= s.failAt {
		if s.failErr != nil {
			return nil, s.failErr
		}
		return nil, errors.New("extractor offline")
	}
	return []float32{s.value}, nil
}

func (s *valueSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// manualPlayer records plays and ends only when finish is called.
type manualPlayer struct {
	mu    sync.Mutex
	plays int
	err   error
	ends  []func()
}

func (p *manualPlayer) Play(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.plays++
	return nil
}

func (p *manualPlayer) OnEnd(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ends = append(p.ends, fn)
}

func (p *manualPlayer) finish() {
	p.mu.Lock()
	ends := append([]func(){}, p.ends...)
	p.mu.Unlock()
	for _, fn := range ends {
		fn()
	}
}

func (p *manualPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify(_ context.Context, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

func (n *countingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type memoryRepository struct {
	mu       sync.Mutex
	examples map[string][]knn.Example
	deleted  []knn.Label
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{examples: make(map[string][]knn.Example)}
}

func (r *memoryRepository) SaveExamples(_ context.Context, session string, examples []knn.Example) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examples[session] = append(r.examples[session], examples...)
	return nil
}

func (r *memoryRepository) LoadExamples(_ context.Context, session string) ([]knn.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]knn.Example(nil), r.examples[session]...), nil
}

func (r *memoryRepository) DeleteExamples(_ context.Context, session string, label knn.Label) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, label)
	var kept []knn.Example
	var removed int64
	for _, ex := range r.examples[session] {
		if label == "" || ex.Label == label {
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	r.examples[session] = kept
	return removed, nil
}

func startedCamera() *camera.ImageCamera {
	cam := camera.NewImageCamera([]byte("frame"))
	if err := cam.Start(context.Background()); err != nil {
		panic(err)
	}
	return cam
}

func newTestClassifier() *knn.Classifier {
	c, err := knn.New(knn.DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// seedScenario stores 10 not_touch examples at 0 and 10 touched examples at 1.
func seedScenario(c *knn.Classifier) {
	for range 10 {
		_ = c.AddExample([]float32{0}, "not_touch")
	}
	for range 10 {
		_ = c.AddExample([]float32{1}, "touched")
	}
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
