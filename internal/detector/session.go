package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/alert"
	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/embedding"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// ExampleRepository persists training examples per session name.
type ExampleRepository interface {
	SaveExamples(ctx context.Context, session string, examples []knn.Example) error
	LoadExamples(ctx context.Context, session string) ([]knn.Example, error)
	// DeleteExamples removes the label's examples, or all when label is empty.
	DeleteExamples(ctx context.Context, session string, label knn.Label) (int64, error)
}

// SessionConfig holds the session settings.
type SessionConfig struct {
	Name          string
	TrainingTimes int
	TrainingDelay time.Duration
	Inference     InferenceConfig
	// SnapshotPath, when set, is rewritten after every change to the example set.
	SnapshotPath string
}

// Dependencies are the collaborators a session drives.
type Dependencies struct {
	Camera     camera.Camera
	Source     embedding.Source
	Classifier *knn.Classifier
	Debouncer  *AlertDebouncer
	Repository ExampleRepository // optional
	Logger     *zap.Logger
}

// Mode is what the session is currently doing.
type Mode string

// Session modes.
const (
	ModeIdle      Mode = "idle"
	ModeTraining  Mode = "training"
	ModeInference Mode = "inference"
)

// Status is a point-in-time view of the session.
type Status struct {
	Name     string         `json:"name"`
	Mode     Mode           `json:"mode"`
	Running  bool           `json:"running"`
	Training bool           `json:"training"`
	Alerting bool           `json:"alerting"`
	CanFire  bool           `json:"can_fire"`
	Counts   map[string]int `json:"counts"`
	Labels   []string       `json:"labels"`
	Dim      int            `json:"dim"`
	Stats    InferenceStats `json:"stats"`
}

// Session owns the classifier and the frame source and lets one training
// batch or one inference loop run at a time.
type Session struct {
	cfg        SessionConfig
	camera     camera.Camera
	source     embedding.Source
	classifier *knn.Classifier
	debouncer  *AlertDebouncer
	repo       ExampleRepository
	logger     *zap.Logger
	events     *Broadcaster
	trainer    *TrainingController
	loop       *InferenceLoop

	busy chan struct{}

	mu     sync.Mutex
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
}

// NewSession validates dependencies and builds a session.
func NewSession(cfg SessionConfig, deps Dependencies) (*Session, error) {
	if deps.Camera == nil {
		return nil, errors.New("camera is required")
	}
	if deps.Source == nil {
		return nil, errors.New("embedding source is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Debouncer == nil {
		deps.Debouncer = NewAlertDebouncer(nil, nil, alert.Text{}, deps.Logger)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	logger := deps.Logger.With(zap.String("session", cfg.Name))
	events := &Broadcaster{}
	s := &Session{
		cfg:        cfg,
		camera:     deps.Camera,
		source:     deps.Source,
		classifier: deps.Classifier,
		debouncer:  deps.Debouncer,
		repo:       deps.Repository,
		logger:     logger,
		events:     events,
		trainer:    NewTrainingController(deps.Camera, deps.Source, deps.Classifier, cfg.TrainingDelay, logger),
		loop:       NewInferenceLoop(deps.Camera, deps.Source, deps.Classifier, deps.Debouncer, cfg.Inference, events, logger),
		busy:       make(chan struct{}, 1),
		mode:       ModeIdle,
	}
	return s, nil
}

// Open starts the camera and returns once the first frame is available.
func (s *Session) Open(ctx context.Context) error {
	if err := s.camera.Start(ctx); err != nil {
		return fmt.Errorf("%w: starting camera: %w", ErrSourceUnavailable, err)
	}
	return nil
}

// Restore loads persisted examples, preferring the repository over the snapshot file.
func (s *Session) Restore(ctx context.Context) (int, error) {
	var examples []knn.Example
	var err error
	switch {
	case s.repo != nil:
		examples, err = s.repo.LoadExamples(ctx, s.cfg.Name)
	case s.cfg.SnapshotPath != "":
		examples, err = knn.LoadSnapshot(s.cfg.SnapshotPath)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading examples: %w", err)
	}

	n, err := s.classifier.LoadExamples(examples)
	if err != nil {
		return n, fmt.Errorf("restoring examples: %w", err)
	}
	s.logger.Info("examples restored", zap.Int("count", n))
	return n, nil
}

// Events returns the inference event stream.
func (s *Session) Events() *Broadcaster {
	return s.events
}

// Classifier returns the session classifier.
func (s *Session) Classifier() *knn.Classifier {
	return s.classifier
}

// TrainingTimes returns the configured default batch size.
func (s *Session) TrainingTimes() int {
	return s.cfg.TrainingTimes
}

func (s *Session) acquire(mode Mode) error {
	select {
	case s.busy <- struct{}{}:
	default:
		return ErrBusy
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.mode = ModeIdle
	s.mu.Unlock()
	<-s.busy
}

// Train runs one training batch. times <= 0 uses the configured default.
func (s *Session) Train(ctx context.Context, label knn.Label, times int, onProgress func(Progress)) (TrainingResult, error) {
	if err := s.acquire(ModeTraining); err != nil {
		return TrainingResult{Label: label, Requested: times}, err
	}
	defer s.release()
	return s.train(ctx, label, times, onProgress)
}

// StartTraining reserves the session synchronously and trains in the
// background. onDone receives the outcome.
func (s *Session) StartTraining(ctx context.Context, label knn.Label, times int, onProgress func(Progress), onDone func(TrainingResult, error)) error {
	if err := s.acquire(ModeTraining); err != nil {
		return err
	}
	go func() {
		defer s.release()
		res, err := s.train(ctx, label, times, onProgress)
		if onDone != nil {
			onDone(res, err)
		}
	}()
	return nil
}

func (s *Session) train(ctx context.Context, label knn.Label, times int, onProgress func(Progress)) (TrainingResult, error) {
	if times <= 0 {
		times = s.cfg.TrainingTimes
	}
	res, err := s.trainer.Train(ctx, label, times, onProgress)
	if res.Added > 0 {
		// Accepted examples are kept even when the batch failed later on.
		if perr := s.persistAdded(context.WithoutCancel(ctx), res.Examples); perr != nil {
			s.logger.Error("persisting examples failed", zap.Error(perr))
			if err == nil {
				err = perr
			}
		}
	}
	return res, err
}

func (s *Session) persistAdded(ctx context.Context, examples []knn.Example) error {
	if s.repo != nil {
		if err := s.repo.SaveExamples(ctx, s.cfg.Name, examples); err != nil {
			return fmt.Errorf("saving examples: %w", err)
		}
	}
	return s.saveSnapshot()
}

func (s *Session) saveSnapshot() error {
	if s.cfg.SnapshotPath == "" {
		return nil
	}
	if err := knn.SaveSnapshot(s.cfg.SnapshotPath, s.classifier.Store()); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Run runs the inference loop on the caller's goroutine until ctx is
// cancelled or a source error stops it.
func (s *Session) Run(ctx context.Context) error {
	if err := s.acquire(ModeInference); err != nil {
		return err
	}
	defer s.release()
	return s.loop.Run(ctx)
}

// StartInference runs the inference loop in the background until
// StopInference or Close.
func (s *Session) StartInference(ctx context.Context) error {
	if err := s.acquire(ModeInference); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.runErr = nil
	s.mu.Unlock()

	go func() {
		err := s.loop.Run(runCtx)
		cancel()
		if err != nil {
			s.events.Publish(Event{Type: EventFailed, Message: err.Error()})
		}
		s.mu.Lock()
		s.runErr = err
		if s.done == done {
			s.cancel = nil
		}
		s.mu.Unlock()
		s.release()
		close(done)
	}()
	return nil
}

// StopInference cancels a background loop and waits for it to exit.
func (s *Session) StopInference() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return ErrNotRunning
	}
	if cancel == nil {
		// The loop ended on its own; wait until it has released the session.
		<-done
		return ErrNotRunning
	}
	cancel()
	<-done
	return nil
}

// LastRunError returns the error that ended the last background loop.
func (s *Session) LastRunError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Status reports the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	store := s.classifier.Store()
	counts := make(map[string]int)
	for label, n := range store.Counts() {
		counts[string(label)] = n
	}
	labels := make([]string, 0, len(counts))
	for _, label := range store.Labels() {
		labels = append(labels, string(label))
	}

	return Status{
		Name:     s.cfg.Name,
		Mode:     mode,
		Running:  mode == ModeInference,
		Training: mode == ModeTraining,
		Alerting: s.debouncer.Alerting(),
		CanFire:  s.debouncer.CanFire(),
		Counts:   counts,
		Labels:   labels,
		Dim:      store.Dim(),
		Stats:    s.loop.Stats(),
	}
}

// ResetExamples removes every example. It fails with ErrBusy while training or inference runs.
func (s *Session) ResetExamples(ctx context.Context) error {
	if err := s.acquire(ModeIdle); err != nil {
		return err
	}
	defer s.release()

	s.classifier.Store().Reset()
	if s.repo != nil {
		if _, err := s.repo.DeleteExamples(ctx, s.cfg.Name, ""); err != nil {
			return fmt.Errorf("deleting examples: %w", err)
		}
	}
	s.logger.Info("examples reset")
	return s.saveSnapshot()
}

// ClearLabel removes the examples of one label and returns how many were removed.
func (s *Session) ClearLabel(ctx context.Context, label knn.Label) (int, error) {
	if label == "" {
		return 0, knn.ErrInvalidLabel
	}
	if err := s.acquire(ModeIdle); err != nil {
		return 0, err
	}
	defer s.release()

	n := s.classifier.Store().ClearLabel(label)
	if s.repo != nil {
		if _, err := s.repo.DeleteExamples(ctx, s.cfg.Name, label); err != nil {
			return n, fmt.Errorf("deleting examples: %w", err)
		}
	}
	s.logger.Info("label cleared", zap.String("label", string(label)), zap.Int("removed", n))
	return n, s.saveSnapshot()
}

// Close releases the camera first, then stops a background loop.
func (s *Session) Close() error {
	err := s.camera.Stop()
	if err != nil {
		s.logger.Warn("stopping camera failed", zap.Error(err))
	}
	if stopErr := s.StopInference(); stopErr != nil && !errors.Is(stopErr, ErrNotRunning) {
		err = errors.Join(err, stopErr)
	}
	return err
}
