package detector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

func newTestSession(t *testing.T, cfg SessionConfig, src *valueSource, repo ExampleRepository) (*Session, *camera.ImageCamera) {
	t.Helper()
	cam := camera.NewImageCamera([]byte("frame"))
	if cfg.TrainingTimes == 0 {
		cfg.TrainingTimes = 5
	}
	if cfg.Inference.Policy.TouchedLabel == "" {
		cfg.Inference.Policy = defaultPolicy
	}
	if cfg.Inference.Delay == 0 {
		cfg.Inference.Delay = time.Millisecond
	}
	s, err := NewSession(cfg, Dependencies{
		Camera:     cam,
		Source:     src,
		Classifier: newTestClassifier(),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, cam
}

func TestNewSession_RequiresDependencies(t *testing.T) {
	if _, err := NewSession(SessionConfig{}, Dependencies{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestSession_TrainUsesDefaultTimes(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{TrainingTimes: 4}, &valueSource{value: 1}, nil)

	res, err := s.Train(context.Background(), "touched", 0, nil)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if res.Added != 4 {
		t.Errorf("Added = %d, want 4", res.Added)
	}
	status := s.Status()
	if status.Counts["touched"] != 4 || status.Dim != 1 {
		t.Errorf("status = %+v, want 4 touched examples of dim 1", status)
	}
	if status.Mode != ModeIdle {
		t.Errorf("Mode = %s after training, want idle", status.Mode)
	}
}

func TestSession_BusyExclusion(t *testing.T) {
	src := &valueSource{value: 0.1}
	s, _ := newTestSession(t, SessionConfig{}, src, nil)
	if _, err := s.Train(context.Background(), "not_touch", 3, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if err := s.StartInference(context.Background()); err != nil {
		t.Fatalf("StartInference() error = %v", err)
	}
	if !s.Status().Running {
		t.Error("Running = false after StartInference")
	}

	if _, err := s.Train(context.Background(), "touched", 3, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("Train() during inference error = %v, want ErrBusy", err)
	}
	if err := s.StartInference(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second StartInference() error = %v, want ErrBusy", err)
	}
	if err := s.ResetExamples(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("ResetExamples() during inference error = %v, want ErrBusy", err)
	}

	if err := s.StopInference(); err != nil {
		t.Fatalf("StopInference() error = %v", err)
	}
	if s.Status().Running {
		t.Error("Running = true after StopInference")
	}
	if _, err := s.Train(context.Background(), "touched", 3, nil); err != nil {
		t.Errorf("Train() after stop error = %v", err)
	}
}

func TestSession_StopInferenceNotRunning(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{}, &valueSource{}, nil)
	if err := s.StopInference(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("StopInference() error = %v, want ErrNotRunning", err)
	}
}

func TestSession_StartTrainingAsync(t *testing.T) {
	s, _ := newTestSession(t, SessionConfig{}, &valueSource{value: 1}, nil)

	done := make(chan TrainingResult, 1)
	err := s.StartTraining(context.Background(), "touched", 3, nil, func(res TrainingResult, err error) {
		if err != nil {
			t.Errorf("training error = %v", err)
		}
		done <- res
	})
	if err != nil {
		t.Fatalf("StartTraining() error = %v", err)
	}

	select {
	case res := <-done:
		if res.Added != 3 {
			t.Errorf("Added = %d, want 3", res.Added)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("training did not finish")
	}
}

func TestSession_PersistsToRepository(t *testing.T) {
	repo := newMemoryRepository()
	s, _ := newTestSession(t, SessionConfig{Name: "desk"}, &valueSource{value: 1}, repo)

	if _, err := s.Train(context.Background(), "touched", 3, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	stored, _ := repo.LoadExamples(context.Background(), "desk")
	if len(stored) != 3 {
		t.Fatalf("repository has %d examples, want 3", len(stored))
	}

	restored, _ := newTestSession(t, SessionConfig{Name: "desk"}, &valueSource{}, repo)
	n, err := restored.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 3 || restored.Classifier().Store().Count("touched") != 3 {
		t.Errorf("restored %d examples, want 3", n)
	}

	removed, err := restored.ClearLabel(context.Background(), "touched")
	if err != nil {
		t.Fatalf("ClearLabel() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("ClearLabel() = %d, want 3", removed)
	}
	if stored, _ := repo.LoadExamples(context.Background(), "desk"); len(stored) != 0 {
		t.Errorf("repository still has %d examples", len(stored))
	}
}

func TestSession_SnapshotRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.gob")
	s, _ := newTestSession(t, SessionConfig{SnapshotPath: path}, &valueSource{value: 1}, nil)
	if _, err := s.Train(context.Background(), "touched", 2, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	restored, _ := newTestSession(t, SessionConfig{SnapshotPath: path}, &valueSource{}, nil)
	n, err := restored.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Restore() = %d, want 2", n)
	}

	if err := restored.ResetExamples(context.Background()); err != nil {
		t.Fatalf("ResetExamples() error = %v", err)
	}
	examples, err := knn.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if len(examples) != 0 {
		t.Errorf("snapshot has %d examples after reset, want 0", len(examples))
	}
}

func TestSession_CloseReleasesCamera(t *testing.T) {
	s, cam := newTestSession(t, SessionConfig{}, &valueSource{value: 1}, nil)
	if _, err := s.Train(context.Background(), "touched", 2, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if err := s.StartInference(context.Background()); err != nil {
		t.Fatalf("StartInference() error = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := cam.Frame(context.Background()); !errors.Is(err, camera.ErrStopped) {
		t.Errorf("Frame() after Close error = %v, want ErrStopped", err)
	}
	if s.Status().Running {
		t.Error("Running = true after Close")
	}
}

func TestSession_RunStopsOnSourceError(t *testing.T) {
	src := &valueSource{value: 1}
	s, _ := newTestSession(t, SessionConfig{}, src, nil)
	if _, err := s.Train(context.Background(), "touched", 2, nil); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	src.mu.Lock()
	src.failAt = src.calls + 3
	src.mu.Unlock()

	err := s.Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Run() error = %v, want ErrSourceUnavailable", err)
	}
	if s.Status().Mode != ModeIdle {
		t.Error("session still busy after Run returned")
	}
}
