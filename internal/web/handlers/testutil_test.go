package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// constSource returns a one-dimensional embedding holding the current value.
type constSource struct {
	mu    sync.Mutex
	value float32
}

func (s *constSource) Infer(_ context.Context, _ camera.Frame) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []float32{s.value}, nil
}

// newTestSession creates an opened session replaying a single frame.
func newTestSession(t *testing.T, src *constSource) *detector.Session {
	t.Helper()
	classifier, err := knn.New(knn.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	session, err := detector.NewSession(detector.SessionConfig{
		Name:          "test",
		TrainingTimes: 3,
		Inference: detector.InferenceConfig{
			Policy: detector.Policy{TouchedLabel: "touched", Threshold: 0.8},
			Delay:  time.Millisecond,
		},
	}, detector.Dependencies{
		Camera:     camera.NewImageCamera([]byte("frame")),
		Source:     src,
		Classifier: classifier,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses the JSON response body into the target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// waitForJob polls until the job reaches a terminal state
func waitForJob(t *testing.T, job *TrainingJob) TrainingJobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if isJobTerminal(job.GetStatus()) {
			return job.View()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.View().ID)
	return TrainingJobView{}
}
