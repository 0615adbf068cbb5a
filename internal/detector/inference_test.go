package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/touch-guard/internal/alert"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

var defaultPolicy = Policy{TouchedLabel: "touched", Threshold: 0.8}

func TestPolicy_Touched(t *testing.T) {
	tests := []struct {
		name string
		pred knn.Prediction
		want bool
	}{
		{
			name: "above threshold",
			pred: knn.Prediction{Label: "touched", Confidences: map[knn.Label]float64{"touched": 0.9, "not_touch": 0.1}},
			want: true,
		},
		{
			name: "exactly threshold",
			pred: knn.Prediction{Label: "touched", Confidences: map[knn.Label]float64{"touched": 0.8, "not_touch": 0.2}},
			want: false,
		},
		{
			name: "other label wins",
			pred: knn.Prediction{Label: "not_touch", Confidences: map[knn.Label]float64{"touched": 0.4, "not_touch": 0.6}},
			want: false,
		},
		{
			name: "full confidence",
			pred: knn.Prediction{Label: "touched", Confidences: map[knn.Label]float64{"touched": 1}},
			want: true,
		},
		{
			name: "label missing from confidences",
			pred: knn.Prediction{Label: "touched"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultPolicy.Touched(tt.pred); got != tt.want {
				t.Errorf("Touched() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_ThresholdFromVotes(t *testing.T) {
	// 8 of 10 neighbors touched is exactly 0.8, which does not alert; 9 of 10 does.
	tests := []struct {
		touched int
		want    bool
	}{
		{8, false},
		{9, true},
	}
	for _, tt := range tests {
		c := newTestClassifier()
		for i := range 10 {
			label := knn.Label("not_touch")
			if i < tt.touched {
				label = "touched"
			}
			_ = c.AddExample([]float32{float32(i)}, label)
		}
		pred, err := c.Predict([]float32{0})
		if err != nil {
			t.Fatalf("Predict() error = %v", err)
		}
		if got := defaultPolicy.Touched(pred); got != tt.want {
			t.Errorf("%d touched votes: Touched() = %v, want %v", tt.touched, got, tt.want)
		}
	}
}

func TestParseSourceErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceErrorPolicy
		wantErr bool
	}{
		{"stop", OnSourceErrorStop, false},
		{"retry", OnSourceErrorRetry, false},
		{"", OnSourceErrorStop, false},
		{"ignore", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSourceErrorPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSourceErrorPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseSourceErrorPolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestLoop(c *knn.Classifier, src *valueSource, player *manualPlayer, notifier *countingNotifier, onErr SourceErrorPolicy) *InferenceLoop {
	var p alert.Player
	if player != nil {
		p = player
	}
	var n alert.Notifier
	if notifier != nil {
		n = notifier
	}
	d := NewAlertDebouncer(p, n, alert.Text{Title: "Hands off!"}, nil)
	l := NewInferenceLoop(startedCamera(), src, c, d, InferenceConfig{Policy: defaultPolicy, OnSourceError: onErr}, nil, nil)
	l.sleep = noSleep
	return l
}

func TestInferenceLoop_Scenario(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{value: 0.9}
	player := &manualPlayer{}
	notifier := &countingNotifier{}
	l := newTestLoop(c, src, player, notifier, OnSourceErrorStop)

	res, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if res.Prediction == nil || res.Prediction.Label != "touched" {
		t.Fatalf("prediction = %+v, want touched", res.Prediction)
	}
	if got := res.Prediction.Confidence("touched"); got != 1 {
		t.Errorf("confidence = %v, want 1", got)
	}
	if !res.Touched || !res.Alert.Played || !res.Alert.NotifyRequested {
		t.Errorf("result = %+v, want touched with sound and notification", res)
	}

	src.set(0.1)
	res, err = l.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if res.Prediction.Label != "not_touch" || res.Touched {
		t.Errorf("result = %+v, want not_touch and not touched", res)
	}
	if res.Alert.Played || res.Alert.NotifyRequested {
		t.Error("alert fired for not-touched frame")
	}
	if player.playCount() != 1 || notifier.calls() != 1 {
		t.Errorf("plays = %d, notifications = %d, want 1 and 1", player.playCount(), notifier.calls())
	}
}

func TestInferenceLoop_EmptyStore(t *testing.T) {
	player := &manualPlayer{}
	l := newTestLoop(newTestClassifier(), &valueSource{value: 1}, player, nil, OnSourceErrorStop)

	for range 3 {
		res, err := l.Step(context.Background())
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if res.Touched || res.Prediction != nil || res.Error == "" {
			t.Errorf("result = %+v, want not touched with prediction error", res)
		}
	}
	if player.playCount() != 0 {
		t.Error("sound played for empty store")
	}
	if got := l.Stats().PredictErrors; got != 3 {
		t.Errorf("PredictErrors = %d, want 3", got)
	}
}

func TestInferenceLoop_DimensionMismatch(t *testing.T) {
	c := newTestClassifier()
	_ = c.AddExample([]float32{1, 1}, "touched")
	l := newTestLoop(c, &valueSource{value: 1}, nil, nil, OnSourceErrorStop)

	res, err := l.Step(context.Background())
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if res.Touched {
		t.Error("Touched = true on dimension mismatch")
	}
}

func TestInferenceLoop_StopOnSourceError(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{value: 0.1, failAt: 3}
	l := newTestLoop(c, src, nil, nil, OnSourceErrorStop)

	err := l.Run(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Run() error = %v, want ErrSourceUnavailable", err)
	}
	stats := l.Stats()
	if stats.Frames != 2 || stats.SourceErrors != 1 {
		t.Errorf("stats = %+v, want 2 frames and 1 source error", stats)
	}
}

func TestInferenceLoop_RetryOnSourceError(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{value: 0.1, failAt: 1}
	l := newTestLoop(c, src, nil, nil, OnSourceErrorRetry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.sleep = func(ctx context.Context, _ time.Duration) error {
		if src.callCount() >= 5 {
			cancel()
		}
		return ctx.Err()
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil after cancellation", err)
	}
	if got := l.Stats().SourceErrors; got != 5 {
		t.Errorf("SourceErrors = %d, want 5", got)
	}
}

func TestInferenceLoop_StateEvents(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{}
	events := &Broadcaster{}
	ch := events.Subscribe()
	defer events.Unsubscribe(ch)

	d := NewAlertDebouncer(nil, nil, alert.Text{}, nil)
	l := NewInferenceLoop(startedCamera(), src, c, d, InferenceConfig{Policy: defaultPolicy}, events, nil)

	for _, v := range []float32{0.1, 0.9, 0.95, 0.1} {
		src.set(v)
		if _, err := l.Step(context.Background()); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}

	var states []bool
	frames := 0
	for len(ch) > 0 {
		ev := <-ch
		switch ev.Type {
		case EventState:
			states = append(states, ev.Data.(map[string]bool)["touched"])
		case EventFrame:
			frames++
		}
	}
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("state events = %v, want [true false]", states)
	}
	if frames != 4 {
		t.Errorf("frame events = %d, want 4", frames)
	}
}

func TestInferenceLoop_CancelClearsAlert(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{value: 1}
	d := NewAlertDebouncer(nil, nil, alert.Text{}, nil)
	l := NewInferenceLoop(startedCamera(), src, c, d, InferenceConfig{Policy: defaultPolicy}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	l.sleep = func(ctx context.Context, _ time.Duration) error {
		if d.Alerting() {
			cancel()
		}
		return ctx.Err()
	}
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if d.Alerting() {
		t.Error("Alerting() = true after loop stopped")
	}
}

func TestInferenceLoop_RestartReportsTouchedAgain(t *testing.T) {
	c := newTestClassifier()
	seedScenario(c)
	src := &valueSource{value: 1}
	events := &Broadcaster{}
	d := NewAlertDebouncer(nil, nil, alert.Text{}, nil)
	l := NewInferenceLoop(startedCamera(), src, c, d, InferenceConfig{Policy: defaultPolicy}, events, nil)

	runUntilAlerting := func() []bool {
		ch := events.Subscribe()
		defer events.Unsubscribe(ch)
		ctx, cancel := context.WithCancel(context.Background())
		l.sleep = func(ctx context.Context, _ time.Duration) error {
			if d.Alerting() {
				cancel()
			}
			return ctx.Err()
		}
		if err := l.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		var states []bool
		for len(ch) > 0 {
			if ev := <-ch; ev.Type == EventState {
				states = append(states, ev.Data.(map[string]bool)["touched"])
			}
		}
		return states
	}

	for run := 1; run <= 2; run++ {
		states := runUntilAlerting()
		if len(states) != 2 || !states[0] || states[1] {
			t.Errorf("run %d: state events = %v, want [true false]", run, states)
		}
	}
}
