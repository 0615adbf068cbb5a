package detector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/embedding"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// Policy decides whether a prediction counts as a touch.
type Policy struct {
	TouchedLabel knn.Label
	Threshold    float64
}

// Touched is true when the winning label is the touched label and its
// confidence is strictly above the threshold.
func (p Policy) Touched(pred knn.Prediction) bool {
	return pred.Label == p.TouchedLabel && pred.Confidence(p.TouchedLabel) > p.Threshold
}

// SourceErrorPolicy selects what the loop does when a frame or embedding cannot be read.
type SourceErrorPolicy string

// Source error policies.
const (
	OnSourceErrorStop  SourceErrorPolicy = "stop"
	OnSourceErrorRetry SourceErrorPolicy = "retry"
)

// ParseSourceErrorPolicy parses "stop" or "retry".
func ParseSourceErrorPolicy(s string) (SourceErrorPolicy, error) {
	switch SourceErrorPolicy(s) {
	case OnSourceErrorStop, OnSourceErrorRetry:
		return SourceErrorPolicy(s), nil
	case "":
		return OnSourceErrorStop, nil
	default:
		return "", fmt.Errorf("unknown source error policy %q (want stop or retry)", s)
	}
}

// FrameResult is the outcome of one inference iteration.
type FrameResult struct {
	Seq        uint64          `json:"seq"`
	Prediction *knn.Prediction `json:"prediction,omitempty"`
	Touched    bool            `json:"touched"`
	Alert      AlertResult     `json:"alert"`
	Error      string          `json:"error,omitempty"`
}

// InferenceStats counts loop iterations.
type InferenceStats struct {
	Frames        uint64 `json:"frames"`
	Touched       uint64 `json:"touched"`
	PredictErrors uint64 `json:"predict_errors"`
	SourceErrors  uint64 `json:"source_errors"`
}

// InferenceLoop classifies frames until stopped and feeds the debouncer.
type InferenceLoop struct {
	camera        camera.Camera
	source        embedding.Source
	classifier    *knn.Classifier
	policy        Policy
	debouncer     *AlertDebouncer
	delay         time.Duration
	onSourceError SourceErrorPolicy
	events        *Broadcaster
	logger        *zap.Logger
	sleep         func(ctx context.Context, d time.Duration) error

	touched       bool
	seq           uint64
	frames        atomic.Uint64
	touchedFrames atomic.Uint64
	predictErrors atomic.Uint64
	sourceErrors  atomic.Uint64
}

// InferenceConfig holds the loop settings.
type InferenceConfig struct {
	Policy        Policy
	Delay         time.Duration
	OnSourceError SourceErrorPolicy
}

// NewInferenceLoop creates a loop. events and logger may be nil.
func NewInferenceLoop(cam camera.Camera, source embedding.Source, classifier *knn.Classifier, debouncer *AlertDebouncer, cfg InferenceConfig, events *Broadcaster, logger *zap.Logger) *InferenceLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = &Broadcaster{}
	}
	if cfg.OnSourceError == "" {
		cfg.OnSourceError = OnSourceErrorStop
	}
	return &InferenceLoop{
		camera:        cam,
		source:        source,
		classifier:    classifier,
		policy:        cfg.Policy,
		debouncer:     debouncer,
		delay:         cfg.Delay,
		onSourceError: cfg.OnSourceError,
		events:        events,
		logger:        logger,
		sleep:         sleepContext,
	}
}

// Step runs one iteration. Only source errors are returned; prediction
// errors are logged and the frame counts as not touched.
func (l *InferenceLoop) Step(ctx context.Context) (FrameResult, error) {
	l.seq++
	res := FrameResult{Seq: l.seq}

	vec, err := captureEmbedding(ctx, l.camera, l.source)
	if err != nil {
		l.sourceErrors.Add(1)
		res.Error = err.Error()
		return res, err
	}
	l.frames.Add(1)

	pred, err := l.classifier.Predict(vec)
	if err != nil {
		l.predictErrors.Add(1)
		l.logger.Warn("prediction failed", zap.Uint64("seq", res.Seq), zap.Error(err))
		res.Error = err.Error()
	} else {
		res.Prediction = &pred
		res.Touched = l.policy.Touched(pred)
	}
	if res.Touched {
		l.touchedFrames.Add(1)
	}

	res.Alert = l.debouncer.Update(ctx, res.Touched)

	if res.Touched != l.touched {
		l.touched = res.Touched
		l.logger.Info("touch state changed", zap.Bool("touched", res.Touched), zap.Uint64("seq", res.Seq))
		l.events.Publish(Event{Type: EventState, Data: map[string]bool{"touched": res.Touched}})
	}
	l.events.Publish(Event{Type: EventFrame, Data: res})

	return res, nil
}

// Run loops until ctx is cancelled, returning nil in that case. Under the
// stop policy a source error ends the loop and is returned.
func (l *InferenceLoop) Run(ctx context.Context) error {
	l.logger.Info("inference started",
		zap.String("touched_label", string(l.policy.TouchedLabel)),
		zap.Float64("threshold", l.policy.Threshold),
		zap.Int("examples", l.classifier.Store().Len()),
	)
	defer func() {
		l.debouncer.Clear()
		// The next Run starts from not touched, so its first touched frame is a transition.
		if l.touched {
			l.touched = false
			l.events.Publish(Event{Type: EventState, Data: map[string]bool{"touched": false}})
		}
		l.events.Publish(Event{Type: EventStopped, Data: l.Stats()})
		l.logger.Info("inference stopped", zap.Uint64("frames", l.frames.Load()))
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := l.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if l.onSourceError == OnSourceErrorStop {
				l.logger.Error("inference source failed, stopping", zap.Error(err))
				return err
			}
			l.logger.Warn("inference source failed, retrying", zap.Error(err), zap.Uint64("source_errors", l.sourceErrors.Load()))
		}

		if err := l.sleep(ctx, l.delay); err != nil {
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		}
	}
}

// Stats returns the loop counters.
func (l *InferenceLoop) Stats() InferenceStats {
	return InferenceStats{
		Frames:        l.frames.Load(),
		Touched:       l.touchedFrames.Load(),
		PredictErrors: l.predictErrors.Load(),
		SourceErrors:  l.sourceErrors.Load(),
	}
}
