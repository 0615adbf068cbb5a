package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/embedding"
	"github.com/kozaktomas/touch-guard/internal/knn"
)

// Progress is reported after each accepted training sample.
type Progress struct {
	Label   knn.Label `json:"label"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Percent int       `json:"percent"`
}

// TrainingResult summarizes one training batch. It is returned even when
// the batch fails part way.
type TrainingResult struct {
	Label     knn.Label     `json:"label"`
	Requested int           `json:"requested"`
	Added     int           `json:"added"`
	Duration  time.Duration `json:"duration"`
	Examples  []knn.Example `json:"-"`
}

// TrainingController collects labeled examples from the live source.
type TrainingController struct {
	camera     camera.Camera
	source     embedding.Source
	classifier *knn.Classifier
	delay      time.Duration
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewTrainingController creates a controller pausing delay between samples.
func NewTrainingController(cam camera.Camera, source embedding.Source, classifier *knn.Classifier, delay time.Duration, logger *zap.Logger) *TrainingController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainingController{
		camera:     cam,
		source:     source,
		classifier: classifier,
		delay:      delay,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Train captures times samples for label and appends them to the classifier.
// Existing examples are kept. onProgress may be nil.
func (t *TrainingController) Train(ctx context.Context, label knn.Label, times int, onProgress func(Progress)) (TrainingResult, error) {
	res := TrainingResult{Label: label, Requested: times}
	if label == "" {
		return res, knn.ErrInvalidLabel
	}
	if times <= 0 {
		return res, fmt.Errorf("training times must be positive, got %d", times)
	}

	start := time.Now()

	log := t.logger.With(zap.String("label", string(label)), zap.Int("times", times))
	log.Info("training started")

	for i := range times {
		if err := ctx.Err(); err != nil {
			return t.finish(res, start), err
		}

		vec, err := captureEmbedding(ctx, t.camera, t.source)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return t.finish(res, start), ctxErr
			}
			log.Warn("training aborted", zap.Int("added", res.Added), zap.Error(err))
			return t.finish(res, start), err
		}

		if err := t.classifier.AddExample(vec, label); err != nil {
			log.Warn("training sample rejected", zap.Int("added", res.Added), zap.Error(err))
			return t.finish(res, start), fmt.Errorf("adding example: %w", err)
		}
		res.Added++
		res.Examples = append(res.Examples, knn.Example{Label: label, Embedding: vec})

		p := Progress{Label: label, Done: res.Added, Total: times, Percent: res.Added * 100 / times}
		log.Debug("training progress", zap.Int("percent", p.Percent))
		if onProgress != nil {
			onProgress(p)
		}

		// The delay follows every sample, the last one included. Cancelling
		// it after the final sample still completes the batch.
		if err := t.sleep(ctx, t.delay); err != nil && i < times-1 {
			return t.finish(res, start), err
		}
	}

	log.Info("training finished", zap.Int("added", res.Added), zap.Int("examples", t.classifier.Store().Len()))
	return t.finish(res, start), nil
}

func (t *TrainingController) finish(res TrainingResult, start time.Time) TrainingResult {
	res.Duration = time.Since(start)
	return res
}

// captureEmbedding reads the latest frame and runs it through the extractor.
func captureEmbedding(ctx context.Context, cam camera.Camera, source embedding.Source) ([]float32, error) {
	frame, err := cam.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading frame: %w", ErrSourceUnavailable, err)
	}
	vec, err := source.Infer(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: computing embedding: %w", ErrSourceUnavailable, err)
	}
	return vec, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancellation reports whether err only signals a cancelled context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
