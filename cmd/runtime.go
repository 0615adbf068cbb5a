package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/alert"
	"github.com/kozaktomas/touch-guard/internal/camera"
	"github.com/kozaktomas/touch-guard/internal/config"
	"github.com/kozaktomas/touch-guard/internal/constants"
	"github.com/kozaktomas/touch-guard/internal/database/postgres"
	"github.com/kozaktomas/touch-guard/internal/detector"
	"github.com/kozaktomas/touch-guard/internal/embedding"
	"github.com/kozaktomas/touch-guard/internal/knn"
	"github.com/kozaktomas/touch-guard/internal/logging"
)

// runtime holds everything a command needs to train or detect.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *detector.Session
	closers []func() error
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if v := mustGetString(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := mustGetString(cmd, "session"); v != "" {
		cfg.Session.Name = v
	}
	if v := mustGetString(cmd, "camera-url"); v != "" {
		cfg.Camera.URL = v
	}
	if v := mustGetString(cmd, "camera-dir"); v != "" {
		cfg.Camera.Dir = v
	}
	if v := mustGetString(cmd, "examples-path"); v != "" {
		cfg.Session.ExamplesPath = v
	}
	return cfg
}

// newRuntime wires the session from cfg, opens the camera and restores
// persisted examples.
func newRuntime(ctx context.Context, cfg *config.Config) (_ *runtime, err error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	// Closed by the defer when a later step fails.
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	cam, err := newCamera(cfg, logger)
	if err != nil {
		return nil, err
	}
	source, err := rt.newSource(cfg)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	debouncer, err := newDebouncer(cfg, logger)
	if err != nil {
		return nil, err
	}
	repo, err := rt.newRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	onSourceError, err := detector.ParseSourceErrorPolicy(cfg.Inference.OnSourceError)
	if err != nil {
		return nil, err
	}

	deps := detector.Dependencies{
		Camera:     cam,
		Source:     source,
		Classifier: classifier,
		Debouncer:  debouncer,
		Logger:     logger,
	}
	if repo != nil {
		deps.Repository = repo
	}

	session, err := detector.NewSession(detector.SessionConfig{
		Name:          cfg.Session.Name,
		TrainingTimes: cfg.Training.Times,
		TrainingDelay: cfg.Training.Delay,
		Inference: detector.InferenceConfig{
			Policy: detector.Policy{
				TouchedLabel: knn.Label(cfg.Inference.TouchedLabel),
				Threshold:    cfg.Inference.Threshold,
			},
			Delay:         cfg.Inference.Delay,
			OnSourceError: onSourceError,
		},
		SnapshotPath: cfg.Session.ExamplesPath,
	}, deps)
	if err != nil {
		return nil, err
	}
	// The camera is released before anything else on shutdown.
	rt.closers = append([]func() error{session.Close}, rt.closers...)
	rt.session = session

	if err := session.Open(ctx); err != nil {
		return nil, err
	}
	n, err := session.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		fmt.Printf("Restored %d examples for session %q\n", n, cfg.Session.Name)
	}
	return rt, nil
}

// Close releases the camera, the extractor and the database in that order.
func (rt *runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	_ = rt.logger.Sync()
	return errors.Join(errs...)
}

func newCamera(cfg *config.Config, logger *zap.Logger) (camera.Camera, error) {
	if cfg.Camera.Dir != "" {
		cam, err := camera.NewImageCameraFromDir(cfg.Camera.Dir)
		if err != nil {
			return nil, fmt.Errorf("loading images: %w", err)
		}
		return cam, nil
	}
	if cfg.Camera.URL == "" {
		return nil, errors.New("CAMERA_URL (or --camera-dir) is required")
	}
	return camera.NewSnapshotCamera(camera.SnapshotConfig{
		URL:          cfg.Camera.URL,
		Interval:     cfg.Camera.Interval,
		StartTimeout: constants.CameraStartTimeout,
		Logger:       logger.Named("camera"),
	})
}

func (rt *runtime) newSource(cfg *config.Config) (embedding.Source, error) {
	backend, err := embedding.ParseBackend(cfg.Embedding.Backend)
	if err != nil {
		return nil, err
	}
	if backend == embedding.BackendHTTP {
		return embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Dim), nil
	}

	src, err := embedding.NewONNXSource(embedding.ONNXConfig{
		ModelPath:   cfg.Embedding.ONNX.ModelPath,
		LibraryPath: cfg.Embedding.ONNX.LibraryPath,
		InputName:   cfg.Embedding.ONNX.Input,
		OutputName:  cfg.Embedding.ONNX.Output,
		InputSize:   cfg.Embedding.ONNX.InputSize,
		Dim:         cfg.Embedding.Dim,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, src.Close)
	return src, nil
}

func newClassifier(cfg *config.Config) (*knn.Classifier, error) {
	metric, err := knn.ParseMetric(cfg.Classifier.Metric)
	if err != nil {
		return nil, err
	}
	index, err := knn.ParseIndexKind(cfg.Classifier.Index)
	if err != nil {
		return nil, err
	}
	return knn.New(knn.Config{K: cfg.Classifier.K, Metric: metric, Index: index})
}

func newDebouncer(cfg *config.Config, logger *zap.Logger) (*detector.AlertDebouncer, error) {
	catalog, err := alert.NewCatalog(cfg.Messages.Alerts)
	if err != nil {
		return nil, err
	}
	text := catalog.Text(cfg.Alert.Language)

	var notifier alert.Notifier
	switch strings.ToLower(cfg.Alert.NotifyBackend) {
	case "desktop":
		notifier = alert.NewDesktopNotifier()
	case "telegram":
		tg, err := alert.NewTelegramNotifier(cfg.Alert.TelegramToken, cfg.Alert.TelegramChatID)
		if err != nil {
			return nil, err
		}
		notifier = tg
	case "log":
		notifier = alert.NewLogNotifier(logger.Named("alert"))
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown notify backend %q (want desktop, telegram, log or none)", cfg.Alert.NotifyBackend)
	}
	if notifier != nil {
		notifier = alert.NewThrottled(notifier, cfg.Alert.Cooldown)
	}

	var player alert.Player
	if cfg.Alert.SoundCommand != "" || cfg.Alert.SoundFile != "" {
		p, err := alert.NewCommandPlayer(strings.Fields(cfg.Alert.SoundCommand), cfg.Alert.SoundFile)
		if err != nil {
			return nil, err
		}
		player = p
	} else {
		player = alert.NewBellPlayer(os.Stderr, constants.BellDuration)
	}

	return detector.NewAlertDebouncer(player, notifier, text, logger.Named("alert")), nil
}

// newRepository opens PostgreSQL when DATABASE_URL is set.
func (rt *runtime) newRepository(ctx context.Context, cfg *config.Config) (*postgres.ExampleRepository, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	for _, m := range applied {
		rt.logger.Info("applied migration", zap.String("file", m))
	}
	rt.closers = append(rt.closers, pool.Close)
	return postgres.NewExampleRepository(pool), nil
}
