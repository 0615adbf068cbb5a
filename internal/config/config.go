package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/touch-guard/internal/constants"
)

//go:embed messages.yaml
var messagesYAML []byte

type Config struct {
	Camera     CameraConfig
	Embedding  EmbeddingConfig
	Classifier ClassifierConfig
	Training   TrainingConfig
	Inference  InferenceConfig
	Alert      AlertConfig
	Database   DatabaseConfig
	Session    SessionConfig
	Web        WebConfig
	LogLevel   string
	Messages   MessagesConfig
}

type CameraConfig struct {
	URL      string        // HTTP snapshot endpoint
	Dir      string        // replay stills from a directory instead of a live camera
	Interval time.Duration // snapshot poll interval
}

type EmbeddingConfig struct {
	Backend string // http or onnx
	URL     string // defaults to http://localhost:8000
	Dim     int    // defaults to 1024 (MobileNet v1 pooled features)
	ONNX    ONNXConfig
}

type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Input       string
	Output      string
	InputSize   int
}

type ClassifierConfig struct {
	K      int
	Metric string // euclidean or cosine
	Index  string // exact or hnsw
}

type TrainingConfig struct {
	Times int
	Delay time.Duration
}

type InferenceConfig struct {
	TouchedLabel  string
	NotTouchLabel string
	Threshold     float64
	Delay         time.Duration
	OnSourceError string // stop or retry
}

type AlertConfig struct {
	Cooldown       time.Duration
	NotifyBackend  string // desktop, telegram or log
	TelegramToken  string
	TelegramChatID int64
	SoundFile      string
	SoundCommand   string
	Language       string
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, examples are kept in memory only when empty
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type SessionConfig struct {
	Name         string // namespace for persisted examples
	ExamplesPath string // gob snapshot of the example store (optional)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins string // comma-separated, localhost is always allowed
	APIToken       string // bearer token; empty disables auth
}

type MessagesConfig struct {
	Alerts map[string]AlertText `yaml:"alerts"`
}

// AlertText is the localized content of a touch notification.
type AlertText struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a duration.
// Bare integers are taken as milliseconds ("3000" == "3s").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envInt64(key string) int64 {
	n, _ := strconv.ParseInt(os.Getenv(key), 10, 64)
	return n
}

func Load() *Config {
	var messages MessagesConfig
	if err := yaml.Unmarshal(messagesYAML, &messages); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded messages.yaml: " + err.Error())
	}

	return &Config{
		Camera: CameraConfig{
			URL:      os.Getenv("CAMERA_URL"),
			Dir:      os.Getenv("CAMERA_DIR"),
			Interval: envDuration("CAMERA_INTERVAL", constants.DefaultCameraInterval),
		},
		Embedding: EmbeddingConfig{
			Backend: envString("EMBEDDING_BACKEND", "http"),
			URL:     envString("EMBEDDING_URL", "http://localhost:8000"),
			Dim:     envInt("EMBEDDING_DIM", constants.DefaultEmbeddingDim),
			ONNX: ONNXConfig{
				ModelPath:   os.Getenv("ONNX_MODEL_PATH"),
				LibraryPath: os.Getenv("ONNX_LIBRARY_PATH"),
				Input:       envString("ONNX_INPUT", "input"),
				Output:      envString("ONNX_OUTPUT", "output"),
				InputSize:   envInt("ONNX_INPUT_SIZE", constants.DefaultModelInputSize),
			},
		},
		Classifier: ClassifierConfig{
			K:      envInt("CLASSIFIER_K", constants.DefaultK),
			Metric: envString("CLASSIFIER_METRIC", "euclidean"),
			Index:  envString("CLASSIFIER_INDEX", "exact"),
		},
		Training: TrainingConfig{
			Times: envInt("TRAINING_TIMES", constants.DefaultTrainingTimes),
			Delay: envDuration("TRAINING_DELAY", constants.DefaultTrainingDelay),
		},
		Inference: InferenceConfig{
			TouchedLabel:  envString("TOUCHED_LABEL", constants.DefaultTouchedLabel),
			NotTouchLabel: envString("NOT_TOUCH_LABEL", constants.DefaultNotTouchLabel),
			Threshold:     envFloat("TOUCHED_CONFIDENCE", constants.DefaultTouchedConfidence),
			Delay:         envDuration("INFERENCE_DELAY", constants.DefaultInferenceDelay),
			OnSourceError: envString("INFERENCE_ON_SOURCE_ERROR", "stop"),
		},
		Alert: AlertConfig{
			Cooldown:       envDuration("NOTIFY_COOLDOWN", constants.DefaultNotifyCooldown),
			NotifyBackend:  envString("NOTIFY_BACKEND", "desktop"),
			TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
			TelegramChatID: envInt64("TELEGRAM_CHAT_ID"),
			SoundFile:      os.Getenv("SOUND_FILE"),
			SoundCommand:   os.Getenv("SOUND_COMMAND"),
			Language:       envString("ALERT_LANGUAGE", "en"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Session: SessionConfig{
			Name:         envString("SESSION_NAME", "default"),
			ExamplesPath: os.Getenv("EXAMPLES_PATH"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
		Messages: messages,
	}
}
