// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Label constants
const (
	// DefaultTouchedLabel is the label whose confidence raises the alert
	DefaultTouchedLabel = "touched"

	// DefaultNotTouchLabel is the label for hands away from the face
	DefaultNotTouchLabel = "not_touch"

	// DefaultTouchedConfidence must be exceeded (strictly) to report a touch
	DefaultTouchedConfidence = 0.8
)

// Classifier constants
const (
	// DefaultK is the number of neighbors that vote on a prediction
	DefaultK = 10

	// DefaultEmbeddingDim matches the pooled MobileNet v1 feature vector
	DefaultEmbeddingDim = 1024

	// DefaultModelInputSize is the square input edge of the feature extractor
	DefaultModelInputSize = 224
)

// Timing constants
const (
	// DefaultTrainingTimes is the number of samples collected per training batch
	DefaultTrainingTimes = 50

	// DefaultTrainingDelay is the pause between training samples
	DefaultTrainingDelay = 50 * time.Millisecond

	// DefaultInferenceDelay is the pause between inference iterations
	DefaultInferenceDelay = 200 * time.Millisecond

	// DefaultNotifyCooldown is the minimum spacing between delivered notifications
	DefaultNotifyCooldown = 3000 * time.Millisecond

	// DefaultCameraInterval is the snapshot camera poll interval
	DefaultCameraInterval = 100 * time.Millisecond

	// CameraStartTimeout bounds the wait for the first camera frame
	CameraStartTimeout = 10 * time.Second

	// BellDuration is how long the terminal bell counts as playing
	BellDuration = 1500 * time.Millisecond
)

// Event constants
const (
	// EventChannelBuffer is the buffer size of each event listener channel
	EventChannelBuffer = 100

	// SSEHeartbeatInterval is how often idle SSE streams receive a keepalive
	SSEHeartbeatInterval = 15 * time.Second

	// TrainingJobRetention is how long finished training jobs stay queryable
	TrainingJobRetention = 30 * time.Minute
)
