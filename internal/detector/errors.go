// Package detector runs the training batches and the inference loop that
// turn camera frames into touch alerts.
package detector

import "errors"

var (
	// ErrSourceUnavailable wraps camera and embedding failures.
	ErrSourceUnavailable = errors.New("frame source unavailable")

	// ErrBusy is returned when a training batch or inference loop already runs.
	ErrBusy = errors.New("session is busy")

	// ErrNotRunning is returned when stopping an inference loop that is not running.
	ErrNotRunning = errors.New("inference is not running")
)
