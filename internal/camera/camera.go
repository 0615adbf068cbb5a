// Package camera provides the frame sources consumed by training and inference.
//
// A Camera hands out the most recent frame on demand; frames that nobody asked
// for are dropped. Start returns only once the first frame is available and
// Stop releases the underlying stream independently of any consumer.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for Frame.Decode
	_ "image/png"
	"time"

	_ "golang.org/x/image/webp"
)

var (
	// ErrNotStarted is returned by Frame before Start succeeded.
	ErrNotStarted = errors.New("camera not started")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("camera stopped")
)

// Frame is a single encoded still taken from the camera.
// Data must not be modified by consumers.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
}

// Decode decodes the frame into an image.
func (f Frame) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame %d: %w", f.Seq, err)
	}
	return img, nil
}

// Camera is the frame source contract.
type Camera interface {
	// Start opens the stream and blocks until the first frame is ready.
	Start(ctx context.Context) error
	// Frame returns the latest frame.
	Frame(ctx context.Context) (Frame, error)
	// Stop releases the stream. Safe to call multiple times.
	Stop() error
}
