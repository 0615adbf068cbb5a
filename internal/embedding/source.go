// Package embedding turns camera frames into fixed-length feature vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/touch-guard/internal/camera"
)

// Source computes the embedding of a frame. Implementations must not modify frame.Data.
type Source interface {
	Infer(ctx context.Context, frame camera.Frame) ([]float32, error)
}

// Backend names a Source implementation.
type Backend string

// Supported backends.
const (
	BackendHTTP Backend = "http"
	BackendONNX Backend = "onnx"
)

// ParseBackend parses a backend name, defaulting to the HTTP embedding server.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendHTTP:
		return BackendHTTP, nil
	case BackendONNX:
		return BackendONNX, nil
	default:
		return "", fmt.Errorf("unknown embedding backend %q", s)
	}
}
