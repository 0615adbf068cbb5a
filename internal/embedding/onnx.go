package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kozaktomas/touch-guard/internal/camera"
)

const defaultInputSize = 224

// ONNXConfig configures an in-process feature extractor.
type ONNXConfig struct {
	ModelPath   string // MobileNet-style model exported to ONNX, output is the pooled feature vector
	LibraryPath string // onnxruntime shared library, empty uses the platform default
	InputName   string
	OutputName  string
	InputSize   int // square input edge in pixels
	Dim         int // feature vector length produced by OutputName
}

// ONNXSource runs the feature extractor through onnxruntime.
// Calls to Infer are serialized; the tensors are reused between calls.
type ONNXSource struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	size    int
	ownsEnv bool
}

func (cfg *ONNXConfig) validate() error {
	if cfg.ModelPath == "" {
		return errors.New("ONNX model path is required")
	}
	if cfg.Dim <= 0 {
		return errors.New("ONNX output dimension must be positive")
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = defaultInputSize
	}
	return nil
}

// NewONNXSource loads the model and allocates its tensors.
func NewONNXSource(cfg ONNXConfig) (*ONNXSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &ONNXSource{size: cfg.InputSize}
	if !ort.IsInitialized() {
		if cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initializing onnxruntime: %w", err)
		}
		s.ownsEnv = true
	}

	size := int64(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}
	s.input = input

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.Dim)))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}
	s.output = output

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("loading model %s: %w", cfg.ModelPath, err)
	}
	s.session = session

	return s, nil
}

// Infer decodes the frame, runs the extractor and returns a copy of the features.
func (s *ONNXSource) Infer(ctx context.Context, frame camera.Frame) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := frame.Decode()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("ONNX source is closed")
	}
	if err := Tensorize(img, s.size, s.input.GetData()); err != nil {
		return nil, err
	}
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("running model: %w", err)
	}
	return slices.Clone(s.output.GetData()), nil
}

// Close releases the session, its tensors and, if this source created it, the runtime environment.
func (s *ONNXSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		errs = append(errs, s.output.Destroy())
		s.output = nil
	}
	if s.ownsEnv {
		errs = append(errs, ort.DestroyEnvironment())
		s.ownsEnv = false
	}
	return errors.Join(errs...)
}
