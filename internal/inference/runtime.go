package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Metadata describes the bundled model: the label set in output order
// and the tensor shapes.
type Metadata struct {
	Labels      []string `json:"labels"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
}

// Handle is the loaded model: session plus pre-allocated input and
// output tensors. One handle exists per process; it is never destroyed
// while requests may still arrive.
type Handle struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	meta    Metadata

	// The session writes into shared tensors, so forward passes are
	// serialized.
	mu sync.Mutex
}

// Labels returns the class labels in output order.
func (h *Handle) Labels() []string {
	return h.meta.Labels
}

// InputShape returns the model's expected NHWC input shape.
func (h *Handle) InputShape() []int64 {
	return h.meta.InputShape
}

func (h *Handle) run(t *Tensor) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dst := h.input.GetData()
	if len(t.Data) != len(dst) {
		return nil, fmt.Errorf("input tensor has %d values, model expects %d", len(t.Data), len(dst))
	}
	copy(dst, t.Data)

	if err := h.session.Run(); err != nil {
		return nil, fmt.Errorf("forward pass failed: %w", err)
	}

	src := h.output.GetData()
	scores := make([]float32, len(src))
	copy(scores, src)
	return scores, nil
}

func (h *Handle) close() {
	if h.input != nil {
		h.input.Destroy()
	}
	if h.output != nil {
		h.output.Destroy()
	}
	if h.session != nil {
		h.session.Destroy()
	}
}

// Runtime owns the lazily loaded model singleton. The first Classify
// (or EnsureLoaded) call performs the load and warm-up exactly once,
// even under concurrent first requests; a load failure is sticky and
// reported on every subsequent call without retrying.
type Runtime struct {
	mu      sync.Mutex
	handle  *Handle
	loadErr error
	loaded  bool

	load   func() (*Handle, error)
	logger *zap.Logger
}

// NewRuntime builds a runtime over a bundled ONNX model and its label
// metadata. Nothing is loaded until the first request.
func NewRuntime(modelPath, metadataPath string, logger *zap.Logger) *Runtime {
	return &Runtime{
		load:   func() (*Handle, error) { return loadModel(modelPath, metadataPath) },
		logger: logger.Named("model_runtime"),
	}
}

// NewRuntimeWithLoader builds a runtime with a custom load function,
// for tests.
func NewRuntimeWithLoader(load func() (*Handle, error), logger *zap.Logger) *Runtime {
	return &Runtime{load: load, logger: logger.Named("model_runtime")}
}

// EnsureLoaded performs the one-time load and warm-up under a single
// mutex: the first caller loads while concurrent callers block and
// then observe the cached outcome.
func (r *Runtime) EnsureLoaded(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		r.handle, r.loadErr = r.load()
		r.loaded = true
		if r.loadErr != nil {
			r.logger.Error("model load failed", zap.Error(r.loadErr))
		} else {
			r.logger.Info("model loaded",
				zap.Strings("labels", r.handle.meta.Labels),
				zap.Int64s("input_shape", r.handle.meta.InputShape))
		}
	}

	if r.loadErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, r.loadErr)
	}
	return r.handle, nil
}

// Classify runs one forward pass and returns a score per label, in
// label order.
func (r *Runtime) Classify(ctx context.Context, t *Tensor) ([]float32, []string, error) {
	handle, err := r.EnsureLoaded(ctx)
	if err != nil {
		return nil, nil, err
	}

	scores, err := handle.run(t)
	if err != nil {
		return nil, nil, err
	}
	return scores, handle.Labels(), nil
}

// Close releases the model handle. Only called on process shutdown.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		r.handle.close()
		r.handle = nil
	}
	if r.loaded && r.loadErr == nil {
		ort.DestroyEnvironment()
	}
}

func loadModel(modelPath, metadataPath string) (*Handle, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	handle := &Handle{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		meta:    meta,
	}

	// Warm-up pass on the zeroed input tensor forces backend
	// compilation and caching before the first real request.
	if err := session.Run(); err != nil {
		handle.close()
		return nil, fmt.Errorf("warm-up pass failed: %w", err)
	}

	return handle, nil
}
