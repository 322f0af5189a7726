package inference

import (
	"errors"
	"time"
)

var (
	// ErrDecode indicates unreadable or corrupt image data.
	ErrDecode = errors.New("inference: image decode failed")
	// ErrModelUnavailable indicates the model could not be loaded. The
	// underlying load failure is sticky for the process lifetime.
	ErrModelUnavailable = errors.New("inference: model unavailable")
)

// Input geometry of the bundled classifier.
const (
	InputHeight   = 224
	InputWidth    = 224
	InputChannels = 3
)

// Tensor is a fixed-shape NHWC float buffer used as model input.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// Level buckets a classification confidence.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// ParameterResult is a single interpreted classification parameter.
type ParameterResult struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Level          Level  `json:"level"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"referenceRange"`
}

// Result is one analyzed image. ID stays zero until the result is
// persisted; the store assigns it.
type Result struct {
	ID         int64             `json:"id,omitempty"`
	OwnerID    int64             `json:"ownerId"`
	CreatedAt  time.Time         `json:"createdAt"`
	ImageRef   string            `json:"imageRef"`
	Parameters []ParameterResult `json:"parameters"`
}
