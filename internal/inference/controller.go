package inference

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Engine abstracts the model runtime for the controller.
type Engine interface {
	Classify(ctx context.Context, t *Tensor) ([]float32, []string, error)
}

// Controller orchestrates decode, classify and interpret into one
// analysis call. It never persists; storage is the caller's concern so
// inference stays independently testable.
type Controller struct {
	decoder Decoder
	engine  Engine
	logger  *zap.Logger
	now     func() time.Time
}

// NewController wires a decoder and an engine together.
func NewController(decoder Decoder, engine Engine, logger *zap.Logger) *Controller {
	return &Controller{
		decoder: decoder,
		engine:  engine,
		logger:  logger.Named("inference_controller"),
		now:     time.Now,
	}
}

// Analyze classifies one image and assembles an unsaved result. Any
// decoder or engine failure aborts the call and propagates unmodified;
// no partial result is produced.
func (c *Controller) Analyze(ctx context.Context, imageRef string, imageData []byte, ownerID int64) (*Result, error) {
	tensor, err := c.decoder.Decode(imageData)
	if err != nil {
		c.logger.Warn("image decode failed", zap.String("image_ref", imageRef), zap.Error(err))
		return nil, err
	}

	scores, labels, err := c.engine.Classify(ctx, tensor)
	if err != nil {
		c.logger.Error("classification failed", zap.String("image_ref", imageRef), zap.Error(err))
		return nil, err
	}

	return &Result{
		OwnerID:    ownerID,
		CreatedAt:  c.now().UTC(),
		ImageRef:   imageRef,
		Parameters: Interpret(scores, labels),
	}, nil
}
