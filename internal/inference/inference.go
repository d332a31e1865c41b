// Package inference runs loaded models against preprocessed tensors.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

// Model is a loaded inference artifact.
type Model interface {
	Name() string
	Format() string
	Predict(ctx context.Context, input imaging.Tensor) ([]float32, error)
}

// Loader fetches a model's artifacts from source and prepares it for use.
type Loader interface {
	Load(ctx context.Context, name, source string) (Model, error)
}

// Service executes models. It owns no state; it validates inputs,
// classifies failures, and records latency.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Run executes m against input and returns its flat output.
func (s *Service) Run(ctx context.Context, m Model, input imaging.Tensor) ([]float32, error) {
	if m == nil {
		return nil, apperr.Inference(errors.New("nil model"))
	}
	if err := checkInput(input); err != nil {
		return nil, apperr.Inference(err)
	}

	start := time.Now()
	out, err := m.Predict(ctx, input)
	metrics.InferenceDuration.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperr.Inference(err)
	}
	return out, nil
}

func checkInput(t imaging.Tensor) error {
	if len(t.Shape) == 0 || t.Shape[0] != 1 {
		return fmt.Errorf("input must have a leading batch dimension of 1, got shape %v", t.Shape)
	}
	if len(t.Data) != t.Len() {
		return fmt.Errorf("input has %d values, shape %v needs %d", len(t.Data), t.Shape, t.Len())
	}
	return nil
}
