package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
)

// FormatChannelLinear is a small local artifact: one weight row of
// per-channel coefficients (plus bias) per output label, applied to the
// channel means of the input.
const FormatChannelLinear = "channel-linear"

type linearArtifact struct {
	Format  string      `json:"format"`
	Labels  []string    `json:"labels"`
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

// LinearModel evaluates a channel-linear artifact.
type LinearModel struct {
	name    string
	labels  []string
	weights [][]float32
	bias    []float32
}

// ParseLinear decodes and validates a channel-linear artifact.
func ParseLinear(name string, data []byte) (*LinearModel, error) {
	var a linearArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("channel-linear: decode artifact: %w", err)
	}
	if a.Format != FormatChannelLinear {
		return nil, fmt.Errorf("channel-linear: unsupported format %q", a.Format)
	}
	if len(a.Weights) == 0 {
		return nil, errors.New("channel-linear: no weights")
	}
	for i, row := range a.Weights {
		if len(row) != imaging.Channels {
			return nil, fmt.Errorf("channel-linear: weights[%d] has %d values, want %d", i, len(row), imaging.Channels)
		}
	}
	if len(a.Bias) != 0 && len(a.Bias) != len(a.Weights) {
		return nil, fmt.Errorf("channel-linear: %d biases for %d outputs", len(a.Bias), len(a.Weights))
	}
	if len(a.Labels) != 0 && len(a.Labels) != len(a.Weights) {
		return nil, fmt.Errorf("channel-linear: %d labels for %d outputs", len(a.Labels), len(a.Weights))
	}
	return &LinearModel{name: name, labels: a.Labels, weights: a.Weights, bias: a.Bias}, nil
}

func (m *LinearModel) Name() string     { return m.name }
func (m *LinearModel) Format() string   { return FormatChannelLinear }
func (m *LinearModel) Labels() []string { return m.labels }

func (m *LinearModel) Predict(ctx context.Context, input imaging.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := len(input.Shape); n == 0 || input.Shape[n-1] != imaging.Channels {
		return nil, fmt.Errorf("channel-linear: input shape %v must end in %d channels", input.Shape, imaging.Channels)
	}

	var sums [imaging.Channels]float64
	pixels := len(input.Data) / imaging.Channels
	if pixels == 0 {
		return nil, errors.New("channel-linear: empty input")
	}
	for i := 0; i < pixels; i++ {
		for c := 0; c < imaging.Channels; c++ {
			sums[c] += float64(input.Data[i*imaging.Channels+c])
		}
	}

	out := make([]float32, len(m.weights))
	for o, row := range m.weights {
		var v float64
		for c := 0; c < imaging.Channels; c++ {
			v += float64(row[c]) * sums[c] / float64(pixels)
		}
		if len(m.bias) > 0 {
			v += float64(m.bias[o])
		}
		out[o] = float32(v)
	}
	return out, nil
}
