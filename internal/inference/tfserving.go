package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
)

// FormatTFServing marks models served by a TensorFlow Serving compatible
// REST endpoint. The source is the model URL, e.g.
// http://serving:8501/v1/models/sketch.
const FormatTFServing = "tfserving"

type tfStatusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

type tfPredictRequest struct {
	Instances []any `json:"instances"`
}

type tfPredictResponse struct {
	Predictions json.RawMessage `json:"predictions"`
	Error       string          `json:"error"`
}

// TFServingModel forwards predictions to a remote serving endpoint.
type TFServingModel struct {
	name    string
	url     string
	version string
	client  *resty.Client
}

func loadTFServing(ctx context.Context, client *resty.Client, name, url string) (*TFServingModel, error) {
	url = strings.TrimRight(url, "/")

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("tfserving: request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tfserving: unexpected status %d", resp.StatusCode())
	}

	var status tfStatusResponse
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("tfserving: decode status: %w", err)
	}

	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return &TFServingModel{name: name, url: url, version: v.Version, client: client}, nil
		}
	}
	return nil, errors.New("tfserving: no AVAILABLE model version")
}

func (m *TFServingModel) Name() string    { return m.name }
func (m *TFServingModel) Format() string  { return FormatTFServing }
func (m *TFServingModel) Version() string { return m.version }

func (m *TFServingModel) Predict(ctx context.Context, input imaging.Tensor) ([]float32, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("tfserving: input shape %v has no instance dimensions", input.Shape)
	}
	instance, err := nest(input.Shape[1:], input.Data)
	if err != nil {
		return nil, fmt.Errorf("tfserving: %w", err)
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(tfPredictRequest{Instances: []any{instance}}).
		Post(m.url + ":predict")
	if err != nil {
		return nil, fmt.Errorf("tfserving: request: %w", err)
	}

	var out tfPredictResponse
	decodeErr := json.Unmarshal(resp.Body(), &out)
	if resp.IsError() {
		if out.Error != "" {
			return nil, fmt.Errorf("tfserving: %s", out.Error)
		}
		return nil, fmt.Errorf("tfserving: unexpected status %d", resp.StatusCode())
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("tfserving: decode response: %w", decodeErr)
	}

	var predictions any
	if err := json.Unmarshal(out.Predictions, &predictions); err != nil {
		return nil, fmt.Errorf("tfserving: decode predictions: %w", err)
	}
	flat, err := flatten(predictions, nil)
	if err != nil {
		return nil, fmt.Errorf("tfserving: %w", err)
	}
	return flat, nil
}

// nest rebuilds a row-major slice into nested JSON arrays of the given shape.
func nest(shape []int, data []float32) (any, error) {
	if len(shape) == 0 {
		if len(data) != 1 {
			return nil, fmt.Errorf("shape/data mismatch")
		}
		return data[0], nil
	}
	if shape[0] == 0 || len(data)%shape[0] != 0 {
		return nil, fmt.Errorf("shape/data mismatch")
	}
	if len(shape) == 1 {
		return data, nil
	}
	step := len(data) / shape[0]
	out := make([]any, shape[0])
	for i := range out {
		v, err := nest(shape[1:], data[i*step:(i+1)*step])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func flatten(v any, dst []float32) ([]float32, error) {
	switch t := v.(type) {
	case float64:
		return append(dst, float32(t)), nil
	case []any:
		var err error
		for _, e := range t {
			if dst, err = flatten(e, dst); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("non-numeric prediction value %T", v)
	}
}
