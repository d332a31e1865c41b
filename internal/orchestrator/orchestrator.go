// Package orchestrator implements the backend-mediated AI flows: entity
// extraction, object detection, diagram-to-code and text-to-diagram. Each
// flow builds its request, sends it through a Sender and turns the
// classified result into a flow-specific value or an apperr error.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/backend"
	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

const (
	EndpointExtractEntities = "/v1/ai/nlp/extract-entities"
	EndpointDetectObjects   = "/v1/ai/image/detect-objects"
	EndpointDiagramToCode   = "/v1/ai/diagram-to-code/generate"
	EndpointTextToDiagram   = "/v1/ai/text-to-diagram/generate"

	DefaultPlusURL = "https://plus.excalidraw.com"
)

const (
	msgTooManyRequests  = "Too many requests. Please try again later. (Rate limit exceeded)"
	msgDailyLimit       = "Too many requests today, please try again tomorrow!"
	msgDiagramInvalid   = "Generation failed (invalid response)"
	msgTextToDiagramErr = "Generation failed..."
)

// Sender performs one classified backend call. *backend.Client implements it.
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any) backend.Result
}

// EntitiesResult is the backend's entity-extraction body. Raw is the body
// verbatim; Entities is its "entities" field, nil when absent.
type EntitiesResult struct {
	Raw      json.RawMessage
	Entities json.RawMessage
}

// ObjectsResult is the backend's object-detection body.
type ObjectsResult struct {
	Raw     json.RawMessage
	Objects json.RawMessage
}

// DiagramRequest describes a frame to turn into code. ImageDataURL takes
// precedence over Frame; one of them is required.
type DiagramRequest struct {
	Frame        image.Image
	ImageDataURL string
	Texts        string
	Theme        string
}

// DiagramResult is the generated markup. RateLimited marks the static
// notice served in place of generated code when the backend refused.
type DiagramResult struct {
	HTML        string
	RateLimited bool
}

// TextToDiagramResult carries the rate-limit headers of every response. A
// rate-limited call returns Err set and no Go error.
type TextToDiagramResult struct {
	GeneratedResponse  string
	RateLimit          *int
	RateLimitRemaining *int
	Err                error
}

type Orchestrator struct {
	client      Sender
	plusURL     string
	jpegQuality int
	log         zerolog.Logger
}

type Option func(*Orchestrator)

// WithPlusURL sets the landing page linked from the rate-limit notice.
func WithPlusURL(u string) Option {
	return func(o *Orchestrator) {
		if u != "" {
			o.plusURL = strings.TrimRight(u, "/")
		}
	}
}

func WithJPEGQuality(q int) Option {
	return func(o *Orchestrator) {
		if q > 0 && q <= 100 {
			o.jpegQuality = q
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(client Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		plusURL:     DefaultPlusURL,
		jpegQuality: imaging.DefaultJPEGQuality,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExtractEntities posts text to the entity-extraction endpoint. Blank text
// is rejected before any request is made.
func (o *Orchestrator) ExtractEntities(ctx context.Context, text string) (EntitiesResult, error) {
	if strings.TrimSpace(text) == "" {
		return EntitiesResult{}, apperr.Validation("input text cannot be empty")
	}
	metrics.InputChars.WithLabelValues("entities").Observe(float64(len([]rune(text))))

	raw, err := o.analyze(ctx, EndpointExtractEntities, map[string]string{"text": text}, "NLP task")
	if err != nil {
		return EntitiesResult{}, err
	}

	var body struct {
		Entities json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		o.log.Debug().Err(err).Msg("entities body is not an object")
	}
	return EntitiesResult{Raw: raw, Entities: body.Entities}, nil
}

// DetectObjects rasterizes img to a JPEG data URL and posts it to the
// object-detection endpoint.
func (o *Orchestrator) DetectObjects(ctx context.Context, img image.Image) (ObjectsResult, error) {
	if img == nil {
		return ObjectsResult{}, apperr.Validation("no image provided")
	}
	dataURL, err := imaging.EncodeJPEGDataURL(img, o.jpegQuality)
	if err != nil {
		return ObjectsResult{}, err
	}

	raw, err := o.analyze(ctx, EndpointDetectObjects, map[string]string{"imageDataUrl": dataURL}, "Image recognition")
	if err != nil {
		return ObjectsResult{}, err
	}

	var body struct {
		Objects json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		o.log.Debug().Err(err).Msg("objects body is not an object")
	}
	return ObjectsResult{Raw: raw, Objects: body.Objects}, nil
}

// analyze is the shared request/response handling of the two analysis
// flows. failure prefixes the generic message of an unexplained error.
func (o *Orchestrator) analyze(ctx context.Context, endpoint string, payload any, failure string) (json.RawMessage, error) {
	res := o.client.Send(ctx, endpoint, payload)

	switch res.Kind {
	case backend.OK:
		return json.RawMessage(res.Body), nil

	case backend.RateLimited:
		o.log.Warn().Str("endpoint", endpoint).Msg("backend rate limit reached")
		return nil, apperr.RateLimited(msgTooManyRequests, res.RateLimit, res.RateLimitRemaining)

	case backend.ServerError:
		if successStatus(res.Status) {
			return nil, apperr.ResponseShape(res.Message)
		}
		msg := res.ServerMessage
		if msg == "" {
			msg = fmt.Sprintf("%s failed with status: %d", failure, res.Status)
		}
		return nil, apperr.ServerError(res.Status, msg)

	default:
		return nil, res.AsError()
	}
}

// GenerateFromDiagram asks the backend to turn a frame into HTML. When the
// backend rate-limits the caller, a static notice is returned as a
// successful result.
func (o *Orchestrator) GenerateFromDiagram(ctx context.Context, req DiagramRequest) (DiagramResult, error) {
	dataURL := req.ImageDataURL
	if dataURL != "" && !isImageDataURL(dataURL) {
		return DiagramResult{}, apperr.Validation("image must be a base64 data:image/ URL")
	}
	if dataURL == "" {
		if req.Frame == nil {
			return DiagramResult{}, apperr.Validation("no frame image provided")
		}
		var err error
		if dataURL, err = imaging.EncodeJPEGDataURL(req.Frame, o.jpegQuality); err != nil {
			return DiagramResult{}, err
		}
	}
	metrics.InputChars.WithLabelValues("diagram_to_code").Observe(float64(len([]rune(req.Texts))))

	res := o.client.Send(ctx, EndpointDiagramToCode, map[string]string{
		"texts": req.Texts,
		"image": dataURL,
		"theme": req.Theme,
	})

	switch res.Kind {
	case backend.OK:
		var body struct {
			HTML string `json:"html"`
		}
		if err := json.Unmarshal(res.Body, &body); err != nil || body.HTML == "" {
			return DiagramResult{}, apperr.ResponseShape(msgDiagramInvalid)
		}
		return DiagramResult{HTML: body.HTML}, nil

	case backend.RateLimited:
		o.log.Warn().Str("endpoint", EndpointDiagramToCode).Msg("backend rate limit reached, serving notice")
		return DiagramResult{HTML: o.RateLimitNotice(), RateLimited: true}, nil

	case backend.ServerError:
		// This endpoint may report its quota in the body under another status.
		if res.BodyStatusCode == http.StatusTooManyRequests {
			o.log.Warn().Int("status", res.Status).Msg("backend quota reached, serving notice")
			return DiagramResult{HTML: o.RateLimitNotice(), RateLimited: true}, nil
		}
		if successStatus(res.Status) {
			return DiagramResult{}, apperr.ResponseShape(msgDiagramInvalid)
		}
		msg := res.ServerMessage
		if msg == "" {
			msg = strings.TrimSpace(string(res.Body))
		}
		if msg == "" {
			msg = fmt.Sprintf("Generation failed with status: %d", res.Status)
		}
		return DiagramResult{}, apperr.ServerError(res.Status, msg)

	default:
		return DiagramResult{}, res.AsError()
	}
}

// GenerateFromText asks the backend for a diagram description of prompt.
// The backend's rate-limit headers are copied into the result whatever
// the outcome.
func (o *Orchestrator) GenerateFromText(ctx context.Context, prompt string) (TextToDiagramResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return TextToDiagramResult{}, apperr.Validation("prompt cannot be empty")
	}
	metrics.InputChars.WithLabelValues("text_to_diagram").Observe(float64(len([]rune(prompt))))

	res := o.client.Send(ctx, EndpointTextToDiagram, map[string]string{"prompt": prompt})
	out := TextToDiagramResult{RateLimit: res.RateLimit, RateLimitRemaining: res.RateLimitRemaining}

	switch res.Kind {
	case backend.OK:
		var body struct {
			GeneratedResponse string `json:"generatedResponse"`
		}
		if err := json.Unmarshal(res.Body, &body); err != nil || body.GeneratedResponse == "" {
			return out, apperr.ResponseShape(msgTextToDiagramErr)
		}
		out.GeneratedResponse = body.GeneratedResponse
		return out, nil

	case backend.RateLimited:
		o.log.Warn().Str("endpoint", EndpointTextToDiagram).Msg("backend rate limit reached")
		out.Err = apperr.RateLimited(msgDailyLimit, res.RateLimit, res.RateLimitRemaining)
		return out, nil

	case backend.ServerError:
		if successStatus(res.Status) {
			return out, apperr.ResponseShape(msgTextToDiagramErr)
		}
		msg := res.ServerMessage
		if msg == "" {
			msg = msgTextToDiagramErr
		}
		return out, apperr.ServerError(res.Status, msg)

	default:
		return out, res.AsError()
	}
}

// RateLimitNotice is the markup served by GenerateFromDiagram while the
// backend is refusing requests.
func (o *Orchestrator) RateLimitNotice() string {
	link := html.EscapeString(o.plusURL + "/plus?utm_source=excalidraw&utm_medium=app&utm_content=d2c")
	return `<html>
<body style="margin: 0; text-align: center">
<div style="display: flex; align-items: center; justify-content: center; flex-direction: column; height: 100vh; padding: 0 60px">
  <div style="color:red">Too many requests today,</br>please try again tomorrow!</div>
  </br>
  </br>
  <div>You can also try <a href="` + link + `" target="_blank" rel="noopener">Excalidraw+</a> to get more requests.</div>
</div>
</body>
</html>`
}

func isImageDataURL(s string) bool {
	header, _, ok := strings.Cut(s, ",")
	return ok && strings.HasPrefix(header, "data:image/") && strings.HasSuffix(header, ";base64")
}

func successStatus(status int) bool {
	return status >= 200 && status < 300
}
