package handler

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"unicode/utf8"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
	"github.com/Toowiredd/excalidraw-Ty/internal/orchestrator"
)

const maxTextLength = 10000

// Flows is the part of *orchestrator.Orchestrator the handlers use.
type Flows interface {
	ExtractEntities(ctx context.Context, text string) (orchestrator.EntitiesResult, error)
	DetectObjects(ctx context.Context, img image.Image) (orchestrator.ObjectsResult, error)
	GenerateFromDiagram(ctx context.Context, req orchestrator.DiagramRequest) (orchestrator.DiagramResult, error)
	GenerateFromText(ctx context.Context, prompt string) (orchestrator.TextToDiagramResult, error)
}

type entitiesRequest struct {
	Text string `json:"text"`
}

// Entities relays the backend's entity-extraction body unchanged.
func Entities(flows Flows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req entitiesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := checkLength("text", req.Text); err != nil {
			writeAppError(w, r, err)
			return
		}

		res, err := flows.ExtractEntities(r.Context(), req.Text)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeRaw(w, res.Raw)
	}
}

type objectsRequest struct {
	Image string `json:"image"`
}

// Objects relays the backend's object-detection body unchanged.
func Objects(flows Flows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req objectsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Image == "" {
			writeAppError(w, r, apperr.Validation("no image provided"))
			return
		}
		img, err := imaging.DecodeDataURL(req.Image)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		res, err := flows.DetectObjects(r.Context(), img)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeRaw(w, res.Raw)
	}
}

type diagramRequest struct {
	Texts string `json:"texts"`
	Image string `json:"image"`
	Theme string `json:"theme"`
}

type diagramResponse struct {
	HTML        string `json:"html"`
	RateLimited bool   `json:"rate_limited"`
}

func DiagramToCode(flows Flows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req diagramRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := flows.GenerateFromDiagram(r.Context(), orchestrator.DiagramRequest{
			ImageDataURL: req.Image,
			Texts:        req.Texts,
			Theme:        req.Theme,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, diagramResponse{HTML: res.HTML, RateLimited: res.RateLimited})
	}
}

type textToDiagramRequest struct {
	Prompt string `json:"prompt"`
}

type textToDiagramResponse struct {
	GeneratedResponse  string `json:"generatedResponse,omitempty"`
	RateLimit          *int   `json:"rateLimit,omitempty"`
	RateLimitRemaining *int   `json:"rateLimitRemaining,omitempty"`
	Error              string `json:"error,omitempty"`
}

// TextToDiagram answers 200 when the backend rate-limits the caller, with
// the reason in "error" next to the limits.
func TextToDiagram(flows Flows) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req textToDiagramRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := checkLength("prompt", req.Prompt); err != nil {
			writeAppError(w, r, err)
			return
		}

		res, err := flows.GenerateFromText(r.Context(), req.Prompt)
		setRateLimitHeaders(w, res.RateLimit, res.RateLimitRemaining)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		resp := textToDiagramResponse{
			GeneratedResponse:  res.GeneratedResponse,
			RateLimit:          res.RateLimit,
			RateLimitRemaining: res.RateLimitRemaining,
		}
		if res.Err != nil {
			resp.Error = res.Err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkLength(field, s string) error {
	if n := utf8.RuneCountInString(s); n > maxTextLength {
		return apperr.Validation(fmt.Sprintf("%s too long: %d characters (max %d)", field, n, maxTextLength))
	}
	return nil
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
