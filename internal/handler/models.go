package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
	"github.com/Toowiredd/excalidraw-Ty/internal/registry"
)

// ModelRegistry is the part of *registry.Registry the handlers use.
type ModelRegistry interface {
	LoadModel(ctx context.Context, name, source string) (registry.Entry, error)
	Predict(ctx context.Context, name string, input imaging.Tensor) ([]float32, error)
	Get(name string) (registry.Entry, bool)
	List() []registry.Entry
	Evict(name string) bool
}

type modelInfo struct {
	Name     string    `json:"name"`
	Source   string    `json:"source"`
	Format   string    `json:"format"`
	Version  string    `json:"version,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

// versioned is implemented by runtimes that serve a specific model version.
type versioned interface {
	Version() string
}

func toModelInfo(e registry.Entry) modelInfo {
	info := modelInfo{Name: e.Name, Source: e.Source, Format: e.Model.Format(), LoadedAt: e.LoadedAt}
	if v, ok := e.Model.(versioned); ok {
		info.Version = v.Version()
	}
	return info
}

func Models(models ModelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := models.List()
		out := make([]modelInfo, 0, len(entries))
		for _, e := range entries {
			out = append(out, toModelInfo(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type loadRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func LoadModel(models ModelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		e, err := models.LoadModel(r.Context(), req.Name, req.Source)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toModelInfo(e))
	}
}

func EvictModel(models ModelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if !models.Evict(name) {
			writeAppError(w, r, apperr.ModelNotLoaded(name))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type predictRequest struct {
	Image string `json:"image"`
}

type predictResponse struct {
	Model     string    `json:"model"`
	Output    []float32 `json:"output"`
	Labels    []string  `json:"labels,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms"`
}

type labeled interface {
	Labels() []string
}

// Predict decodes the posted image, normalizes it and runs the named model.
func Predict(models ModelRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		var req predictRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Image == "" {
			writeAppError(w, r, apperr.Validation("image is required"))
			return
		}

		// Fail before decoding a potentially large image.
		e, ok := models.Get(name)
		if !ok {
			writeAppError(w, r, apperr.ModelNotLoaded(name))
			return
		}

		img, err := imaging.DecodeDataURL(req.Image)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		input, err := imaging.Normalize(img)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		start := time.Now()
		out, err := models.Predict(r.Context(), name, input)
		elapsed := time.Since(start)
		if err != nil {
			writeAppError(w, r, err)
			return
		}

		resp := predictResponse{Model: name, Output: out, ElapsedMs: elapsed.Milliseconds()}
		if l, ok := e.Model.(labeled); ok {
			resp.Labels = l.Labels()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
