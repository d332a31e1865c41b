package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Toowiredd/excalidraw-Ty/internal/handler"
	"github.com/Toowiredd/excalidraw-Ty/internal/middleware"
)

// Deps are the components the gateway routes to.
type Deps struct {
	Models            handler.ModelRegistry
	Flows             handler.Flows
	BackendConfigured bool
	Middleware        middleware.Options
}

// SetupMux wires handlers with the full middleware chain.
func SetupMux(d Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handler.Health(d.Models, d.BackendConfigured))

	mux.HandleFunc("GET /api/models", handler.Models(d.Models))
	mux.HandleFunc("POST /api/models/load", handler.LoadModel(d.Models))
	mux.HandleFunc("DELETE /api/models/{name}", handler.EvictModel(d.Models))
	mux.HandleFunc("POST /api/models/{name}/predict", handler.Predict(d.Models))

	mux.HandleFunc("POST /api/ai/entities", handler.Entities(d.Flows))
	mux.HandleFunc("POST /api/ai/objects", handler.Objects(d.Flows))
	mux.HandleFunc("POST /api/ai/diagram-to-code", handler.DiagramToCode(d.Flows))
	mux.HandleFunc("POST /api/ai/text-to-diagram", handler.TextToDiagram(d.Flows))

	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Chain(mux, d.Middleware)
}
