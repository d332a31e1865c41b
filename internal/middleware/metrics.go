package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

// Metrics records request count by method, route, and status code.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.RequestsTotal.WithLabelValues(r.Method, routeLabel(r.URL.Path), strconv.Itoa(sw.status)).Inc()
	})
}

// routeLabel collapses model names out of the path to keep label
// cardinality bounded.
func routeLabel(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/models/")
	if !ok || rest == "" || rest == "load" {
		return path
	}
	if strings.HasSuffix(rest, "/predict") {
		return "/api/models/{name}/predict"
	}
	return "/api/models/{name}"
}
