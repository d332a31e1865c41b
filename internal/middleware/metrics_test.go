package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
		label  string
	}{
		{http.MethodGet, "/api/health", http.StatusOK, "200"},
		{http.MethodPost, "/api/ai/text-to-diagram", http.StatusBadGateway, "502"},
		{http.MethodDelete, "/api/models/ghost", http.StatusNotFound, "404"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			counter := metrics.RequestsTotal.WithLabelValues(tt.method, routeLabel(tt.path), tt.label)
			before := testutil.ToFloat64(counter)

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			if after := testutil.ToFloat64(counter); after != before+1 {
				t.Errorf("counter: got %v, want %v", after, before+1)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/health", "/api/health"},
		{"/api/models", "/api/models"},
		{"/api/models/load", "/api/models/load"},
		{"/api/models/sketch", "/api/models/{name}"},
		{"/api/models/sketch/predict", "/api/models/{name}/predict"},
		{"/api/ai/entities", "/api/ai/entities"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := routeLabel(tt.path); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsMiddlewareCollapsesModelNames(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := Metrics(inner)

	before := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "/api/models/{name}/predict", "200"))

	for _, name := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/models/"+name+"/predict", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	after := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "/api/models/{name}/predict", "200"))
	if after != before+2 {
		t.Errorf("counter: got %f, want %f", after, before+2)
	}
}
