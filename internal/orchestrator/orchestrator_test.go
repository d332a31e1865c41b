package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/backend"
)

// fakeBackend answers every request with a fixed status, headers and body
// and records what it received.
type fakeBackend struct {
	status  int
	headers map[string]string
	body    string

	requests atomic.Int32

	mu       sync.Mutex
	lastPath string
	lastBody map[string]string
}

func (f *fakeBackend) sent() (string, map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath, f.lastBody
}

func (f *fakeBackend) start(t *testing.T) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastPath, f.lastBody = r.URL.Path, body
		f.mu.Unlock()

		for k, v := range f.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(f.status)
		io.WriteString(w, f.body)
	}))
	t.Cleanup(srv.Close)
	return New(backend.New(srv.URL), WithPlusURL("https://plus.example.com/"))
}

type senderFunc func(ctx context.Context, endpoint string, payload any) backend.Result

func (f senderFunc) Send(ctx context.Context, endpoint string, payload any) backend.Result {
	return f(ctx, endpoint, payload)
}

func frame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestExtractEntitiesOK(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{"entities":[{"text":"Paris","type":"LOC"}],"model":"ner-1"}`}
	o := f.start(t)

	got, err := o.ExtractEntities(context.Background(), "Visit Paris")
	require.NoError(t, err)

	path, sent := f.sent()
	assert.Equal(t, EndpointExtractEntities, path)
	assert.Equal(t, "Visit Paris", sent["text"])
	assert.JSONEq(t, f.body, string(got.Raw))
	assert.JSONEq(t, `[{"text":"Paris","type":"LOC"}]`, string(got.Entities))
}

func TestExtractEntitiesEmptyInput(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{}`}
	o := f.start(t)

	for _, text := range []string{"", "   \n\t"} {
		_, err := o.ExtractEntities(context.Background(), text)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	}
	assert.Equal(t, int32(0), f.requests.Load(), "no request may be issued for blank input")
}

func TestExtractEntitiesRateLimited(t *testing.T) {
	f := &fakeBackend{
		status:  429,
		headers: map[string]string{backend.HeaderRateLimit: "50", backend.HeaderRateLimitRemaining: "0"},
		body:    `{"message":"Rate limited"}`,
	}
	o := f.start(t)

	_, err := o.ExtractEntities(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateLimited))
	assert.Equal(t, "Too many requests. Please try again later. (Rate limit exceeded)", err.Error())

	e, ok := apperr.As(err)
	require.True(t, ok)
	require.NotNil(t, e.RateLimit)
	assert.Equal(t, 50, *e.RateLimit)
}

func TestExtractEntitiesServerErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"non-json body", 500, "upstream exploded", "NLP task failed with status: 500"},
		{"json without message", 503, `{"statusCode":503}`, "NLP task failed with status: 503"},
		{"server message", 400, `{"statusCode":400,"message":"text too long"}`, "text too long"},
		{"quota in body under 400", 400, `{"statusCode":429,"message":"daily quota"}`, "daily quota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{status: tt.status, body: tt.body}
			_, err := f.start(t).ExtractEntities(context.Background(), "hi")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindServerError))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestExtractEntitiesInvalidSuccessBody(t *testing.T) {
	f := &fakeBackend{status: 200, body: `<!doctype html>`}
	_, err := f.start(t).ExtractEntities(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindResponseShape), "got %v", err)
}

func TestExtractEntitiesNetworkError(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	o := New(senderFunc(func(context.Context, string, any) backend.Result {
		return backend.Result{Kind: backend.NetworkError, Message: cause.Error(), Err: cause}
	}))

	_, err := o.ExtractEntities(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNetworkError))
	assert.Equal(t, cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestDetectObjects(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{"objects":[{"label":"box","score":0.9}]}`}
	o := f.start(t)

	got, err := o.DetectObjects(context.Background(), frame())
	require.NoError(t, err)

	path, sent := f.sent()
	assert.Equal(t, EndpointDetectObjects, path)
	assert.True(t, strings.HasPrefix(sent["imageDataUrl"], "data:image/jpeg;base64,"))
	assert.JSONEq(t, `[{"label":"box","score":0.9}]`, string(got.Objects))
}

func TestDetectObjectsErrors(t *testing.T) {
	t.Run("no image", func(t *testing.T) {
		f := &fakeBackend{status: 200, body: `{}`}
		_, err := f.start(t).DetectObjects(context.Background(), nil)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, int32(0), f.requests.Load())
	})

	t.Run("zero size image", func(t *testing.T) {
		f := &fakeBackend{status: 200, body: `{}`}
		_, err := f.start(t).DetectObjects(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
		assert.True(t, apperr.Is(err, apperr.KindInvalidImageSource))
		assert.Equal(t, int32(0), f.requests.Load())
	})

	t.Run("rate limited", func(t *testing.T) {
		f := &fakeBackend{status: 429, body: `{}`}
		_, err := f.start(t).DetectObjects(context.Background(), frame())
		assert.True(t, apperr.Is(err, apperr.KindRateLimited))
		assert.Equal(t, "Too many requests. Please try again later. (Rate limit exceeded)", err.Error())
	})

	t.Run("server error", func(t *testing.T) {
		f := &fakeBackend{status: 502, body: `bad gateway`}
		_, err := f.start(t).DetectObjects(context.Background(), frame())
		assert.True(t, apperr.Is(err, apperr.KindServerError))
		assert.Equal(t, "Image recognition failed with status: 502", err.Error())
	})

	t.Run("quota in body is not a rate limit", func(t *testing.T) {
		f := &fakeBackend{status: 400, body: `{"statusCode":429,"message":"daily quota"}`}
		_, err := f.start(t).DetectObjects(context.Background(), frame())
		assert.True(t, apperr.Is(err, apperr.KindServerError))
		assert.Equal(t, "daily quota", err.Error())
	})
}

func TestGenerateFromDiagramOK(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{"html":"<html><body>ok</body></html>"}`}
	o := f.start(t)

	got, err := o.GenerateFromDiagram(context.Background(), DiagramRequest{
		Frame: frame(),
		Texts: "Login\nPassword",
		Theme: "dark",
	})
	require.NoError(t, err)

	assert.Equal(t, "<html><body>ok</body></html>", got.HTML)
	assert.False(t, got.RateLimited)
	path, sent := f.sent()
	assert.Equal(t, EndpointDiagramToCode, path)
	assert.Equal(t, "Login\nPassword", sent["texts"])
	assert.Equal(t, "dark", sent["theme"])
	assert.True(t, strings.HasPrefix(sent["image"], "data:image/jpeg;base64,"))
}

func TestGenerateFromDiagramPassesDataURL(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{"html":"<p/>"}`}
	o := f.start(t)

	_, err := o.GenerateFromDiagram(context.Background(), DiagramRequest{ImageDataURL: "data:image/jpeg;base64,AAAA"})
	require.NoError(t, err)
	_, sent := f.sent()
	assert.Equal(t, "data:image/jpeg;base64,AAAA", sent["image"])
}

func TestGenerateFromDiagramRateLimited(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status 429", 429, `{"message":"slow down"}`},
		{"statusCode in body", 400, `{"statusCode":429,"message":"quota"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{status: tt.status, body: tt.body}
			got, err := f.start(t).GenerateFromDiagram(context.Background(), DiagramRequest{Frame: frame()})
			require.NoError(t, err)

			assert.True(t, got.RateLimited)
			assert.Contains(t, got.HTML, "Too many requests today,</br>please try again tomorrow!")
			assert.Contains(t, got.HTML, "https://plus.example.com/plus?utm_source=excalidraw&amp;utm_medium=app&amp;utm_content=d2c")
		})
	}
}

func TestGenerateFromDiagramErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperr.Kind
		wantMsg  string
	}{
		{"missing html", 200, `{}`, apperr.KindResponseShape, "Generation failed (invalid response)"},
		{"empty html", 200, `{"html":""}`, apperr.KindResponseShape, "Generation failed (invalid response)"},
		{"non-json success", 200, `oops`, apperr.KindResponseShape, "Generation failed (invalid response)"},
		{"server message", 500, `{"message":"renderer crashed"}`, apperr.KindServerError, "renderer crashed"},
		{"raw text", 500, `Service Unavailable`, apperr.KindServerError, "Service Unavailable"},
		{"empty body", 500, ``, apperr.KindServerError, "Generation failed with status: 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{status: tt.status, body: tt.body}
			_, err := f.start(t).GenerateFromDiagram(context.Background(), DiagramRequest{Frame: frame()})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestGenerateFromDiagramRejectsNonImageURL(t *testing.T) {
	for _, u := range []string{
		"x",
		"http://internal.local/secret.png",
		"data:text/plain;base64,aGk=",
		"data:image/png,raw",
	} {
		t.Run(u, func(t *testing.T) {
			f := &fakeBackend{status: 200, body: `{"html":"<p/>"}`}
			_, err := f.start(t).GenerateFromDiagram(context.Background(), DiagramRequest{ImageDataURL: u})
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Equal(t, int32(0), f.requests.Load())
		})
	}
}

func TestGenerateFromDiagramNoImage(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{}`}
	_, err := f.start(t).GenerateFromDiagram(context.Background(), DiagramRequest{Texts: "x"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestGenerateFromTextOK(t *testing.T) {
	f := &fakeBackend{
		status:  200,
		headers: map[string]string{backend.HeaderRateLimit: "20", backend.HeaderRateLimitRemaining: "19"},
		body:    `{"generatedResponse":"flowchart TD\n A --> B"}`,
	}
	o := f.start(t)

	got, err := o.GenerateFromText(context.Background(), "draw a cat")
	require.NoError(t, err)

	_, sent := f.sent()
	assert.Equal(t, "draw a cat", sent["prompt"])
	assert.Equal(t, "flowchart TD\n A --> B", got.GeneratedResponse)
	assert.NoError(t, got.Err)
	require.NotNil(t, got.RateLimit)
	require.NotNil(t, got.RateLimitRemaining)
	assert.Equal(t, 20, *got.RateLimit)
	assert.Equal(t, 19, *got.RateLimitRemaining)
}

func TestGenerateFromTextRateLimited(t *testing.T) {
	f := &fakeBackend{
		status:  429,
		headers: map[string]string{backend.HeaderRateLimit: "20", backend.HeaderRateLimitRemaining: "0"},
		body:    `{"message":"Rate limited"}`,
	}

	got, err := f.start(t).GenerateFromText(context.Background(), "draw a cat")
	require.NoError(t, err)

	require.Error(t, got.Err)
	assert.Equal(t, "Too many requests today, please try again tomorrow!", got.Err.Error())
	assert.True(t, apperr.Is(got.Err, apperr.KindRateLimited))
	require.NotNil(t, got.RateLimit)
	require.NotNil(t, got.RateLimitRemaining)
	assert.Equal(t, 20, *got.RateLimit)
	assert.Equal(t, 0, *got.RateLimitRemaining)
	assert.Empty(t, got.GeneratedResponse)
}

func TestGenerateFromTextRateLimitedWithoutHeaders(t *testing.T) {
	f := &fakeBackend{status: 429, body: `{}`}

	got, err := f.start(t).GenerateFromText(context.Background(), "draw a cat")
	require.NoError(t, err)
	require.Error(t, got.Err)
	assert.Nil(t, got.RateLimit)
	assert.Nil(t, got.RateLimitRemaining)
}

func TestGenerateFromTextErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperr.Kind
		wantMsg  string
	}{
		{"missing generatedResponse", 200, `{}`, apperr.KindResponseShape, "Generation failed..."},
		{"server message", 500, `{"message":"model offline"}`, apperr.KindServerError, "model offline"},
		{"no message", 500, `nope`, apperr.KindServerError, "Generation failed..."},
		{"quota in body under 400", 400, `{"statusCode":429,"message":"daily quota"}`, apperr.KindServerError, "daily quota"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBackend{
				status:  tt.status,
				headers: map[string]string{backend.HeaderRateLimit: "5"},
				body:    tt.body,
			}
			got, err := f.start(t).GenerateFromText(context.Background(), "draw a cat")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())

			require.NotNil(t, got.RateLimit, "headers are kept on failures")
			assert.Equal(t, 5, *got.RateLimit)
		})
	}
}

func TestGenerateFromTextEmptyPrompt(t *testing.T) {
	f := &fakeBackend{status: 200, body: `{}`}
	_, err := f.start(t).GenerateFromText(context.Background(), "  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestRateLimitNoticeDefaultLink(t *testing.T) {
	o := New(senderFunc(func(context.Context, string, any) backend.Result { return backend.Result{} }))
	assert.Contains(t, o.RateLimitNotice(), `href="https://plus.excalidraw.com/plus?utm_source=excalidraw`)
}
