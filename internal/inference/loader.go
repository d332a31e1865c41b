package inference

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// SourceLoader picks a runtime from the shape of the source location:
//
//	/path/model.json, file:///path/model.json  -> channel-linear artifact on disk
//	http(s)://host/.../model.json              -> channel-linear artifact fetched over HTTP
//	http(s)://host/v1/models/<name>            -> TensorFlow Serving REST endpoint
type SourceLoader struct {
	Client *resty.Client
}

// NewSourceLoader returns a loader whose HTTP fetches time out after timeout.
func NewSourceLoader(timeout time.Duration) *SourceLoader {
	return &SourceLoader{
		Client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
	}
}

func (l *SourceLoader) Load(ctx context.Context, name, source string) (Model, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("inference: parse source: %w", err)
	}

	switch u.Scheme {
	case "", "file":
		path := source
		if u.Scheme == "file" {
			path = u.Path
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("inference: read artifact: %w", err)
		}
		return linearModel(name, data)

	case "http", "https":
		if strings.HasSuffix(u.Path, ".json") {
			return l.fetchLinear(ctx, name, source)
		}
		m, err := loadTFServing(ctx, l.Client, name, source)
		if err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, fmt.Errorf("inference: unsupported source scheme %q", u.Scheme)
	}
}

func (l *SourceLoader) fetchLinear(ctx context.Context, name, source string) (Model, error) {
	resp, err := l.Client.R().SetContext(ctx).Get(source)
	if err != nil {
		return nil, fmt.Errorf("inference: fetch artifact: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("inference: fetch artifact: unexpected status %d", resp.StatusCode())
	}
	return linearModel(name, resp.Body())
}

func linearModel(name string, data []byte) (Model, error) {
	m, err := ParseLinear(name, data)
	if err != nil {
		return nil, err
	}
	return m, nil
}
