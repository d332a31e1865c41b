// Package registry owns the set of loaded inference models, keyed by
// logical name.
//
// A name maps to an entry only after its load has fully succeeded, so
// Predict never observes a partially loaded model. Concurrent loads of the
// same name share a single in-flight ticket: one loader call, one result
// (or one failure) delivered to every waiter.
package registry

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/imaging"
	"github.com/Toowiredd/excalidraw-Ty/internal/inference"
	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

const defaultLoadTimeout = 2 * time.Minute

var errNilModel = errors.New("loader returned no model")

// Entry is a successfully loaded model. Entries are never mutated.
type Entry struct {
	Name     string
	Source   string
	Model    inference.Model
	LoadedAt time.Time
}

type Registry struct {
	loader      inference.Loader
	svc         *inference.Service
	loadTimeout time.Duration
	log         zerolog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	entries  map[string]Entry
	inflight singleflight.Group
}

type Option func(*Registry)

// WithLoadTimeout bounds each load, independently of any caller's context.
func WithLoadTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.loadTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func New(loader inference.Loader, svc *inference.Service, opts ...Option) *Registry {
	r := &Registry{
		loader:      loader,
		svc:         svc,
		loadTimeout: defaultLoadTimeout,
		log:         zerolog.Nop(),
		now:         time.Now,
		entries:     make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadModel makes name available for Predict. A name that is already
// loaded is returned as-is, even if source differs. If a load for name is
// in flight the call waits on it instead of starting another.
//
// Cancelling ctx only stops this caller from waiting; the load itself keeps
// running so other waiters, and later callers, still get the model.
func (r *Registry) LoadModel(ctx context.Context, name, source string) (Entry, error) {
	name = strings.TrimSpace(name)
	source = strings.TrimSpace(source)
	if name == "" {
		return Entry{}, apperr.Validation("model name is required")
	}
	if source == "" {
		return Entry{}, apperr.Validation("model source is required")
	}

	if e, ok := r.Get(name); ok {
		return e, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(name, func() (any, error) {
		return r.load(loadCtx, name, source)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// load runs inside the in-flight ticket for name.
func (r *Registry) load(ctx context.Context, name, source string) (Entry, error) {
	// A previous ticket may have stored the entry between the caller's
	// check and joining this ticket.
	if e, ok := r.Get(name); ok {
		return e, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	start := time.Now()
	m, err := r.loader.Load(ctx, name, source)
	if err == nil && m == nil {
		err = errNilModel
	}
	if err != nil {
		metrics.ModelLoadsTotal.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("model", name).Str("source", source).Msg("model load failed")
		return Entry{}, apperr.LoadFailure(name, err)
	}

	e := Entry{Name: name, Source: source, Model: m, LoadedAt: r.now()}

	r.mu.Lock()
	r.entries[name] = e
	n := len(r.entries)
	r.mu.Unlock()

	metrics.ModelLoadsTotal.WithLabelValues("ok").Inc()
	metrics.ModelsLoaded.Set(float64(n))
	r.log.Info().
		Str("model", name).
		Str("source", source).
		Str("format", m.Format()).
		Dur("elapsed", time.Since(start)).
		Msg("model loaded")
	return e, nil
}

// Predict runs the named model against input. It fails with
// ModelNotLoaded, without running anything, when name has no entry.
func (r *Registry) Predict(ctx context.Context, name string, input imaging.Tensor) ([]float32, error) {
	e, ok := r.Get(name)
	if !ok {
		return nil, apperr.ModelNotLoaded(name)
	}
	return r.svc.Run(ctx, e.Model, input)
}

func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// List returns the loaded entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Evict removes name and closes its model when it holds resources. It does
// not affect a load of the same name that is still in flight.
func (r *Registry) Evict(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	n := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return false
	}
	metrics.ModelsLoaded.Set(float64(n))
	if c, isCloser := e.Model.(io.Closer); isCloser {
		if err := c.Close(); err != nil {
			r.log.Warn().Err(err).Str("model", name).Msg("close evicted model")
		}
	}
	r.log.Info().Str("model", name).Msg("model evicted")
	return true
}

// Close evicts every model.
func (r *Registry) Close() error {
	for _, e := range r.List() {
		r.Evict(e.Name)
	}
	return nil
}
