// Package backend talks to the remote AI backend. Every call returns a
// Result tagged with one of four outcomes; Send itself never fails.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/metrics"
)

const (
	defaultTimeout = 30 * time.Second
	tracerName     = "github.com/Toowiredd/excalidraw-Ty/internal/backend"

	HeaderRateLimit          = "X-Ratelimit-Limit"
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"
)

// Outcome classifies a backend response.
type Outcome int

const (
	OK Outcome = iota
	RateLimited
	ServerError
	NetworkError
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	case NetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Result is the classified response of one backend call.
//
// Body holds the raw response bytes for every outcome but NetworkError.
// ServerMessage is the "message" field of a JSON error body, empty when the
// body had none; Message falls back to a generic text built from the status.
// BodyStatusCode is the error body's "statusCode" field, 0 when absent. Only
// the HTTP status decides the outcome; flows may consult BodyStatusCode.
// The rate-limit fields are read from the headers of every response and are
// nil when the header was absent or not an integer.
type Result struct {
	Kind               Outcome
	Status             int
	Body               []byte
	Message            string
	ServerMessage      string
	BodyStatusCode     int
	RateLimit          *int
	RateLimitRemaining *int
	Err                error
}

// AsError returns the result as an apperr error, or nil for OK.
func (r Result) AsError() error {
	switch r.Kind {
	case OK:
		return nil
	case RateLimited:
		return apperr.RateLimited(r.Message, r.RateLimit, r.RateLimitRemaining)
	case ServerError:
		return apperr.ServerError(r.Status, r.Message)
	default:
		if r.Err != nil {
			return apperr.NetworkError(r.Err)
		}
		return apperr.NetworkError(errors.New(r.Message))
	}
}

// errorBody is the backend's error envelope.
type errorBody struct {
	StatusCode int             `json:"statusCode"`
	Message    json.RawMessage `json:"message"`
}

type Client struct {
	baseURL string
	http    *resty.Client
	log     zerolog.Logger
	tracer  trace.Tracer
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithAPIKey sends key as a bearer token on every call.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.http.SetAuthToken(key)
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// New returns a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json"),
		log:    zerolog.Nop(),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Send POSTs payload as JSON to endpoint and classifies the response.
func (c *Client) Send(ctx context.Context, endpoint string, payload any) Result {
	ctx, span := c.tracer.Start(ctx, "backend "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("aigw.endpoint", endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	req := c.http.R().SetContext(ctx).SetBody(payload)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := req.Post(endpoint)

	var res Result
	if err != nil {
		res = Result{Kind: NetworkError, Message: err.Error(), Err: err}
	} else {
		res = classify(resp.StatusCode(), resp.Header(), resp.Body())
	}
	elapsed := time.Since(start)

	metrics.BackendRequestsTotal.WithLabelValues(endpoint, res.Kind.String()).Inc()
	metrics.BackendDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.Int("http.response.status_code", res.Status),
		attribute.String("aigw.outcome", res.Kind.String()),
	)
	if res.Kind != OK {
		span.SetStatus(codes.Error, res.Message)
		if res.Err != nil {
			span.RecordError(res.Err)
		}
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", res.Status).
		Str("outcome", res.Kind.String()).
		Dur("latency", elapsed).
		Msg("backend call")

	return res
}

func classify(status int, header http.Header, body []byte) Result {
	res := Result{
		Status:             status,
		Body:               body,
		RateLimit:          headerInt(header, HeaderRateLimit),
		RateLimitRemaining: headerInt(header, HeaderRateLimitRemaining),
	}

	if status >= 200 && status < 300 {
		if !json.Valid(body) {
			res.Kind = ServerError
			res.Message = "invalid response"
			return res
		}
		res.Kind = OK
		return res
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		res.BodyStatusCode = eb.StatusCode
	}
	if len(eb.Message) > 0 {
		var msg string
		if json.Unmarshal(eb.Message, &msg) == nil {
			res.ServerMessage = msg
		}
	}

	res.Message = res.ServerMessage
	if res.Message == "" {
		res.Message = fmt.Sprintf("request failed with status: %d", status)
	}

	if status == http.StatusTooManyRequests {
		res.Kind = RateLimited
		return res
	}
	res.Kind = ServerError
	return res
}

func headerInt(h http.Header, key string) *int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
