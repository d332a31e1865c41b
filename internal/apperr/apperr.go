// Package apperr defines the error taxonomy shared by the gateway's
// components. Callers classify errors with KindOf or Is rather than by
// inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of an error.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindModelNotLoaded     Kind = "model_not_loaded"
	KindLoadFailure        Kind = "load_failure"
	KindInference          Kind = "inference"
	KindInvalidImageSource Kind = "invalid_image_source"
	KindRateLimited        Kind = "rate_limited"
	KindServerError        Kind = "server_error"
	KindNetworkError       Kind = "network_error"
	KindResponseShape      Kind = "response_shape"
	KindInternal           Kind = "internal"
)

// Error carries a Kind plus the data specific to it. Status is only set
// for backend-originated kinds; RateLimit and RateLimitRemaining are only
// set when the backend sent the corresponding headers.
type Error struct {
	Kind               Kind
	Op                 string
	Message            string
	Status             int
	RateLimit          *int
	RateLimitRemaining *int
	Err                error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus maps a kind to the status the gateway answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidImageSource:
		return http.StatusBadRequest
	case KindModelNotLoaded:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServerError, KindNetworkError, KindResponseShape, KindLoadFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func ModelNotLoaded(name string) *Error {
	return &Error{Kind: KindModelNotLoaded, Op: name, Message: fmt.Sprintf("model %s is not loaded", name)}
}

func LoadFailure(name string, cause error) *Error {
	return &Error{Kind: KindLoadFailure, Op: name, Message: fmt.Sprintf("failed to load model %s: %v", name, cause), Err: cause}
}

func Inference(cause error) *Error {
	return &Error{Kind: KindInference, Message: fmt.Sprintf("prediction failed: %v", cause), Err: cause}
}

func InvalidImageSource(reason string, cause error) *Error {
	return &Error{Kind: KindInvalidImageSource, Message: "invalid image source: " + reason, Err: cause}
}

func RateLimited(msg string, limit, remaining *int) *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: msg, RateLimit: limit, RateLimitRemaining: remaining}
}

func ServerError(status int, msg string) *Error {
	return &Error{Kind: KindServerError, Status: status, Message: msg}
}

// NetworkError keeps the cause's message unchanged.
func NetworkError(cause error) *Error {
	return &Error{Kind: KindNetworkError, Message: cause.Error(), Err: cause}
}

func ResponseShape(msg string) *Error {
	return &Error{Kind: KindResponseShape, Message: msg}
}
