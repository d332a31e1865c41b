package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Toowiredd/excalidraw-Ty/internal/apperr"
	"github.com/Toowiredd/excalidraw-Ty/internal/backend"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, kind string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

// writeAppError answers with the status of err's kind. Backend rate-limit
// headers carried by err are passed on.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := apperr.HTTPStatus(kind)

	if e, ok := apperr.As(err); ok {
		setRateLimitHeaders(w, e.RateLimit, e.RateLimitRemaining)
	}

	msg := err.Error()
	if kind == apperr.KindInternal {
		msg = "internal error"
	}
	if code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}
	writeError(w, code, msg, string(kind))
}

// decodeJSON reads the body into v, answering 413 or 400 itself when it
// cannot. It reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", string(apperr.KindValidation))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", string(apperr.KindValidation))
		return false
	}
	return true
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining *int) {
	if limit != nil {
		w.Header().Set(backend.HeaderRateLimit, strconv.Itoa(*limit))
	}
	if remaining != nil {
		w.Header().Set(backend.HeaderRateLimitRemaining, strconv.Itoa(*remaining))
	}
}
