package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/virtual-ta/ta-backend/internal/auth"
	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/logger"
)

// apiError carries an explicit status for errors raised in the HTTP layer.
type apiError struct {
	Status int
	Err    error
}

func (e *apiError) Error() string { return e.Err.Error() }
func (e *apiError) Unwrap() error { return e.Err }

func newAPIError(status int, format string, args ...any) *apiError {
	return &apiError{Status: status, Err: fmt.Errorf(format, args...)}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to an HTTP status and the message shown to the client.
func statusFor(err error) (int, string) {
	var ae *apiError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &ae):
		return ae.Status, ae.Error()
	case errors.As(err, &ve):
		return http.StatusBadRequest, validationMessage(ve)
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidToken.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, core.ErrGeneration), errors.Is(err, core.ErrUpstream):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, status, errorBody{Detail: msg})
}

func validationMessage(ve validator.ValidationErrors) string {
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", fe.Field(), fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}
