package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/clanadmin/internal/model"
	"github.com/mcoot/clanadmin/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeMemberNotFound      = "MEMBER_NOT_FOUND"
	CodeRankNotFound        = "RANK_NOT_FOUND"
	CodeRunInProgress       = "RUN_IN_PROGRESS"
	CodeAlreadyExempt       = "ALREADY_EXEMPT"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Usage errors carry their own message
	case errors.Is(err, model.ErrForceDryRun),
		errors.Is(err, model.ErrInvalidPoints),
		errors.Is(err, model.ErrEmptyRSN):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrRunInProgress):
		return &httpError{http.StatusConflict, APIError{CodeRunInProgress, "A run is already in progress"}}
	case errors.Is(err, model.ErrAlreadyExempt):
		return &httpError{http.StatusConflict, APIError{CodeAlreadyExempt, err.Error()}}
	case errors.Is(err, model.ErrMemberNotFound), errors.Is(err, model.ErrRSNNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeMemberNotFound, err.Error()}}
	case errors.Is(err, model.ErrRankNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeRankNotFound, err.Error()}}
	case errors.Is(err, model.ErrExternalUnavailable):
		return &httpError{http.StatusBadGateway, APIError{CodeExternalUnavailable, "External service unavailable"}}

	case errors.Is(err, auth.ErrInvalidToken):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid staff token"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// NewInternalErrorWithRequestID creates an internal server error naming the request
func NewInternalErrorWithRequestID(id string) error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error (request " + id + ")"}}
}
