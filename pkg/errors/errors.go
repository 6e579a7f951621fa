// Package errors carries the error sentinels shared by the services and maps
// them onto HTTP statuses and stable machine-readable codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrShardUnavailable = errors.New("shard unavailable")
	ErrInvalidInput     = errors.New("invalid input")

	// Configuration errors: the request asked for a query or model that
	// cannot be built.
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAnalyzerNotFound = errors.New("analyzer not found")
	ErrUnsupportedField = errors.New("unsupported request field")
	ErrInvalidZeroTerms = errors.New("unsupported zero_terms_query value")

	// ErrAnalysis means the text itself could not be tokenized.
	ErrAnalysis = errors.New("analysis failed")
)

// StatusClientClosed is reported when the caller went away before the
// response was ready.
const StatusClientClosed = 499

type kind struct {
	target error
	status int
	code   string
	config bool
}

// kinds is checked in order; the first match wins.
var kinds = []kind{
	{ErrInvalidParameter, http.StatusBadRequest, "invalid_parameter", true},
	{ErrAnalyzerNotFound, http.StatusBadRequest, "analyzer_not_found", true},
	{ErrUnsupportedField, http.StatusBadRequest, "unsupported_field", true},
	{ErrInvalidZeroTerms, http.StatusBadRequest, "invalid_zero_terms_query", true},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input", false},
	{ErrDocumentNotFound, http.StatusNotFound, "not_found", false},
	{ErrDocumentExists, http.StatusConflict, "document_exists", false},
	{ErrAnalysis, http.StatusUnprocessableEntity, "analysis_failed", false},
	{ErrShardUnavailable, http.StatusServiceUnavailable, "unavailable", false},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", false},
	{context.Canceled, StatusClientClosed, "cancelled", false},
}

func lookup(err error) (kind, bool) {
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k, true
		}
	}
	return kind{}, false
}

// AppError attaches an HTTP status and a message to a sentinel.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Configf reports a bad parameter found while a query or model is being
// constructed, before anything is scored.
func Configf(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, http.StatusBadRequest, format, args...)
}

// IsConfiguration reports whether err stems from invalid query or model
// configuration.
func IsConfiguration(err error) bool {
	k, ok := lookup(err)
	return ok && k.config
}

// HTTPStatusCode prefers the status of an AppError in the chain and falls
// back to the sentinel table, then 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	if k, ok := lookup(err); ok {
		return k.status
	}
	return http.StatusInternalServerError
}

// Code returns the stable error code clients can switch on.
func Code(err error) string {
	if k, ok := lookup(err); ok {
		return k.code
	}
	return "internal"
}
