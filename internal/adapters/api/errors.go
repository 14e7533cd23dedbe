package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Sentinel errors for the API's status classes. Match with errors.Is.
var (
	ErrUnauthorized    = errors.New("api: not authenticated")
	ErrForbidden       = errors.New("api: forbidden")
	ErrNotFound        = errors.New("api: not found")
	ErrVersionConflict = errors.New("api: the record was changed by someone else")
	ErrValidation      = errors.New("api: validation failed")
	ErrUnavailable     = errors.New("api: service unavailable")
)

// APIError is a non-2xx response from the external API.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

// Error implements error.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("api: %d %s", e.Status, msg)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return fmt.Sprintf("api: %d %s (%s)", e.Status, msg, strings.Join(parts, "; "))
}

// Unwrap maps the status code onto a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrVersionConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return ErrValidation
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	}
	return nil
}

// FieldErrors returns the first message per field, for form rendering.
func FieldErrors(err error) map[string]string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(apiErr.Fields))
	for k, v := range apiErr.Fields {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
