package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so every error
// response from the API has the same shape:
//
//	{"error": "not_found", "message": "user not found with id 42"}
//
// Validation errors also name the offending field:
//
//	{"error": "validation_error", "message": "...", "field": "email"}

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/sakif/issuedesk/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable, e.g. "not_found"
	Message string `json:"message"`         // human-readable
	Field   string `json:"field,omitempty"` // offending input field, if any
}

// writeJSON sends data as JSON with the given status code. Headers and
// status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The service layer knows nothing about HTTP; this is the one place where
// apperror kinds become status codes:
//
//	bad request, conflict → 400
//	unauthorized          → 401
//	forbidden             → 403
//	not found             → 404
//	anything else         → 500 with a generic message
//
// A duplicate name is reported as 400 rather than 409: clients treat it like
// any other invalid input.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never expose internal error details; they may carry SQL or paths.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	message := appErr.Message

	switch apperror.KindOf(err) {
	case apperror.KindBadRequest:
		status = http.StatusBadRequest
		errorType = "validation_error"
	case apperror.KindConflict:
		status = http.StatusBadRequest
		errorType = "conflict"
	case apperror.KindUnauthorized:
		status = http.StatusUnauthorized
		errorType = "unauthorized"
	case apperror.KindForbidden:
		status = http.StatusForbidden
		errorType = "forbidden"
	case apperror.KindNotFound:
		status = http.StatusNotFound
		errorType = "not_found"
	default:
		message = "An internal error occurred"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON value from the request body into dst.
// Decode failures become validation errors. A field holding the wrong JSON
// type is reported under that field's name; anything else under "body".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperror.ValidationFailed(typeErr.Field,
			fmt.Sprintf("%s must be a JSON %s, not %s", typeErr.Field, jsonKind(typeErr.Type), typeErr.Value))
	}
	return apperror.ValidationFailed("body", "request body must be a JSON object")
}

// jsonKind names the JSON type a Go destination type expects.
func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
