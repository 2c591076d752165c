// Package response provides the JSON envelope used by every mirror endpoint.
// Successful responses carry a data field, failures an error field.
package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/safemelbourne/livemap/pkg/errors"
)

// Response represents the standardized API response structure.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error represents an API error with code, message, and optional details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail creates an error response.
func Fail(code, message, details string) Response {
	return Response{
		Error: &Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(resp)
}

// Raw writes v as the JSON body without the envelope. Used for GeoJSON,
// which map clients consume directly.
func Raw(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a successful response with 200 status.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// Accepted writes a successful response with 202 status.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, Success(data))
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, details))
}

// MethodNotAllowed writes a 405 error response.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		"METHOD_NOT_ALLOWED",
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// BadGateway writes a 502 error response for a failed upstream fetch.
func BadGateway(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadGateway, Fail("UPSTREAM_ERROR", "Upstream request failed", message))
}

// InternalError writes a 500 error response. Details are not exposed.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	JSON(w, http.StatusServiceUnavailable, Fail(
		"SERVICE_UNAVAILABLE",
		"Service unavailable",
		message,
	))
}

// ErrorFromType maps typed errors to appropriate HTTP responses.
func ErrorFromType(w http.ResponseWriter, err error) {
	var (
		notFound   *errors.NotFoundError
		validation *errors.ValidationError
		fetch      *errors.FetchError
		parse      *errors.ParseError
	)
	switch {
	case stderrors.As(err, &notFound):
		NotFound(w, notFound.Error(), "")
	case stderrors.As(err, &validation):
		BadRequest(w, validation.Error(), "")
	case stderrors.As(err, &parse):
		BadRequest(w, "Malformed request", parse.Error())
	case stderrors.As(err, &fetch):
		BadGateway(w, fetch.Error())
	case errors.IsStreamClosed(err):
		ServiceUnavailable(w, err.Error())
	default:
		InternalError(w, err)
	}
}
