// Package apierror implements the caller-facing error taxonomy shared
// by all four services: every HTTP response body on failure is
// {error, message} with a machine-readable code driving the status.
package apierror

import (
	"encoding/json"
	"net/http"
)

// Code is one of the machine-readable error codes returned to callers.
type Code string

const (
	InvalidRequest        Code = "invalid_request"
	NotFound              Code = "not_found"
	Conflict              Code = "conflict"
	Forbidden             Code = "forbidden"
	MethodNotAllowed      Code = "method_not_allowed"
	BadGateway            Code = "bad_gateway"
	DatabaseError         Code = "database_error"
	StorageError          Code = "storage_error"
	QueryError            Code = "query_error"
	CertificateError      Code = "certificate_error"
	PolicyEvaluationError Code = "policy_evaluation_error"
	ServiceUnavailable    Code = "service_unavailable"
)

var statusByCode = map[Code]int{
	InvalidRequest:        http.StatusBadRequest,
	NotFound:              http.StatusNotFound,
	Conflict:              http.StatusConflict,
	Forbidden:             http.StatusForbidden,
	MethodNotAllowed:      http.StatusMethodNotAllowed,
	BadGateway:            http.StatusBadGateway,
	DatabaseError:         http.StatusInternalServerError,
	StorageError:          http.StatusInternalServerError,
	QueryError:            http.StatusInternalServerError,
	CertificateError:      http.StatusInternalServerError,
	PolicyEvaluationError: http.StatusInternalServerError,
	ServiceUnavailable:    http.StatusServiceUnavailable,
}

// Error is the typed form of an API failure: a machine code, a human
// message, and the derived HTTP status.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Status returns the HTTP status code associated with e.Code.
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an *Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// body is the wire shape: {"error": code, "message": text}.
type body struct {
	Error   Code   `json:"error"`
	Message string `json:"message"`
}

// Write serializes e to w with the status derived from e.Code.
func Write(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(body{Error: e.Code, Message: e.Message})
}

// WriteCode is a convenience for Write(w, New(code, message)).
func WriteCode(w http.ResponseWriter, code Code, message string) {
	Write(w, New(code, message))
}
