// Package responder writes the JSON envelope shared by every HTTP endpoint.
package responder

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	httpmw "github.com/leeforge/dataclient/http/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Error codes carried in Error.Code.
const (
	ErrCodeNotFound           = 4003
	ErrCodeInternalServer     = 5000
	ErrCodeServiceUnavailable = 5003
)

// Response is the standard API response.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
	Meta  Meta   `json:"meta"`
}

// Error is the error part of a response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta is filled from the request context set up by the middleware package.
type Meta struct {
	TraceId string `json:"traceId,omitempty"`
	Took    int64  `json:"took,omitempty"`
}

func metaFrom(r *http.Request) Meta {
	if r == nil {
		return Meta{}
	}
	return Meta{
		TraceId: httpmw.GetTraceID(r.Context()),
		Took:    httpmw.GetRequestDuration(r.Context()),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":5000,"message":"encode failed"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// Write sends a success response with data.
func Write(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, &Response{Data: data, Meta: metaFrom(r)})
}

// WriteError sends an error response.
func WriteError(w http.ResponseWriter, r *http.Request, status int, err Error) {
	writeJSON(w, status, &Response{Error: &err, Meta: metaFrom(r)})
}

// OK responds with 200 OK and data.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	Write(w, r, http.StatusOK, data)
}

// NotFound responds with 404 Not Found.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "Resource Not Found"
	}
	WriteError(w, r, http.StatusNotFound, Error{Code: ErrCodeNotFound, Message: message})
}

// ServiceUnavailable responds with 503 Service Unavailable.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string, details any) {
	if message == "" {
		message = "Service Unavailable"
	}
	WriteError(w, r, http.StatusServiceUnavailable, Error{Code: ErrCodeServiceUnavailable, Message: message, Details: details})
}

// InternalServerError responds with 500 Internal Server Error.
func InternalServerError(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "Internal Server Error"
	}
	WriteError(w, r, http.StatusInternalServerError, Error{Code: ErrCodeInternalServer, Message: message})
}
