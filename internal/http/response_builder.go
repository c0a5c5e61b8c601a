package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gastos/internal/core"
	"gastos/internal/services"
)

// JSONResponseBuilder provides a fluent API for the API's JSON envelope.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	envelope   envelope
}

type envelope struct {
	Data    any          `json:"data,omitempty"`
	Error   *errorBody   `json:"error,omitempty"`
	Outcome *outcomeBody `json:"outcome,omitempty"`
}

type errorBody struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type outcomeBody struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
	Version   uint64 `json:"version"`
	Message   string `json:"message,omitempty"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.envelope.Data = v
	return b
}

// Outcome attaches how the mutation ended and the version the client should
// refresh to.
func (b *JSONResponseBuilder) Outcome(o services.Outcome, version uint64, message string) *JSONResponseBuilder {
	b.envelope.Outcome = &outcomeBody{
		Operation: o.Operation,
		State:     o.StateName,
		Version:   version,
		Message:   message,
	}
	return b
}

func (b *JSONResponseBuilder) Error(kind, message string, details ...string) *JSONResponseBuilder {
	b.envelope.Error = &errorBody{Kind: kind, Message: message, Details: details}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.statusCode == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(b.envelope)
}

// statusFor maps an error class to its HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// ErrorResponse builds the error envelope for err.
func ErrorResponse(err error) *JSONResponseBuilder {
	var details []string
	var se *SchemaError
	if errors.As(err, &se) {
		details = se.Details
	}
	return NewJSONResponse().
		Status(statusFor(err)).
		Error(services.ErrorKind(err), err.Error(), details...)
}
