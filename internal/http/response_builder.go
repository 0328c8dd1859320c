// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses.
// It provides a fluent API for status, headers and body so every endpoint
// formats its output the same way.

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value to be encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Error sets an {"error": message} body with the given status.
func (b *JSONResponseBuilder) Error(code int, message string) *JSONResponseBuilder {
	b.statusCode = code
	b.payload = map[string]string{"error": message}
	return b
}

// Write encodes the payload and sends headers, status and body.
// The payload is encoded before anything is written so an encoding failure
// can still produce a 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	var buf bytes.Buffer
	if b.payload != nil {
		if err := json.NewEncoder(&buf).Encode(b.payload); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Server error: response could not be encoded"}` + "\n"))
			return err
		}
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)

	if buf.Len() == 0 {
		return nil
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// writeJSONError sends {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	_ = NewJSONResponse().Error(status, message).Write(w)
}
