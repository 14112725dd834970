// Package transport defines the contract the query layer uses to talk to the
// backend REST API, together with an HTTP implementation of that contract.
// Every call performs exactly one round trip; retries, caching and pooling are
// left to the underlying http.Client.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Params is a flat map of query-string parameters. Values may be scalars, nil
// (encoded as the literal null) or slices, which are encoded as repeated
// bracketed keys.
type Params map[string]any

// Response is the decoded body of a successful call. Data holds the payload of
// the backend envelope and Meta its optional metadata object. StatusCode is
// zero for responses not produced by HTTP.
type Response struct {
	Data       json.RawMessage
	Meta       map[string]any
	StatusCode int
}

// Transport performs requests against paths relative to the configured base
// path. Implementations must return a *Error for non-2xx responses.
type Transport interface {
	Get(ctx context.Context, path string, params Params) (*Response, error)
	Post(ctx context.Context, path string, body any) (*Response, error)
	Patch(ctx context.Context, path string, body any) (*Response, error)
	Delete(ctx context.Context, path string, params Params) (*Response, error)
}

// Error is returned for every failed request. StatusCode is zero when the
// request never produced an HTTP response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Cause      error
}

// Error returns a readable description of the failure.
func (e *Error) Error() string {
	if e.StatusCode == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("transport: %s: %v", e.Message, e.Cause)
		}
		return fmt.Sprintf("transport: %s", e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("transport: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("transport: %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a transport error for an HTTP 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
