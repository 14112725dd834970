package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultBasePath is prefixed to every request path.
	DefaultBasePath = "/api/v1"
	// DefaultTimeout applies when no http client is supplied.
	DefaultTimeout = 30 * time.Second

	HeaderAPIKey    = "X-API-Key"
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"
)

// Doer is the subset of *http.Client the transport needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures an HTTPTransport.
type Options struct {
	BaseURL    string
	BasePath   string
	APIKey     string
	TenantID   string
	Timeout    time.Duration
	HTTPClient Doer
	Logger     *zap.Logger
	Bus        *events.TypedEventBus[RequestEvent]
}

// HTTPTransport implements Transport over HTTP with JSON bodies.
type HTTPTransport struct {
	baseURL  string
	basePath string
	apiKey   string
	tenantID string
	client   Doer
	logger   *zap.Logger
	bus      *events.TypedEventBus[RequestEvent]
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for the backend at opts.BaseURL.
func NewHTTPTransport(opts Options) (*HTTPTransport, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	if opts.BasePath == "" {
		opts.BasePath = DefaultBasePath
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &HTTPTransport{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		basePath: "/" + strings.Trim(opts.BasePath, "/"),
		apiKey:   opts.APIKey,
		tenantID: opts.TenantID,
		client:   opts.HTTPClient,
		logger:   opts.Logger,
		bus:      opts.Bus,
	}, nil
}

// Get issues a GET with params encoded into the query string.
func (t *HTTPTransport) Get(ctx context.Context, path string, params Params) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, params, nil)
}

// Post issues a POST with body encoded as JSON.
func (t *HTTPTransport) Post(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, nil, body)
}

// Patch issues a PATCH with body encoded as JSON.
func (t *HTTPTransport) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return t.do(ctx, http.MethodPatch, path, nil, body)
}

// Delete issues a DELETE with params encoded into the query string.
func (t *HTTPTransport) Delete(ctx context.Context, path string, params Params) (*Response, error) {
	return t.do(ctx, http.MethodDelete, path, params, nil)
}

// URL returns the absolute URL for path and params.
func (t *HTTPTransport) URL(path string, params Params) string {
	u := t.baseURL + t.basePath + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + EncodeParams(params).Encode()
	}
	return u
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, params Params, body any) (*Response, error) {
	requestID := uuid.New().String()
	startTime := time.Now()
	t.emit(createEvent(RequestStart, method, path, requestID, 0, nil, startTime))

	resp, err := t.roundTrip(ctx, method, path, params, body, requestID)
	if err != nil {
		t.logger.Debug("Request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Int("status", StatusCode(err)),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(err),
		)
		t.emit(createEvent(RequestFailed, method, path, requestID, StatusCode(err), err, startTime))
		return nil, err
	}

	t.logger.Debug("Request succeeded",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(startTime)),
	)
	t.emit(createEvent(RequestSuccess, method, path, requestID, resp.StatusCode, nil, startTime))
	return resp, nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, method, path string, params Params, body any, requestID string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Message: "failed to marshal request body", RequestID: requestID, Cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.URL(path, params), reader)
	if err != nil {
		return nil, &Error{Message: "failed to create request", RequestID: requestID, Cause: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.apiKey != "" {
		req.Header.Set(HeaderAPIKey, t.apiKey)
	}
	if t.tenantID != "" {
		req.Header.Set(HeaderTenantID, t.tenantID)
	}
	req.Header.Set(HeaderRequestID, requestID)

	res, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Message: "failed to execute request", RequestID: requestID, Cause: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &Error{StatusCode: res.StatusCode, Message: "failed to read response body", RequestID: requestID, Cause: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, decodeError(res.StatusCode, raw, requestID)
	}

	decoded, err := decodeResponse(raw)
	if err != nil {
		return nil, &Error{StatusCode: res.StatusCode, Message: "malformed response body", RequestID: requestID, Cause: err}
	}
	decoded.StatusCode = res.StatusCode
	return decoded, nil
}

func (t *HTTPTransport) emit(event RequestEvent) {
	if t.bus != nil {
		t.bus.Emit(string(event.Type), event)
	}
}

// decodeResponse unwraps the {"data": ..., "meta": {...}} envelope. A body
// without a data key is returned whole as Data.
func decodeResponse(raw []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Response{}, nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("invalid JSON")
	}

	var envelope map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &envelope) != nil {
		return &Response{Data: json.RawMessage(trimmed)}, nil
	}

	data, ok := envelope["data"]
	if !ok {
		return &Response{Data: json.RawMessage(trimmed)}, nil
	}

	resp := &Response{Data: data}
	if meta, ok := envelope["meta"]; ok {
		if err := json.Unmarshal(meta, &resp.Meta); err != nil {
			return nil, fmt.Errorf("invalid meta object: %w", err)
		}
	}
	return resp, nil
}

type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// decodeError accepts {"message","code"}, {"error":"..."} and
// {"error":{"message","code"}} bodies.
func decodeError(status int, raw []byte, requestID string) *Error {
	e := &Error{StatusCode: status, RequestID: requestID}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		e.Code = body.Code
		e.Message = body.Message
		if len(body.Error) > 0 {
			var msg string
			var nested errorBody
			if json.Unmarshal(body.Error, &msg) == nil {
				if e.Message == "" {
					e.Message = msg
				}
			} else if json.Unmarshal(body.Error, &nested) == nil {
				if e.Code == "" {
					e.Code = nested.Code
				}
				if e.Message == "" {
					e.Message = nested.Message
				}
			}
		}
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
