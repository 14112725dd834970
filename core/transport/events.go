package transport

import (
	"context"
	"time"
)

// RequestEventType names the lifecycle stage of a request.
type RequestEventType string

const (
	RequestStart   RequestEventType = "request:start"
	RequestSuccess RequestEventType = "request:success"
	RequestFailed  RequestEventType = "request:failed"
)

// RequestEvent is emitted on the event bus around every HTTP call.
type RequestEvent struct {
	Type       RequestEventType `json:"type"`
	Timestamp  int64            `json:"timestamp"` // Unix milliseconds.
	Method     string           `json:"method"`
	Path       string           `json:"path"`
	RequestID  string           `json:"requestId"`
	StatusCode int              `json:"statusCode,omitempty"`
	Error      *string          `json:"error,omitempty"`
	Duration   *int64           `json:"duration,omitempty"` // Milliseconds, set on success/failed.
}

// EventCallback receives request events from the bus.
type EventCallback func(ctx context.Context, event RequestEvent) error

func createEvent(
	eventType RequestEventType,
	method string,
	path string,
	requestID string,
	statusCode int,
	err error,
	startTime time.Time,
) RequestEvent {
	var duration *int64
	if eventType != RequestStart && !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var errStr *string
	if err != nil {
		s := err.Error()
		errStr = &s
	}

	return RequestEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Method:     method,
		Path:       path,
		RequestID:  requestID,
		StatusCode: statusCode,
		Error:      errStr,
		Duration:   duration,
	}
}
