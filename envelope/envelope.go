// Package envelope implements the Answer Envelope (C10): the uniform
// {status, message, data, error?, execution_time_ms, metadata?} shape
// every operation returns.
package envelope

import (
	"time"
)

// Envelope is the wire shape of every non-streaming HTTP response.
// Fields are omitted from JSON when empty, matching the original's
// "drop None values to minimize response size" behavior.
type Envelope struct {
	Status          bool           `json:"status"`
	Message         string         `json:"message,omitempty"`
	Data            any            `json:"data,omitempty"`
	Error           any            `json:"error,omitempty"`
	ExecutionTimeMS float64        `json:"execution_time_ms,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ErrorDetail is the shape of Envelope.Error for a failed operation.
type ErrorDetail struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// Success builds a successful envelope. elapsed is rendered in
// milliseconds.
func Success(data any, message string, elapsed time.Duration, metadata map[string]any) Envelope {
	if message == "" {
		message = "Success"
	}
	return Envelope{
		Status:          true,
		Message:         message,
		Data:            data,
		ExecutionTimeMS: msOf(elapsed),
		Metadata:        metadata,
	}
}

// Failure builds a failed envelope. kind and statusCode come from the
// caller's error classification (see the root package's Kind and
// StatusCode functions) — this package stays decoupled from that
// taxonomy and does not import the root package.
func Failure(err error, kind string, statusCode int, elapsed time.Duration) Envelope {
	return Envelope{
		Status:  false,
		Message: "Error",
		Error: ErrorDetail{
			Kind:       kind,
			Message:    err.Error(),
			StatusCode: statusCode,
		},
		ExecutionTimeMS: msOf(elapsed),
	}
}

// StatusCode returns the HTTP status code this envelope should be
// served with: 200 for success (callers may override to 201 on
// creation), or the classified error's status code on failure.
func (e Envelope) StatusCode() int {
	if e.Status {
		return 200
	}
	if detail, ok := e.Error.(ErrorDetail); ok {
		return detail.StatusCode
	}
	return 500
}

func msOf(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// StreamFrame is one Server-Sent-Events frame of a streaming operation,
// rendered as {text, done} — with error optionally attached to the
// terminal frame when the transport allows it (§7).
type StreamFrame struct {
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}
