// pkg/schema/envelope.go
package schema

import (
	"encoding/json"
	"time"
)

// Envelope wraps every HTTP response of the gateway.
type Envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// RawEnvelope is the decoding side of Envelope; Data is kept raw so the
// caller can pick the concrete type.
type RawEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ErrorBody      `json:"error,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details []Violation `json:"details,omitempty"`
}

// Violation names one failed constraint of a request.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
