package errors

import (
	json "github.com/goccy/go-json"
)

// Payload is the serializable shape of a connector error, returned to
// outer services over the API boundary.
type Payload struct {
	ErrorType         string                 `json:"error_type"`
	Message           string                 `json:"message"`
	ConnectorType     string                 `json:"connector_type,omitempty"`
	ConnectorID       string                 `json:"connector_id,omitempty"`
	Query             string                 `json:"query,omitempty"`
	RetryAfterSeconds float64                `json:"retry_after_seconds,omitempty"`
	Details           map[string]interface{} `json:"details,omitempty"`
}

// Payload converts the error into its serializable form. The cause chain
// is flattened into the message; stack internals are not exposed.
func (e *Error) Payload() Payload {
	p := Payload{
		ErrorType:     string(e.Type),
		Message:       e.Message,
		ConnectorType: e.ConnectorType,
		ConnectorID:   e.ConnectorID,
		Query:         e.Query,
		Details:       e.Details,
	}
	if e.Cause != nil {
		p.Message = e.Message + ": " + e.Cause.Error()
	}
	if e.RetryAfter > 0 {
		p.RetryAfterSeconds = e.RetryAfter.Seconds()
	}
	return p
}

// MarshalJSON serializes the error as its payload form.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Payload())
}
