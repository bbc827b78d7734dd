package protocol

import "encoding/json"

// RequestFrame is a method invocation from a UI client.
type RequestFrame struct {
	Type   string          `json:"type"` // FrameRequest
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers a RequestFrame with the same ID.
type ResponseFrame struct {
	Type    string      `json:"type"` // FrameResponse
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// EventFrame is a server-initiated push to all connected clients.
type EventFrame struct {
	Type    string      `json:"type"` // FrameEvent
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewResponse builds a success response for the given request ID.
func NewResponse(id string, payload interface{}) *ResponseFrame {
	return &ResponseFrame{Type: FrameResponse, ID: id, OK: true, Payload: payload}
}

// NewErrorResponse builds a failure response for the given request ID.
func NewErrorResponse(id string, msg string) *ResponseFrame {
	return &ResponseFrame{Type: FrameResponse, ID: id, OK: false, Error: msg}
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: FrameEvent, Event: name, Payload: payload}
}
