package gateway

import (
	"encoding/json"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
)

const (
	// ProtocolVersion is reported in hello-ok.
	ProtocolVersion = 1

	// maxPayload bounds inbound websocket frames.
	maxPayload = 1 << 20
)

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is the single socket envelope. Type selects which of the other
// fields are meaningful:
//
//	req:   ID, Method, Params
//	res:   ID, OK, Payload or Error
//	event: Event, Payload, Seq
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// ErrorShape is the error body of a failed response. Field names the
// offending input for validation failures.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ConnectParams is the payload of the client's connect request.
type ConnectParams struct {
	Client ClientInfo   `json:"client"`
	Auth   *ConnectAuth `json:"auth,omitempty"`
}

type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK answers connect. Participant is null for anonymous sockets.
type HelloOK struct {
	Protocol    int                 `json:"protocol"`
	Server      ServerInfo          `json:"server"`
	Participant *domain.Participant `json:"participant"`
	Features    Features            `json:"features"`
	Policy      ServerPolicy        `json:"policy"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the RPC methods a client may call and the events it may
// receive.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy tells the client the limits it must stay within.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	SendBuffer     int `json:"sendBuffer"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

func encodePayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// NewRequest builds a req frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := encodePayload(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds a successful res frame for request id.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse builds a failed res frame for request id.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent builds an event frame. seq is per connection; zero is omitted.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
