package gateway

import "encoding/json"

// ProtocolVersion is the only wire protocol revision this gateway speaks.
const ProtocolVersion = 1

// Frame kinds. Every websocket message is one JSON frame.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed while a chat turn runs.
const (
	EventChatDelta = "chat.delta"
	EventChatAgent = "chat.agent"
)

// Frame is the envelope shared by requests, responses and events; Type says
// which fields are set.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response. Details carries
// method-specific data, such as the failure reply of a chat turn.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

func NewErrorResponse(id string, e ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &e}
}

func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

// Handshake payloads.

// ConnectParams open a session. Client.ID is the caller identity chat
// turns run as.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"` // "cli" | "web" | "bot"
}

type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMs   int `json:"tickIntervalMs"`
}

// Chat payloads.

// ChatSendParams are the params of chat.send. Image and Audio carry base64
// data; audio replaces Message with its transcript.
type ChatSendParams struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
	CallerID string `json:"callerId,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
	Image    string `json:"image,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// ChatResult is the chat.send response payload. Failed turns carry the
// user-facing failure reply in Reply.
type ChatResult struct {
	ThreadID   string `json:"threadId"`
	Reply      string `json:"reply"`
	Agent      string `json:"agent"`
	Depth      int    `json:"depth"`
	Fallback   bool   `json:"fallback,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

type ChatDelta struct {
	RequestID string `json:"requestId"`
	ThreadID  string `json:"threadId"`
	Content   string `json:"content"`
}

// ChatAgent is sent when the active agent changes during a turn.
type ChatAgent struct {
	RequestID string `json:"requestId"`
	ThreadID  string `json:"threadId"`
	Agent     string `json:"agent"`
}

type SessionGetParams struct {
	ThreadID string `json:"threadId"`
}
