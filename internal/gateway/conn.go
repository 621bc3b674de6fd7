package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/tripdesk/internal/version"
)

const (
	handshakeTimeout = 10 * time.Second
	// chat.send carries base64 attachments
	maxPayloadBytes  = 16 << 20
	maxBufferedBytes = 32 << 20
	tickInterval     = 30 * time.Second
)

// handshakeError is reported to the peer before the socket is closed.
type handshakeError struct {
	code string
	msg  string
}

func (e *handshakeError) Error() string { return e.code + ": " + e.msg }

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("refusing host after repeated handshake failures")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()
	s.readLoop(client)
}

// handshake runs challenge, connect and hello-ok. Any rejection is sent to
// the peer before the error is returned.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	if err := s.sendChallenge(conn); err != nil {
		return nil, err
	}
	id, params, err := readConnect(conn)
	if err != nil {
		return nil, reject(conn, id, err)
	}
	res := Authorize(s.auth, params.Auth)
	if !res.OK {
		return nil, reject(conn, id, &handshakeError{"unauthorized", res.Reason})
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, res)
	resp, err := NewResponse(id, s.hello(client.ConnID))
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("caller", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", res.Method).
		Msg("client connected")
	return client, nil
}

func (s *Server) sendChallenge(conn *websocket.Conn) error {
	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.NewString(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return fmt.Errorf("send challenge: %w", err)
	}
	return nil
}

// readConnect reads the first frame, which must be a connect request. The
// frame id is returned whenever one could be parsed.
func readConnect(conn *websocket.Conn) (string, ConnectParams, error) {
	var params ConnectParams
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", params, fmt.Errorf("read connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return "", params, &handshakeError{"protocol_error", "malformed frame"}
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		return frame.ID, params, &handshakeError{"protocol_error", "expected connect request"}
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return frame.ID, params, &handshakeError{"invalid_params", "invalid connect params"}
	}
	return frame.ID, params, nil
}

// reject tells the peer why the handshake failed and closes the websocket
// session. Transport errors are returned unchanged.
func reject(conn *websocket.Conn, id string, err error) error {
	he, ok := err.(*handshakeError)
	if !ok {
		return err
	}
	conn.WriteJSON(NewErrorResponse(id, ErrorShape{Code: he.code, Message: he.msg}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, he.msg))
	return err
}

func (s *Server) hello(connID string) HelloOK {
	return HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  connID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{"connect.challenge", EventChatDelta, EventChatAgent},
		},
		Policy: ServerPolicy{
			MaxPayload:       maxPayloadBytes,
			MaxBufferedBytes: maxBufferedBytes,
			TickIntervalMs:   int(tickInterval / time.Millisecond),
		},
	}
}

func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(client, frame)
	}
}

// dispatch runs requests in arrival order. Turns on one thread are also
// serialized inside the router.
func (s *Server) dispatch(client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	handler(&RequestContext{Client: client, Frame: frame, Server: s})
}
