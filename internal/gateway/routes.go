package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/tripdesk/internal/dialog"
	"github.com/soyeahso/tripdesk/internal/domain"
	"github.com/soyeahso/tripdesk/internal/memory"
)

// chatCallTimeout bounds a chat turn when the router has no timeout of its own.
const chatCallTimeout = 5 * time.Minute

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.cfg.Gateway.Metrics && s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("session.get", s.rpcSessionGet)
	s.Handle("chat.send", s.rpcChatSend)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	h := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if s.router != nil {
		h.Agents = len(s.router.Graph().Agents())
	}
	if !s.startedAt.IsZero() {
		h.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	rc.Respond(h)
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	if s.router == nil {
		rc.Respond(map[string]any{"agents": []domain.Agent{}})
		return
	}
	rc.Respond(map[string]any{"agents": s.router.Graph().Agents()})
}

func (s *Server) rpcSessionGet(rc *RequestContext) {
	if s.router == nil {
		rc.RespondError("unavailable", "no LLM provider configured")
		return
	}
	var p SessionGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ThreadID == "" {
		rc.RespondError("invalid_params", "threadId is required")
		return
	}
	info, err := s.router.Session(context.Background(), p.ThreadID)
	if err != nil {
		rc.RespondError("internal", err.Error())
		return
	}
	if info == nil || (!s.cfg.Gateway.TrustCallerParam && info.CallerID != rc.Client.Caller()) {
		rc.RespondError("not_found", "unknown thread: "+p.ThreadID)
		return
	}
	rc.Respond(info)
}

// caller resolves the identity a chat turn runs as.
func (s *Server) caller(rc *RequestContext, p ChatSendParams) string {
	if s.cfg.Gateway.TrustCallerParam && p.CallerID != "" {
		return p.CallerID
	}
	return rc.Client.Caller()
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	if s.router == nil {
		rc.RespondError("unavailable", "no LLM provider configured")
		return
	}

	var p ChatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Message) == "" && p.Audio == "" && p.Image == "" {
		rc.RespondError("invalid_params", "message is required")
		return
	}
	caller := s.caller(rc, p)
	if caller == "" {
		rc.RespondError("invalid_params", "caller identity is required")
		return
	}
	if memory.Reserved(caller) {
		rc.RespondError("forbidden", "caller identity is reserved")
		return
	}

	turn := domain.Turn{
		ThreadID:  p.ThreadID,
		CallerID:  caller,
		Text:      p.Message,
		Timestamp: time.Now(),
	}
	if turn.ThreadID == "" {
		turn.ThreadID = uuid.New().String()
	}
	media, err := decodeMedia(p)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	turn.Media = media

	ctx, cancel := context.WithTimeout(context.Background(), chatCallTimeout)
	defer cancel()

	if len(turn.Media) > 0 {
		if s.media == nil {
			rc.RespondError("unavailable", "media handling is not configured")
			return
		}
		text, err := s.media.Prepare(ctx, turn)
		if err != nil {
			rc.RespondError("media_error", err.Error())
			return
		}
		turn.Text = text
	}

	var stream dialog.StreamFunc
	if p.Stream {
		stream = s.streamTo(rc, turn.ThreadID)
	}

	res, err := s.router.Turn(ctx, turn, stream)
	if err != nil {
		shape := ErrorShape{Code: "agent_error", Message: err.Error()}
		if errors.Is(err, dialog.ErrCallerMismatch) {
			shape.Code = "forbidden"
		}
		if res != nil {
			shape.Details = chatResult(res)
		}
		rc.RespondErrorShape(shape)
		return
	}
	rc.Respond(chatResult(res))
}

// streamTo forwards router events to the requesting client as chat.delta
// and chat.agent events.
func (s *Server) streamTo(rc *RequestContext, threadID string) dialog.StreamFunc {
	return func(ev dialog.Event) {
		var err error
		switch ev.Type {
		case "delta":
			err = rc.Client.SendEvent(EventChatDelta, ChatDelta{
				RequestID: rc.Frame.ID, ThreadID: threadID, Content: ev.Content,
			}, s.eventSeq.Add(1))
		case "agent":
			err = rc.Client.SendEvent(EventChatAgent, ChatAgent{
				RequestID: rc.Frame.ID, ThreadID: threadID, Agent: ev.Agent,
			}, s.eventSeq.Add(1))
		}
		if err != nil {
			s.log.Debug().Err(err).Str("connId", rc.Client.ConnID).Msg("stream event dropped")
		}
	}
}

func chatResult(res *dialog.TurnResult) ChatResult {
	return ChatResult{
		ThreadID:   res.ThreadID,
		Reply:      res.Reply,
		Agent:      res.Agent,
		Depth:      res.Depth,
		Fallback:   res.Fallback,
		Failed:     res.Failed,
		DurationMs: res.Duration.Milliseconds(),
	}
}

// decodeMedia turns base64 attachments into turn media.
func decodeMedia(p ChatSendParams) ([]domain.Attachment, error) {
	var out []domain.Attachment
	if p.Audio != "" {
		data, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			return nil, errors.New("audio is not valid base64")
		}
		out = append(out, domain.Attachment{MimeType: "audio/wav", Data: data})
	}
	if p.Image != "" {
		data, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			return nil, errors.New("image is not valid base64")
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return nil, errors.New("image must be JPEG or PNG")
		}
		out = append(out, domain.Attachment{MimeType: mime, Data: data})
	}
	return out, nil
}
