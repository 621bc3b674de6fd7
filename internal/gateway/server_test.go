package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/logging"
)

const testToken = "test-token-123"

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Gateway.Auth.Mode = "token"
	cfg.Gateway.Auth.Token = testToken
	raw := map[string]any{
		"gateway": map[string]any{"port": 18789, "bind": "loopback"},
	}
	srv := New(cfg, logging.New(nil, "silent"), WithConfigRaw(raw))

	mux := http.NewServeMux()
	srv.registerHTTPRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// openSocket dials ts and consumes the connect challenge.
func openSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, FrameTypeEvent, challenge.Type)
	require.Equal(t, "connect.challenge", challenge.Event)
	return conn
}

func connectParams(clientID, token string) ConnectParams {
	return ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      ClientInfo{ID: clientID, Version: "1.0.0", Platform: "linux", Mode: "cli"},
		Auth:        &ConnectAuth{Token: token},
	}
}

// dial connects to ts and completes the handshake as clientID.
func dial(t *testing.T, ts *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	conn := openSocket(t, ts)
	var hello HelloOK
	okPayload(t, rpc(t, conn, "connect-1", "connect", connectParams(clientID, testToken)), &hello)
	return conn
}

func authenticatedConn(t *testing.T) *websocket.Conn {
	t.Helper()
	_, ts := testServer(t)
	return dial(t, ts, "test-client")
}

func TestHTTPEndpoints(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, HealthResponse{Status: "ok"}, health)

	resp2, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHandshakeHello(t *testing.T) {
	_, ts := testServer(t)
	conn := openSocket(t, ts)

	resp := rpc(t, conn, "req-1", "connect", connectParams("alice", testToken))
	assert.Equal(t, "req-1", resp.ID)
	var hello HelloOK
	okPayload(t, resp, &hello)
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Contains(t, hello.Features.Methods, "chat.send")
	assert.Contains(t, hello.Features.Events, EventChatDelta)
	assert.Equal(t, maxPayloadBytes, hello.Policy.MaxPayload)
}

func TestHandshakeRejections(t *testing.T) {
	tests := []struct {
		name  string
		frame any
		code  string
	}{
		{"wrong token", mustRequest(t, "connect", connectParams("alice", "wrong")), "unauthorized"},
		{"no credentials", mustRequest(t, "connect", ConnectParams{Client: ClientInfo{ID: "alice"}}), "unauthorized"},
		{"not connect", mustRequest(t, "health", nil), "protocol_error"},
		{"bad params", map[string]any{"type": FrameTypeRequest, "id": "r1", "method": "connect", "params": "nope"}, "invalid_params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := testServer(t)
			conn := openSocket(t, ts)
			require.NoError(t, conn.WriteJSON(tt.frame))
			var resp Frame
			require.NoError(t, conn.ReadJSON(&resp))
			assert.Equal(t, tt.code, errCode(t, resp))
		})
	}
}

func mustRequest(t *testing.T, method string, params any) Frame {
	t.Helper()
	f, err := NewRequest("r1", method, params)
	require.NoError(t, err)
	return f
}

func TestHandshakeFailuresRateLimited(t *testing.T) {
	srv, ts := testServer(t)
	for i := 0; i < authMaxFails; i++ {
		srv.limiter.recordFailure("127.0.0.1:1")
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRPCAfterHandshake(t *testing.T) {
	conn := authenticatedConn(t)

	var health HealthResponse
	okPayload(t, rpc(t, conn, "h1", "health", nil), &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)

	assert.Equal(t, "method_not_found", errCode(t, rpc(t, conn, "x1", "nonexistent.method", nil)))
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Bind: "loopback", Port: 18789}, "127.0.0.1:18789"},
		{config.GatewayConfig{Bind: "lan", Port: 9999}, "0.0.0.0:9999"},
		{config.GatewayConfig{Bind: "auto", Port: 8080}, "0.0.0.0:8080"},
		{config.GatewayConfig{Bind: "custom", Port: 3000}, "0.0.0.0:3000"},
		{config.GatewayConfig{Bind: "custom", CustomBindHost: "10.0.0.5", Port: 3000}, "10.0.0.5:3000"},
		{config.GatewayConfig{Bind: "unknown", Port: 5000}, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

func TestServerStartStops(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	cfg.Gateway.Auth.Token = "test-token"
	srv := New(cfg, logging.New(nil, "silent"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerStartBadTLS(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.Port = 0
	cfg.Gateway.TLS.Enabled = true
	cfg.Gateway.TLS.CertPath = "/nonexistent/cert.pem"
	cfg.Gateway.TLS.KeyPath = "/nonexistent/key.pem"
	srv := New(cfg, logging.New(nil, "silent"))

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS")
}
