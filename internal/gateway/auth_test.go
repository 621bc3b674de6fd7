package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/tripdesk/internal/config"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
	assert.False(t, safeEqual("", "secret"))
}

func TestResolveAuth(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		cfg  config.GatewayAuth
		want ResolvedAuth
	}{
		{
			name: "token from config",
			cfg:  config.GatewayAuth{Mode: "token", Token: "config-token"},
			want: ResolvedAuth{Mode: "token", Token: "config-token"},
		},
		{
			name: "password from config",
			cfg:  config.GatewayAuth{Mode: "password", Password: "config-pass"},
			want: ResolvedAuth{Mode: "password", Password: "config-pass"},
		},
		{
			name: "mode defaults to token",
			cfg:  config.GatewayAuth{Token: "my-token"},
			want: ResolvedAuth{Mode: "token", Token: "my-token"},
		},
		{
			name: "password implies password mode",
			cfg:  config.GatewayAuth{Password: "my-pass"},
			want: ResolvedAuth{Mode: "password", Password: "my-pass"},
		},
		{
			name: "secrets from env",
			env:  map[string]string{"TRIPDESK_GATEWAY_TOKEN": "env-token", "TRIPDESK_GATEWAY_PASSWORD": "env-pass"},
			cfg:  config.GatewayAuth{Mode: "token"},
			want: ResolvedAuth{Mode: "token", Token: "env-token", Password: "env-pass"},
		},
		{
			name: "config wins over env",
			env:  map[string]string{"TRIPDESK_GATEWAY_TOKEN": "env-token"},
			cfg:  config.GatewayAuth{Mode: "token", Token: "config-token"},
			want: ResolvedAuth{Mode: "token", Token: "config-token"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TRIPDESK_GATEWAY_TOKEN", "")
			t.Setenv("TRIPDESK_GATEWAY_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, ResolveAuth(tt.cfg))
		})
	}
}

func TestAuthorize(t *testing.T) {
	token := ResolvedAuth{Mode: "token", Token: "secret"}
	password := ResolvedAuth{Mode: "password", Password: "pass123"}

	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		want   AuthResult
	}{
		{"token ok", token, &ConnectAuth{Token: "secret"}, AuthResult{OK: true, Method: "token"}},
		{"token mismatch", token, &ConnectAuth{Token: "wrong"}, AuthResult{Reason: "token_mismatch"}},
		{"token missing", token, &ConnectAuth{}, AuthResult{Reason: "token required"}},
		{"server token unset", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "x"}, AuthResult{Reason: "server token not configured"}},
		{"password ok", password, &ConnectAuth{Password: "pass123"}, AuthResult{OK: true, Method: "password"}},
		{"password mismatch", password, &ConnectAuth{Password: "wrong"}, AuthResult{Reason: "password_mismatch"}},
		{"password missing", password, &ConnectAuth{}, AuthResult{Reason: "password required"}},
		{"server password unset", ResolvedAuth{Mode: "password"}, &ConnectAuth{Password: "x"}, AuthResult{Reason: "server password not configured"}},
		{"token sent in password mode", password, &ConnectAuth{Token: "pass123"}, AuthResult{Reason: "password required"}},
		{"no credentials", token, nil, AuthResult{Reason: "no credentials provided"}},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "x"}, AuthResult{Reason: "unknown auth mode: oauth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.server, tt.client))
		})
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"no allowlist", nil, "http://evil.com", false},
		{"wildcard", []string{"*"}, "http://anything.com", true},
		{"exact match", []string{"http://allowed.com"}, "http://allowed.com", true},
		{"no match", []string{"http://allowed.com"}, "http://evil.com", false},
		{"second of two", []string{"http://one.com", "http://two.com"}, "http://two.com", true},
		{"neither of two", []string{"http://one.com", "http://two.com"}, "http://three.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkWebSocketOrigin(tt.allowed)(req))
		})
	}
}
