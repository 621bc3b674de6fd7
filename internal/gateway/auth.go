package gateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"os"

	"github.com/soyeahso/tripdesk/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth is the gateway's effective shared secret.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth fills secrets missing from cfg from TRIPDESK_GATEWAY_TOKEN and
// TRIPDESK_GATEWAY_PASSWORD. Without an explicit mode, a password selects
// password mode and anything else token mode.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{
		Mode:     cfg.Mode,
		Token:    firstNonEmpty(cfg.Token, os.Getenv("TRIPDESK_GATEWAY_TOKEN")),
		Password: firstNonEmpty(cfg.Password, os.Getenv("TRIPDESK_GATEWAY_PASSWORD")),
	}
	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Authorize checks the credentials sent in a connect request.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}
	switch server.Mode {
	case "token":
		return checkSecret("token", server.Token, client.Token)
	case "password":
		return checkSecret("password", server.Password, client.Password)
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}
}

func checkSecret(kind, want, got string) AuthResult {
	switch {
	case want == "":
		return AuthResult{Reason: "server " + kind + " not configured"}
	case got == "":
		return AuthResult{Reason: kind + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: kind + "_mismatch"}
	}
	return AuthResult{OK: true, Method: kind}
}

// safeEqual compares digests in constant time so neither the content nor the
// length of the secret leaks through timing.
func safeEqual(a, b string) bool {
	da, db := sha256.Sum256([]byte(a)), sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
