package gateway

import (
	"strings"

	"github.com/soyeahso/tripdesk/internal/config"
)

// rpcConfigPrefixes are the only config keys reachable over RPC. Secrets,
// store locations and provider settings stay out.
var rpcConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"agents",
	"memory.k",
	"memory.analyze",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range rpcConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

type configGetParams struct {
	Key string `json:"key"`
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// configKey validates key for RPC access and splits it. It responds on
// failure and returns nil.
func configKey(rc *RequestContext, key string) []string {
	if key == "" {
		rc.RespondError("invalid_params", "key is required")
		return nil
	}
	if !isAllowedConfigPath(key) {
		rc.RespondError("forbidden", "config key not exposed over rpc: "+key)
		return nil
	}
	path, err := config.ParseKey(key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return nil
	}
	return path
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	path := configKey(rc, p.Key)
	if path == nil {
		return
	}

	s.mu.RLock()
	val, ok := config.Lookup(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

// rpcConfigSet edits the in-memory raw config. Changes take effect on the
// next restart and are not written back to disk.
func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	path := configKey(rc, p.Key)
	if path == nil {
		return
	}

	s.mu.Lock()
	config.Assign(s.configRaw, path, p.Value)
	s.mu.Unlock()
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}
