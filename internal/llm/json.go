package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// UnmarshalJSON decodes model-produced JSON. Models routinely emit fenced,
// truncated or single-quoted JSON; on a syntax error the input is repaired
// and decoded once more.
func UnmarshalJSON(data string, v any) error {
	data = stripFence(data)
	if data == "" {
		data = "{}"
	}
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	repaired, rerr := jsonrepair.JSONRepair(data)
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(repaired), v)
}

// stripFence removes a surrounding ```json fence if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// argsMap decodes a tool-call input into a map, tolerating malformed JSON.
func argsMap(input string) map[string]any {
	m := map[string]any{}
	if err := UnmarshalJSON(input, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// mustJSON encodes v, returning "{}" if encoding fails.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return "{}"
	}
	return string(data)
}
