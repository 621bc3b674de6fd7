package config

import "strings"

// ParseKey splits a dotted key such as "agents.maxToolRounds" into segments.
func ParseKey(key string) ([]string, error) {
	if key == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config key " + key + " has an empty segment"}
		}
	}
	return parts, nil
}

// Lookup walks raw along path.
func Lookup(raw map[string]any, path []string) (any, bool) {
	var cur any = raw
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Assign stores value at path, replacing any non-map along the way.
func Assign(raw map[string]any, path []string, value any) {
	m := raw
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Remove deletes the value at path and reports whether it existed.
func Remove(raw map[string]any, path []string) bool {
	parent, ok := Lookup(raw, path[:len(path)-1])
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
