package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// args wraps the raw mapping a model sends. Every accessor distinguishes a
// missing key from a key of the wrong type.
type args map[string]any

func (a args) str(key string) (string, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s must be a string", key)
	}
	return s, true, nil
}

func (a args) number(key string) (float64, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a number", key)
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("%s must be a number", key)
}

func (a args) boolean(key string) (bool, bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, true, nil
}

// enum returns the canonical spelling from allowed, matched case-insensitively.
func (a args) enum(key string, allowed ...string) (string, bool, error) {
	s, ok, err := a.str(key)
	if err != nil || !ok {
		return "", ok, err
	}
	for _, v := range allowed {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return v, true, nil
		}
	}
	return "", false, fmt.Errorf("%s must be one of %s", key, strings.Join(allowed, ", "))
}
