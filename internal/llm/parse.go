package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripFences removes an optional leading ```json (or bare ```) marker and a
// trailing ``` marker from a model reply.
func StripFences(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON strips fences and unmarshals the reply into v.
func DecodeJSON(reply string, v any) error {
	cleaned := StripFences(reply)
	if cleaned == "" {
		return fmt.Errorf("decode llm reply: %w", ErrEmptyCompletion)
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode llm reply: %w", err)
	}
	return nil
}
