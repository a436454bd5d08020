package restclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// UserMessage returns the server provided message, if any
func (e *APIError) UserMessage() string {
	return e.Message
}

// extractMessage pulls a human-readable message out of an error body:
// {"message": ...}, {"error": ...}, {"detail": ...} or {"error": {"message": ...}}
func extractMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error", "detail"} {
		switch v := m[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
