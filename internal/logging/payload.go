package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const maxPayloadPreview = 4096

// FormatHTTPPayload renders a response body or stream frame for the log.
// JSON is re-indented (a JSON-encoded string holding JSON is unwrapped
// first); anything else is trimmed. Oversized payloads are clipped.
func FormatHTTPPayload(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "<empty>"
	}

	var quoted string
	if err := json.Unmarshal(trimmed, &quoted); err == nil {
		trimmed = bytes.TrimSpace([]byte(quoted))
	}

	text := string(trimmed)
	var value any
	if err := json.Unmarshal(trimmed, &value); err == nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(value); err == nil {
			text = strings.TrimSpace(buf.String())
		}
	}
	return clip(text, maxPayloadPreview)
}

func clip(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return fmt.Sprintf("%s... (%d bytes clipped)", text[:limit], len(text)-limit)
}
