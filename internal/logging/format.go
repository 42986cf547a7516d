package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"
)

type renderedField struct {
	key   string
	text  string
	block bool
}

func formatLine(entry Entry) string {
	var b strings.Builder
	b.WriteString(entry.Time.Format("15:04:05"))
	b.WriteString(" [")
	b.WriteString(levelName(entry.Level))
	b.WriteString("] ")
	b.WriteString(entry.Message)

	fields := renderFields(entry.Fields)
	for _, f := range fields {
		if !f.block {
			fmt.Fprintf(&b, " %s=%s", f.key, f.text)
		}
	}
	b.WriteByte('\n')
	for _, f := range fields {
		if f.block {
			fmt.Fprintf(&b, "  %s=\n%s\n", f.key, indent(f.text, "    "))
		}
	}
	return b.String()
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// renderFields keeps inline fields in order and moves multi-line payloads
// after them.
func renderFields(fields []KV) []renderedField {
	out := make([]renderedField, 0, len(fields))
	var blocks []renderedField
	for _, f := range fields {
		text, block := renderValue(f.Key, f.Value)
		rf := renderedField{key: f.Key, text: text, block: block}
		if block {
			blocks = append(blocks, rf)
			continue
		}
		out = append(out, rf)
	}
	return append(out, blocks...)
}

func renderValue(key string, value any) (string, bool) {
	payload := isPayloadKey(key)
	switch v := value.(type) {
	case nil:
		return "<nil>", false
	case string:
		return renderText(v, payload)
	case []byte:
		return renderText(string(v), payload)
	case json.RawMessage:
		return renderText(string(v), payload)
	case error:
		return quoteIfNeeded(v.Error()), false
	case time.Duration:
		return v.String(), false
	case time.Time:
		return v.Format(time.RFC3339), false
	case fmt.Stringer:
		return quoteIfNeeded(v.String()), false
	}

	switch reflect.Indirect(reflect.ValueOf(value)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if payload {
			if data, err := json.MarshalIndent(value, "", "  "); err == nil {
				return string(data), true
			}
		}
		if data, err := json.Marshal(value); err == nil {
			return string(data), false
		}
	}
	return quoteIfNeeded(fmt.Sprint(value)), false
}

func renderText(text string, payload bool) (string, bool) {
	if payload && looksLikeJSON(text) {
		pretty := FormatHTTPPayload([]byte(text))
		return pretty, strings.Contains(pretty, "\n")
	}
	return quoteIfNeeded(text), false
}

func looksLikeJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

func isPayloadKey(key string) bool {
	switch strings.ToLower(key) {
	case "payload", "response", "body", "frame", "parameters":
		return true
	default:
		return false
	}
}

func quoteIfNeeded(text string) string {
	if text == "" {
		return `""`
	}
	if strings.ContainsAny(text, " =\"\t\r\n") {
		return strconv.Quote(text)
	}
	return text
}

func indent(text, prefix string) string {
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}
