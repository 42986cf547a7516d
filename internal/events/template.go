package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TemplateError describes an english-string that could not be rendered
// faithfully. The best-effort text is still produced.
type TemplateError struct {
	Template  string
	Missing   []string
	Malformed bool
}

func (e *TemplateError) Error() string {
	if e == nil {
		return "template error"
	}
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing parameter(s) "+strings.Join(e.Missing, ", "))
	}
	if e.Malformed {
		parts = append(parts, "unbalanced braces")
	}
	return fmt.Sprintf("template %q: %s", e.Template, strings.Join(parts, "; "))
}

// Render substitutes {name} placeholders from params. {{ and }} stand for
// literal braces. A conversion or format suffix ({name!r}, {name:>8}) is
// accepted and ignored. Placeholders without a parameter are kept as written
// followed by a <missing:name> marker, and a *TemplateError is returned with
// the rendered text.
func Render(template string, params map[string]any) (string, error) {
	var out strings.Builder
	out.Grow(len(template))

	var terr *TemplateError
	fail := func() *TemplateError {
		if terr == nil {
			terr = &TemplateError{Template: template}
		}
		return terr
	}

	for i := 0; i < len(template); {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				out.WriteString(template[i:])
				fail().Malformed = true
				i = len(template)
				continue
			}
			field := template[i+1 : i+1+end]
			raw := template[i : i+2+end]
			i += end + 2

			name := placeholderName(field)
			value, ok := params[name]
			if !ok {
				out.WriteString(raw)
				out.WriteString("<missing:" + name + ">")
				missing := fail()
				missing.Missing = append(missing.Missing, name)
				continue
			}
			out.WriteString(formatValue(value))
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i += 2
			} else {
				fail().Malformed = true
				i++
			}
			out.WriteByte('}')
		default:
			out.WriteByte(c)
			i++
		}
	}

	if terr != nil {
		return out.String(), terr
	}
	return out.String(), nil
}

func placeholderName(field string) string {
	if cut := strings.IndexAny(field, "!:"); cut >= 0 {
		field = field[:cut]
	}
	return strings.TrimSpace(field)
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case json.Number:
		return v.String()
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
