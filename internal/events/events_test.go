package events

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecode_Heartbeat(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"/heart_beat","english-string":"{never}","parameters":{}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !msg.Heartbeat {
		t.Fatalf("Heartbeat = false, want true")
	}
	if msg.Text != "" || msg.TemplateErr != nil {
		t.Fatalf("heartbeat should not be rendered: %#v", msg)
	}
}

func TestDecode_ConfigChange(t *testing.T) {
	frame := `{"type":"/config_change","english-string":"Network {net} changed by {user}","parameters":{"net":"N1","user":"admin"},"network-id":"N1","device-id":"D9"}`
	rec, err := Parse([]byte(frame))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(rec.Extra) != 2 || string(rec.Extra["network-id"]) != `"N1"` {
		t.Fatalf("Extra = %v", rec.Extra)
	}

	msg := Dispatch(rec)
	if msg.Heartbeat {
		t.Fatalf("Heartbeat = true, want false")
	}
	if msg.Text != "Network N1 changed by admin" {
		t.Fatalf("Text = %q, want %q", msg.Text, "Network N1 changed by admin")
	}
	if msg.TemplateErr != nil {
		t.Fatalf("TemplateErr = %v, want nil", msg.TemplateErr)
	}
}

func TestDecode_MissingParameterIsDiagnostic(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"/event","english-string":"Network {net} changed by {user}","parameters":{"net":"N1"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.Text != "Network N1 changed by {user}<missing:user>" {
		t.Fatalf("Text = %q", msg.Text)
	}
	if msg.TemplateErr == nil || len(msg.TemplateErr.Missing) != 1 || msg.TemplateErr.Missing[0] != "user" {
		t.Fatalf("TemplateErr = %#v, want missing [user]", msg.TemplateErr)
	}
}

func TestDecode_MissingParametersObject(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"/event","english-string":"Device {dev} offline"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.TemplateErr == nil || !strings.Contains(msg.Text, "<missing:dev>") {
		t.Fatalf("msg = %#v", msg)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, frame := range []string{``, `not json`, `[]`, `{"english-string":"x"}`, `{"type":5}`} {
		if _, err := Parse([]byte(frame)); err == nil {
			t.Fatalf("Parse(%q) expected error", frame)
		}
	}
	if _, err := Parse([]byte(`{"english-string":"x"}`)); !errors.Is(err, ErrMissingType) {
		t.Fatalf("Parse() without type err = %v, want ErrMissingType", err)
	}
}

func TestRender(t *testing.T) {
	params := map[string]any{
		"s":    "text",
		"n":    mustNumber(t, "1234567890123"),
		"f":    mustNumber(t, "2.50"),
		"b":    true,
		"nil":  nil,
		"list": []any{"a", "b"},
	}
	tests := []struct {
		name     string
		template string
		want     string
		missing  []string
		bad      bool
	}{
		{name: "plain", template: "no placeholders", want: "no placeholders"},
		{name: "values", template: "{s} {n} {f} {b} {nil} {list}", want: `text 1234567890123 2.50 true null ["a","b"]`},
		{name: "escaped braces", template: "{{literal}} {s}", want: "{literal} text"},
		{name: "format suffix ignored", template: "[{s:>10}] [{s!r}]", want: "[text] [text]"},
		{name: "repeat", template: "{s}{s}", want: "texttext"},
		{name: "missing twice", template: "{a} and {b}", want: "{a}<missing:a> and {b}<missing:b>", missing: []string{"a", "b"}},
		{name: "unterminated", template: "open {s", want: "open {s", bad: true},
		{name: "stray close", template: "x } y", want: "x } y", bad: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, params)
			if got != tt.want {
				t.Fatalf("Render() = %q, want %q", got, tt.want)
			}
			if len(tt.missing) == 0 && !tt.bad {
				if err != nil {
					t.Fatalf("Render() error = %v", err)
				}
				return
			}
			var terr *TemplateError
			if !errors.As(err, &terr) {
				t.Fatalf("Render() error = %v, want *TemplateError", err)
			}
			if strings.Join(terr.Missing, ",") != strings.Join(tt.missing, ",") || terr.Malformed != tt.bad {
				t.Fatalf("TemplateError = %#v", terr)
			}
		})
	}
}

func TestDispatch_StripsControlSequences(t *testing.T) {
	msg := Dispatch(Record{
		Type:          "/event",
		EnglishString: "Device {name} rebooted",
		Parameters:    map[string]any{"name": "\x1b[31mswitch-1\x1b[0m"},
	})
	if msg.Text != "Device switch-1 rebooted" {
		t.Fatalf("Text = %q", msg.Text)
	}
}

func TestPrinter_PlainOutput(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var out bytes.Buffer
	p := NewPrinter(&out)

	if err := p.Print(Message{Heartbeat: true}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if err := p.Print(Message{Text: "Network N1 changed by admin"}); err != nil {
		t.Fatalf("Print() error = %v", err)
	}
	if err := p.Subscribed([]string{"N1", "N2"}); err != nil {
		t.Fatalf("Subscribed() error = %v", err)
	}
	if err := p.Farewell(); err != nil {
		t.Fatalf("Farewell() error = %v", err)
	}

	want := "Received heartbeat from Dashboard.\n" +
		"Received event:  Network N1 changed by admin\n" +
		"Successfully subscribed to networks with ID(s) N1, N2\n" +
		"Exiting.  Goodbye!\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func mustNumber(t *testing.T, s string) any {
	t.Helper()
	rec, err := Parse([]byte(`{"type":"/event","parameters":{"v":` + s + `}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return rec.Parameters["v"]
}
