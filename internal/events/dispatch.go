// Package events decodes Dashboard event-stream records and renders them for
// display.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/x/ansi"
)

// HeartbeatType is the record type the Dashboard sends to show the stream is
// alive. It bypasses the event type filter.
const HeartbeatType = "/heart_beat"

// Record is one decoded event. Server fields other than type, english-string
// and parameters are kept raw in Extra.
type Record struct {
	Type          string
	EnglishString string
	Parameters    map[string]any
	Extra         map[string]json.RawMessage
}

func (r Record) Heartbeat() bool {
	return r.Type == HeartbeatType
}

var ErrMissingType = errors.New("event record has no type")

// Parse decodes one frame payload. Numbers are kept as json.Number so they
// render exactly as sent.
func Parse(frame []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	fields := map[string]json.RawMessage{}
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("invalid event payload: %w", err)
	}

	rec := Record{}
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &rec.Type); err != nil {
			return Record{}, fmt.Errorf("invalid event type: %w", err)
		}
		delete(fields, "type")
	}
	if rec.Type == "" {
		return Record{}, ErrMissingType
	}
	if raw, ok := fields["english-string"]; ok {
		if err := json.Unmarshal(raw, &rec.EnglishString); err != nil {
			return Record{}, fmt.Errorf("invalid english-string: %w", err)
		}
		delete(fields, "english-string")
	}
	if raw, ok := fields["parameters"]; ok {
		paramDec := json.NewDecoder(bytes.NewReader(raw))
		paramDec.UseNumber()
		if err := paramDec.Decode(&rec.Parameters); err != nil {
			return Record{}, fmt.Errorf("invalid parameters: %w", err)
		}
		delete(fields, "parameters")
	}
	if len(fields) > 0 {
		rec.Extra = fields
	}
	return rec, nil
}

// Message is the display form of a record. TemplateErr is set when the text
// was rendered best-effort; it is a diagnostic, not a failure.
type Message struct {
	Heartbeat   bool
	Type        string
	Text        string
	TemplateErr *TemplateError
}

// Dispatch classifies rec and renders its english-string. Heartbeats are
// never rendered. Control sequences from the server are stripped.
func Dispatch(rec Record) Message {
	if rec.Heartbeat() {
		return Message{Heartbeat: true, Type: rec.Type}
	}
	msg := Message{Type: rec.Type}
	text, err := Render(rec.EnglishString, rec.Parameters)
	var terr *TemplateError
	if errors.As(err, &terr) {
		msg.TemplateErr = terr
	}
	msg.Text = ansi.Strip(text)
	return msg
}

// Decode parses a frame and dispatches it.
func Decode(frame []byte) (Message, error) {
	rec, err := Parse(frame)
	if err != nil {
		return Message{}, err
	}
	return Dispatch(rec), nil
}
