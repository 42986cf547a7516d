package cbdstream

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxLineBytes = 4 * 1024 * 1024

// Frame is one dispatched server-sent event. Retry is the latest reconnect
// hint the server sent on this connection, even in a record of its own.
type Frame struct {
	Event string
	ID    string
	Retry time.Duration
	Data  []byte
}

// readFrames frames reader into out until the body ends or done is closed.
// Exactly one final error is sent on errs, which must have room for it:
// io.EOF on a clean end, ErrSessionClosed when done closed first.
func readFrames(reader io.Reader, out chan<- Frame, errs chan<- error, done <-chan struct{}) {
	defer close(out)

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineBytes)

	var frame Frame
	var retry time.Duration
	var data bytes.Buffer
	hasData := false
	emit := func() bool {
		defer func() {
			frame = Frame{}
			data.Reset()
			hasData = false
		}()
		// Records without a data field are not dispatched.
		if !hasData {
			return true
		}
		frame.Data = append([]byte{}, data.Bytes()...)
		frame.Retry = retry
		select {
		case out <- frame:
			return true
		case <-done:
			return false
		}
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if !emit() {
				errs <- ErrSessionClosed
				return
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if found && strings.HasPrefix(value, " ") {
			value = value[1:]
		}
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			frame.Event = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				frame.ID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if scanErr := scanner.Err(); scanErr != nil {
		errs <- scanErr
		return
	}
	// A record cut off by EOF without its blank line is incomplete and dropped.
	errs <- io.EOF
}
