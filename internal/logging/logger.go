// Package logging writes human-oriented log lines to a terminal and, when
// enabled, mirrors every entry (debug included) to rotating JSONL files.
package logging

import (
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// KV is one log field. Fields keep the order they were given in.
type KV struct {
	Key   string
	Value any
}

type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Fields  []KV
}

// Logger is safe for concurrent use. Loggers derived with With share the
// output and file persistence of their parent.
type Logger struct {
	core   *core
	fields []KV
}

type core struct {
	level slog.LevelVar

	mu      sync.Mutex
	out     io.Writer
	palette *palette
	files   *rotatingFile
}

// New logs to stderr. Debug entries reach the terminal only when debug is set.
func New(debug bool) *Logger {
	return NewWriter(os.Stderr, debug)
}

func NewWriter(w io.Writer, debug bool) *Logger {
	c := &core{out: w}
	if shouldPrettyPrint(w) {
		c.palette = newPalette(w)
	}
	l := &Logger{core: c}
	l.SetDebug(debug)
	return l
}

// Discard returns a logger that prints nothing. File persistence can still
// be enabled on it.
func Discard() *Logger {
	return NewWriter(io.Discard, false)
}

func Field(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// With returns a logger that prefixes every entry with fields.
func (l *Logger) With(fields ...slog.Attr) *Logger {
	if l == nil {
		return nil
	}
	merged := appendAttrs(slices.Clone(l.fields), "", fields)
	return &Logger{core: l.core, fields: merged}
}

func (l *Logger) SetDebug(enabled bool) {
	if l == nil {
		return
	}
	if enabled {
		l.core.level.Set(slog.LevelDebug)
		return
	}
	l.core.level.Set(slog.LevelInfo)
}

func (l *Logger) Debug(msg string, fields ...slog.Attr) {
	l.log(slog.LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...slog.Attr) {
	l.log(slog.LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...slog.Attr) {
	l.log(slog.LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...slog.Attr) {
	l.log(slog.LevelError, msg, fields)
}

// EnableFilePersistence mirrors every entry into rotating JSONL files under
// dir. An empty dir selects DefaultLogDirPath; maxBytes <= 0 selects the
// default file size.
func (l *Logger) EnableFilePersistence(dir string, maxBytes int64) error {
	if l == nil {
		return nil
	}
	files, err := openRotatingFile(dir, maxBytes, time.Now())
	if err != nil {
		return err
	}
	l.core.mu.Lock()
	old := l.core.files
	l.core.files = files
	l.core.mu.Unlock()
	if old != nil {
		_ = old.close()
	}
	return nil
}

// Close stops file persistence. Terminal output keeps working.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.core.mu.Lock()
	files := l.core.files
	l.core.files = nil
	l.core.mu.Unlock()
	if files == nil {
		return nil
	}
	return files.close()
}

func (l *Logger) log(level slog.Level, msg string, attrs []slog.Attr) {
	if l == nil {
		return
	}
	entry := Entry{
		Time:    time.Now(),
		Level:   level,
		Message: msg,
		Fields:  appendAttrs(slices.Clone(l.fields), "", attrs),
	}
	l.core.write(entry)
}

func (c *core) write(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files != nil {
		_ = c.files.write(entry)
	}
	if entry.Level < c.level.Level() {
		return
	}
	if c.palette != nil {
		_, _ = io.WriteString(c.out, c.palette.format(entry))
		return
	}
	_, _ = io.WriteString(c.out, formatLine(entry))
}

// appendAttrs flattens groups into dotted keys.
func appendAttrs(dst []KV, prefix string, attrs []slog.Attr) []KV {
	for _, attr := range attrs {
		if attr.Key == "" && attr.Value.Kind() != slog.KindGroup {
			continue
		}
		key := attr.Key
		if prefix != "" && key != "" {
			key = prefix + "." + key
		} else if prefix != "" {
			key = prefix
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			dst = appendAttrs(dst, key, value.Group())
			continue
		}
		dst = append(dst, KV{Key: key, Value: value.Any()})
	}
	return dst
}
