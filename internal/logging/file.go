package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	defaultMaxFileBytes = 5 << 20
	keepFiles           = 10
	filePrefix          = "cbd-eventstream-"
	fileSuffix          = ".jsonl"
)

// DefaultLogDirPath is where log files go when no directory is configured.
func DefaultLogDirPath() (string, error) {
	root, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "cbd-eventstream", "logs"), nil
}

// rotatingFile writes one JSON object per entry. Each run gets its own
// series of numbered files; only the newest keepFiles files in the
// directory survive a rotation. Callers serialize access.
type rotatingFile struct {
	dir      string
	tag      string
	maxBytes int64
	keep     int

	part int
	file *os.File
	size int64
}

type jsonLine struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func openRotatingFile(dir string, maxBytes int64, started time.Time) (*rotatingFile, error) {
	if strings.TrimSpace(dir) == "" {
		defaultDir, err := DefaultLogDirPath()
		if err != nil {
			return nil, err
		}
		dir = defaultDir
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	r := &rotatingFile{
		dir:      dir,
		tag:      started.UTC().Format("20060102-150405"),
		maxBytes: maxBytes,
		keep:     keepFiles,
	}
	if err := r.rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) write(entry Entry) error {
	line, err := encodeJSONLine(entry)
	if err != nil {
		return err
	}
	if r.file == nil {
		return os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(line)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return err
		}
	}
	n, err := r.file.Write(line)
	r.size += int64(n)
	return err
}

func (r *rotatingFile) rotate() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	r.part++
	name := fmt.Sprintf("%s%s-%03d%s", filePrefix, r.tag, r.part, fileSuffix)
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.file = f
	r.size = info.Size()
	return r.prune()
}

// prune removes the oldest log files beyond the keep limit. Names sort in
// creation order because the tag is a UTC timestamp.
func (r *rotatingFile) prune() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	if len(names) <= r.keep {
		return nil
	}
	slices.Sort(names)
	var errs []error
	for _, name := range names[:len(names)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *rotatingFile) close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func encodeJSONLine(entry Entry) ([]byte, error) {
	line := jsonLine{
		Time:    entry.Time.UTC().Format(time.RFC3339Nano),
		Level:   levelName(entry.Level),
		Message: entry.Message,
	}
	if len(entry.Fields) > 0 {
		line.Fields = make(map[string]any, len(entry.Fields))
		for _, f := range entry.Fields {
			line.Fields[f.Key] = jsonValue(f.Value)
		}
	}
	data, err := json.Marshal(line)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func jsonValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case error:
		return v.Error()
	case []byte:
		return string(v)
	case json.RawMessage:
		if json.Valid(v) {
			return v
		}
		return string(v)
	case time.Duration:
		return v.String()
	case slog.Level:
		return levelName(v)
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}
