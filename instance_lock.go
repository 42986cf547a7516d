package main

import (
	"fmt"
	"strings"
)

// instanceBusyError reports that another monitor already holds the lock for
// the same Dashboard and client id. PID is zero when the holder is unknown.
type instanceBusyError struct {
	Key string
	PID int
}

func (e *instanceBusyError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("a monitor for %s is already running (pid %d)", e.Key, e.PID)
	}
	return fmt.Sprintf("a monitor for %s is already running", e.Key)
}

// instanceLockName maps a monitor identity to a string usable as a file or
// mutex name.
func instanceLockName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
