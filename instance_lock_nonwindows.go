//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// instanceLock is an advisory file lock plus a sidecar file naming the
// holder's pid.
type instanceLock struct {
	lock    *flock.Flock
	pidPath string
}

func acquireInstanceLock(key string) (*instanceLock, error) {
	dir, err := instanceLockDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	name := instanceLockName(key)
	pidPath := filepath.Join(dir, name+".pid")

	f := flock.New(filepath.Join(dir, name+".lock"))
	locked, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return nil, &instanceBusyError{Key: key, PID: readPID(pidPath)}
	}
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = f.Unlock()
		return nil, fmt.Errorf("record instance pid: %w", err)
	}
	return &instanceLock{lock: f, pidPath: pidPath}, nil
}

func (l *instanceLock) Release() error {
	if l == nil || l.lock == nil || !l.lock.Locked() {
		return nil
	}
	if err := os.Remove(l.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove instance pid file: %w", err)
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock instance lock: %w", err)
	}
	return nil
}

func instanceLockDir() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(root, "cbd-eventstream"), nil
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
