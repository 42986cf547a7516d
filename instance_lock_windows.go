//go:build windows

package main

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Session-local named mutex; the kernel drops it when the holder exits.
type instanceLock struct {
	handle windows.Handle
}

func acquireInstanceLock(key string) (*instanceLock, error) {
	name, err := windows.UTF16PtrFromString(`Local\CBDEventStream-` + instanceLockName(key))
	if err != nil {
		return nil, fmt.Errorf("encode mutex name: %w", err)
	}
	handle, err := windows.CreateMutex(nil, false, name)
	if err == windows.ERROR_ALREADY_EXISTS {
		_ = windows.CloseHandle(handle)
		return nil, &instanceBusyError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("create instance mutex for %s: %w", key, err)
	}
	return &instanceLock{handle: handle}, nil
}

func (l *instanceLock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}
