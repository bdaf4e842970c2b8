//go:build linux

package cec

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// setupThread names the calling OS thread and sets its nice value.
// The caller must have locked the goroutine to its thread.
func setupThread(name string, priority int) error {
	var errs []error
	if name != "" {
		// PR_SET_NAME truncates to 15 bytes plus NUL.
		b := make([]byte, 16)
		copy(b[:15], name)
		if err := unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0); err != nil {
			errs = append(errs, fmt.Errorf("setting thread name: %w", err))
		}
	}
	if priority != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority); err != nil {
			errs = append(errs, fmt.Errorf("setting thread priority: %w", err))
		}
	}
	return errors.Join(errs...)
}
