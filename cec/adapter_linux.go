//go:build linux && !mips && !mipsle && !mips64 && !mips64le && !ppc64 && !ppc64le

package cec

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Adapter is an open CEC adapter file handle (/dev/cecN).
//
// Receive, DequeueEvent and Wait are safe to call from one goroutine while
// Caps and Mode are called from another; the kernel serializes ioctls.
type Adapter struct {
	name  string
	fd    int
	owned bool
}

// Open opens the CEC adapter at path in non-blocking mode.
func Open(path string) (*Adapter, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	return &Adapter{name: path, fd: fd, owned: true}, nil
}

// FromFD wraps a descriptor opened by the caller. The Adapter does not
// take ownership: Close leaves fd open. A negative fd yields an Adapter
// that a Processor refuses to run.
func FromFD(fd int, name string) *Adapter {
	return &Adapter{name: name, fd: fd}
}

func (a *Adapter) FD() int      { return a.fd }
func (a *Adapter) Name() string { return a.name }

// Close closes the descriptor if it was opened by Open.
func (a *Adapter) Close() error {
	if a.fd < 0 {
		return nil
	}
	fd := a.fd
	a.fd = -1
	if !a.owned {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("closing fd: %w", err)
	}
	return nil
}

// Caps queries the adapter capabilities (CEC_ADAP_G_CAPS).
func (a *Adapter) Caps() (Caps, error) {
	var c Caps
	if err := ioctl(a.fd, reqAdapGetCaps, unsafe.Pointer(&c)); err != nil {
		return Caps{}, fmt.Errorf("CEC_ADAP_G_CAPS: %w", err)
	}
	return c, nil
}

// Mode returns the file handle mode (CEC_G_MODE).
func (a *Adapter) Mode() (Mode, error) {
	var m uint32
	if err := ioctl(a.fd, reqGetMode, unsafe.Pointer(&m)); err != nil {
		return 0, fmt.Errorf("CEC_G_MODE: %w", err)
	}
	return Mode(m), nil
}

// SetMode sets the file handle mode (CEC_S_MODE).
func (a *Adapter) SetMode(m Mode) error {
	v := uint32(m)
	if err := ioctl(a.fd, reqSetMode, unsafe.Pointer(&v)); err != nil {
		return fmt.Errorf("CEC_S_MODE %s: %w", m, err)
	}
	return nil
}

// Wait blocks until a frame or an event is pending or the timeout expires.
// Returns zero Readiness and a nil error on timeout.
// Returns a non-nil error only for real system call failures.
func (a *Adapter) Wait(timeout time.Duration) (Readiness, error) {
	fds := []unix.PollFd{{
		Fd:     int32(a.fd),
		Events: unix.POLLIN | pollRdNorm | unix.POLLPRI,
	}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
		return readiness(fds[0].Revents), nil
	}
}

// POLLRDNORM on generic-layout Linux; x/sys/unix doesn't export it.
const pollRdNorm = 0x40

func readiness(revents int16) Readiness {
	var r Readiness
	if revents&(unix.POLLIN|pollRdNorm) != 0 {
		r |= ReadyMessage
	}
	if revents&unix.POLLPRI != 0 {
		r |= ReadyEvent
	}
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		r |= ReadyHangup
	}
	return r
}

// Receive dequeues one received frame (CEC_RECEIVE) into m.
// m.Timeout is honored by the kernel; zero returns EAGAIN when nothing
// is pending on a non-blocking handle.
func (a *Adapter) Receive(m *Msg) error {
	if err := ioctl(a.fd, reqReceive, unsafe.Pointer(m)); err != nil {
		return fmt.Errorf("CEC_RECEIVE: %w", err)
	}
	return nil
}

// DequeueEvent dequeues one pending event (CEC_DQEVENT) into e.
func (a *Adapter) DequeueEvent(e *KernelEvent) error {
	if err := ioctl(a.fd, reqDQEvent, unsafe.Pointer(e)); err != nil {
		return fmt.Errorf("CEC_DQEVENT: %w", err)
	}
	return nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return e
		}
		return nil
	}
}
