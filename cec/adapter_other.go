//go:build !linux || mips || mipsle || mips64 || mips64le || ppc64 || ppc64le

package cec

import (
	"errors"
	"time"
)

var ErrUnsupported = errors.New("cec adapters are not supported on this platform")

// Adapter is unavailable on this platform; every method fails with
// ErrUnsupported.
type Adapter struct {
	name string
}

func Open(path string) (*Adapter, error) { return nil, ErrUnsupported }

func FromFD(fd int, name string) *Adapter { return &Adapter{name: name} }

func (a *Adapter) FD() int      { return -1 }
func (a *Adapter) Name() string { return a.name }
func (a *Adapter) Close() error { return nil }

func (a *Adapter) Caps() (Caps, error)  { return Caps{}, ErrUnsupported }
func (a *Adapter) Mode() (Mode, error)  { return 0, ErrUnsupported }
func (a *Adapter) SetMode(m Mode) error { return ErrUnsupported }

func (a *Adapter) Wait(timeout time.Duration) (Readiness, error) { return 0, ErrUnsupported }
func (a *Adapter) Receive(m *Msg) error                          { return ErrUnsupported }
func (a *Adapter) DequeueEvent(e *KernelEvent) error             { return ErrUnsupported }
