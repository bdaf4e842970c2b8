package cec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/romshark/cecpoll/cecstat"
)

// fakeStep is what one Wait call on fakeDevice reports, along with the
// results of the Receive and DequeueEvent calls that follow it.
type fakeStep struct {
	ready   Readiness
	waitErr error
	msg     Msg
	recvErr error
	ev      KernelEvent
	evErr   error
}

type fakeDevice struct {
	fd    int
	steps chan fakeStep
	cur   fakeStep
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{steps: make(chan fakeStep)}
}

func (d *fakeDevice) FD() int { return d.fd }

func (d *fakeDevice) Wait(timeout time.Duration) (Readiness, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s := <-d.steps:
		d.cur = s
		return s.ready, s.waitErr
	case <-t.C:
		return 0, nil
	}
}

func (d *fakeDevice) Receive(m *Msg) error {
	if d.cur.recvErr != nil {
		return d.cur.recvErr
	}
	*m = d.cur.msg
	return nil
}

func (d *fakeDevice) DequeueEvent(e *KernelEvent) error {
	if d.cur.evErr != nil {
		return d.cur.evErr
	}
	*e = d.cur.ev
	return nil
}

type recorder struct {
	events chan Event
}

func (r *recorder) HandleEvent(e Event) { r.events <- e }

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

var active = Settings{Enabled: true, SystemControl: true}

func startProcessor(t *testing.T, settings Settings) (*fakeDevice, *recorder, *Processor) {
	t.Helper()
	dev := newFakeDevice()
	rec := &recorder{events: make(chan Event, 16)}
	p, err := NewProcessor(dev, ProcessorConfig{
		DeviceName:  "fake0",
		PollTimeout: time.Millisecond,
		Logger:      zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel),
		Settings:    settings,
	}, rec)
	require.NoError(t, err)
	w := p.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, w.Stop()) })
	return dev, rec, p
}

func messageStep(b ...byte) fakeStep {
	return fakeStep{ready: ReadyMessage, msg: *frame(b...)}
}

func eventStep(code uint32) fakeStep {
	return fakeStep{ready: ReadyEvent, ev: KernelEvent{Event: code}}
}

// sentinel is a valid frame pushed after a step that must not produce a
// callback; the next delivered event must be the sentinel itself.
var sentinel = []byte{0x4f, 0x87, 0x00, 0x0c, 0x03}

func requireSentinel(t *testing.T, rec *recorder) {
	t.Helper()
	e := rec.next(t)
	require.Equal(t, EventCECMessage, e.Type)
	require.Equal(t, sentinel[1:], e.Message.Body)
}

func TestProcessorDeliversMessage(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	dev.steps <- messageStep(0x04, 0x82, 0x10, 0x00)
	e := rec.next(t)
	require.Equal(t, EventCECMessage, e.Type)
	require.Equal(t, "fake0", e.Device)
	require.Equal(t, AddrTV, e.Message.Initiator)
	require.Equal(t, AddrPlayback1, e.Message.Destination)
	require.Equal(t, 3, e.Message.Length)
	require.Equal(t, []byte{0x82, 0x10, 0x00}, e.Message.Body)

	require.Eventually(t, func() bool {
		return p.Stats()[cecstat.Delivered] == 1
	}, time.Second, time.Millisecond)
	require.Equal(t, uint64(1), p.Stats()[cecstat.Received])
}

func TestProcessorDeliversHotPlug(t *testing.T) {
	dev, rec, _ := startProcessor(t, active)

	dev.steps <- eventStep(KernelEventPinHPDHigh)
	e := rec.next(t)
	require.Equal(t, EventHotPlug, e.Type)
	require.Equal(t, HotPlug{Connected: true, PortID: DefaultPortID}, e.HotPlug)

	dev.steps <- eventStep(KernelEventPinHPDLow)
	e = rec.next(t)
	require.Equal(t, EventHotPlug, e.Type)
	require.Equal(t, HotPlug{Connected: false, PortID: DefaultPortID}, e.HotPlug)
}

func TestProcessorMessageAndEventInOneIteration(t *testing.T) {
	dev, rec, _ := startProcessor(t, active)

	s := messageStep(sentinel...)
	s.ready |= ReadyEvent
	s.ev = KernelEvent{Event: KernelEventPinHPDHigh}
	dev.steps <- s

	requireSentinel(t, rec)
	require.Equal(t, EventHotPlug, rec.next(t).Type)
}

func TestProcessorDropsOversizeMessage(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	dev.steps <- fakeStep{ready: ReadyMessage, msg: Msg{Len: MaxMsgSize + 1}}
	dev.steps <- messageStep(sentinel...)
	requireSentinel(t, rec)
	require.Equal(t, uint64(1), p.Stats()[cecstat.Oversize])
}

func TestProcessorDropsEmptyMessage(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	dev.steps <- fakeStep{ready: ReadyMessage, msg: Msg{}}
	dev.steps <- messageStep(sentinel...)
	requireSentinel(t, rec)
	require.Equal(t, uint64(1), p.Stats()[cecstat.Malformed])
}

func TestProcessorIgnoresOtherKernelEvents(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	for _, code := range []uint32{
		KernelEventStateChange,
		KernelEventPinCECLow,
		KernelEventPinCECHigh,
		KernelEventPin5VLow,
		KernelEventPin5VHigh,
	} {
		dev.steps <- eventStep(code)
	}
	lost := eventStep(KernelEventLostMsgs)
	lost.ev.Payload[0] = 2
	if !isLittleEndian() {
		lost.ev.Payload[0], lost.ev.Payload[3] = 0, 2
	}
	dev.steps <- lost

	dev.steps <- messageStep(sentinel...)
	requireSentinel(t, rec)
	s := p.Stats()
	require.Equal(t, uint64(6), s[cecstat.IgnoredEvents])
	require.Equal(t, uint64(2), s[cecstat.LostMessages])
}

func TestProcessorControlCallFailures(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	dev.steps <- fakeStep{ready: ReadyMessage, recvErr: errors.New("EIO")}
	dev.steps <- fakeStep{ready: ReadyEvent, evErr: errors.New("EIO")}
	dev.steps <- messageStep(sentinel...)
	requireSentinel(t, rec)

	s := p.Stats()
	require.Equal(t, uint64(1), s[cecstat.ReceiveErrors])
	require.Equal(t, uint64(1), s[cecstat.EventErrors])
}

func TestProcessorPollFailureContinues(t *testing.T) {
	dev, rec, p := startProcessor(t, active)

	dev.steps <- fakeStep{waitErr: errors.New("EBADF")}
	dev.steps <- fakeStep{ready: ReadyHangup}
	dev.steps <- messageStep(sentinel...)
	requireSentinel(t, rec)
	require.Equal(t, uint64(2), p.Stats()[cecstat.PollErrors])
}

func TestProcessorGated(t *testing.T) {
	for _, settings := range []Settings{
		{},
		{Enabled: true},
		{SystemControl: true},
	} {
		t.Run("", func(t *testing.T) {
			dev, rec, p := startProcessor(t, settings)

			dev.steps <- messageStep(sentinel...)
			dev.steps <- eventStep(KernelEventPinHPDHigh)
			dev.steps <- eventStep(KernelEventPinHPDLow)

			// Gated frames and events are still drained.
			require.Eventually(t, func() bool {
				return p.Stats()[cecstat.Gated] == 3
			}, 5*time.Second, time.Millisecond)
			require.Equal(t, uint64(1), p.Stats()[cecstat.Received])
			require.Len(t, rec.events, 0)
			require.Equal(t, uint64(0), p.Stats()[cecstat.Delivered])
		})
	}
}

func TestProcessorInvalidDevice(t *testing.T) {
	dev := newFakeDevice()
	dev.fd = -1
	var called bool
	p, err := NewProcessor(dev, ProcessorConfig{}, HandlerFunc(func(Event) { called = true }))
	require.NoError(t, err)

	w := p.Start(context.Background())
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("processor kept running on an invalid descriptor")
	}
	require.ErrorIs(t, w.Err(), ErrInvalidDevice)
	require.ErrorIs(t, w.Stop(), ErrInvalidDevice)
	require.False(t, called)
}

func TestProcessorRunReturnsOnCancel(t *testing.T) {
	p, err := NewProcessor(newFakeDevice(), ProcessorConfig{PollTimeout: time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestProcessorNilDevice(t *testing.T) {
	_, err := NewProcessor(nil, ProcessorConfig{}, nil)
	require.ErrorIs(t, err, ErrInvalidDevice)
}

func TestProcessorSettings(t *testing.T) {
	p, err := NewProcessor(newFakeDevice(), ProcessorConfig{}, nil)
	require.NoError(t, err)
	require.Equal(t, Settings{}, p.Settings())
	require.False(t, p.Settings().Active())

	p.SetEnabled(true)
	require.Equal(t, Settings{Enabled: true}, p.Settings())
	p.SetSystemControl(true)
	require.True(t, p.Settings().Active())
	p.SetSettings(Settings{SystemControl: true})
	require.Equal(t, Settings{SystemControl: true}, p.Settings())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				p.SetEnabled(true)
			} else {
				p.SetSystemControl(true)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, active, p.Settings())
}

func TestProcessorConfigDefaults(t *testing.T) {
	var c ProcessorConfig
	require.NoError(t, c.ValidateAndSetDefaults())
	require.Equal(t, DefaultPortID, c.PortID)
	require.Equal(t, DefaultPollTimeout, c.PollTimeout)
	require.Equal(t, DefaultThreadName, c.ThreadName)

	c = ProcessorConfig{PollTimeout: time.Microsecond}
	require.Error(t, c.ValidateAndSetDefaults())

	c = ProcessorConfig{ThreadPriority: -21}
	require.Error(t, c.ValidateAndSetDefaults())

	c = ProcessorConfig{PortID: -1}
	require.Error(t, c.ValidateAndSetDefaults())
}
