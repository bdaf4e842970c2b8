package cec

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/romshark/cecpoll/cecstat"
	"github.com/romshark/cecpoll/ratelimit"
)

var ErrInvalidDevice = errors.New("invalid cec device descriptor")

// Readiness reports which kinds of data a Device has pending.
type Readiness uint8

const (
	// ReadyMessage means a received frame can be read with Receive.
	ReadyMessage Readiness = 1 << iota
	// ReadyEvent means an event can be dequeued with DequeueEvent.
	ReadyEvent
	// ReadyHangup means the descriptor reported an error or hangup.
	ReadyHangup
)

// Device is a CEC adapter file handle as used by Processor.
// *Adapter implements Device on Linux.
type Device interface {
	// FD returns the underlying descriptor, negative if invalid.
	FD() int
	// Wait blocks until data is pending or timeout expires.
	// A timeout returns zero Readiness and a nil error.
	Wait(timeout time.Duration) (Readiness, error)
	Receive(m *Msg) error
	DequeueEvent(e *KernelEvent) error
}

// Settings gate event dispatch. Events are only delivered when both
// fields are true.
type Settings struct {
	Enabled       bool
	SystemControl bool
}

func (s Settings) Active() bool { return s.Enabled && s.SystemControl }

const (
	DefaultPollTimeout = 20 * time.Millisecond
	DefaultThreadName  = "HdmiCecThread"

	// PriorityUrgentDisplay is HAL_PRIORITY_URGENT_DISPLAY.
	PriorityUrgentDisplay = -8
)

type ProcessorConfig struct {
	// DeviceName is reported in Event.Device.
	DeviceName string
	// PortID is reported with hot plug events.
	PortID int
	// PollTimeout bounds every Wait call.
	PollTimeout time.Duration
	// ThreadName is applied to the locked OS thread (Linux only).
	ThreadName string
	// ThreadPriority is the nice value applied to the locked OS thread
	// (Linux only). Zero leaves the priority unchanged.
	ThreadPriority int
	// Logger is silent when zero.
	Logger zerolog.Logger
	// LogLimiter suppresses repeated error lines. Nil disables limiting.
	LogLimiter *ratelimit.Limiter
	// Settings is the initial dispatch gate.
	Settings Settings
}

func (c *ProcessorConfig) ValidateAndSetDefaults() error {
	if c.PortID == 0 {
		c.PortID = DefaultPortID
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ThreadName == "" {
		c.ThreadName = DefaultThreadName
	}
	if c.PortID < 0 {
		return errors.New("PortID must be >= 0")
	}
	if c.PollTimeout < time.Millisecond {
		return errors.New("PollTimeout must be >= 1ms")
	}
	if c.ThreadPriority < -20 || c.ThreadPriority > 19 {
		return errors.New("ThreadPriority must be between -20 and 19")
	}
	return nil
}

// Processor polls a Device and delivers translated events to a Handler.
type Processor struct {
	dev      Device
	conf     ProcessorConfig
	handler  Handler
	log      zerolog.Logger
	settings atomic.Pointer[Settings]
	stats    cecstat.Counters
	running  atomic.Bool
}

// NewProcessor creates a Processor for dev. conf is validated and
// defaulted; handler may be nil, in which case events are counted but
// not delivered.
func NewProcessor(dev Device, conf ProcessorConfig, handler Handler) (*Processor, error) {
	if dev == nil {
		return nil, ErrInvalidDevice
	}
	if err := conf.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	p := &Processor{
		dev:     dev,
		conf:    conf,
		handler: handler,
		log:     conf.Logger.With().Str("device", conf.DeviceName).Logger(),
	}
	s := conf.Settings
	p.settings.Store(&s)
	return p, nil
}

// Settings returns the current dispatch gate.
func (p *Processor) Settings() Settings { return *p.settings.Load() }

// SetSettings replaces the dispatch gate. It takes effect from the next
// poll iteration.
func (p *Processor) SetSettings(s Settings) { p.settings.Store(&s) }

func (p *Processor) SetEnabled(v bool) {
	p.update(func(s *Settings) { s.Enabled = v })
}

func (p *Processor) SetSystemControl(v bool) {
	p.update(func(s *Settings) { s.SystemControl = v })
}

func (p *Processor) update(fn func(*Settings)) {
	for {
		old := p.settings.Load()
		s := *old
		fn(&s)
		if p.settings.CompareAndSwap(old, &s) {
			return
		}
	}
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() cecstat.Stats { return p.stats.Snapshot() }

// Run polls the device until ctx is canceled and returns context.Canceled.
// I/O errors are logged and counted but never end the loop.
// Returns ErrInvalidDevice immediately if the descriptor is invalid.
// Run locks the calling goroutine to its OS thread and leaves it locked,
// so the thread is discarded when the goroutine exits.
// Run must not be called concurrently on the same Processor.
func (p *Processor) Run(ctx context.Context) error {
	if fd := p.dev.FD(); fd < 0 {
		p.log.Error().Int("fd", fd).Msg("invalid cec descriptor")
		return ErrInvalidDevice
	}
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("processor is already running")
	}
	defer p.running.Store(false)

	runtime.LockOSThread()
	if err := setupThread(p.conf.ThreadName, p.conf.ThreadPriority); err != nil {
		p.log.Warn().Err(err).
			Str("thread", p.conf.ThreadName).
			Int("priority", p.conf.ThreadPriority).
			Msg("configuring poll thread")
	}

	var (
		msg Msg
		ev  KernelEvent
	)
	for ctx.Err() == nil {
		s := p.settings.Load()

		ready, err := p.dev.Wait(p.conf.PollTimeout)
		if err != nil {
			p.stats.Inc(cecstat.PollErrors)
			if p.allowLog("poll") {
				p.log.Error().Err(err).Msg("cec poll failed")
			}
			p.backoff(ctx)
			continue
		}
		if ready == 0 {
			continue
		}
		if ready&ReadyHangup != 0 {
			p.stats.Inc(cecstat.PollErrors)
			if p.allowLog("hangup") {
				p.log.Error().Uint8("revents", uint8(ready)).Msg("cec device hangup")
			}
			p.backoff(ctx)
			continue
		}

		if ready&ReadyMessage != 0 {
			p.receiveMessage(&msg, s.Active())
		}
		if ready&ReadyEvent != 0 {
			p.dequeueEvent(&ev, s.Active())
		}
	}
	return context.Canceled
}

func (p *Processor) receiveMessage(msg *Msg, active bool) {
	*msg = Msg{}
	if err := p.dev.Receive(msg); err != nil {
		p.stats.Inc(cecstat.ReceiveErrors)
		if p.allowLog("receive") {
			p.log.Error().Err(err).Msg("hdmi cec read error")
		}
		return
	}
	p.stats.Inc(cecstat.Received)
	if !active {
		p.stats.Inc(cecstat.Gated)
		return
	}

	m, err := TranslateMessage(msg)
	if err != nil {
		if errors.Is(err, ErrMessageTooLong) {
			p.stats.Inc(cecstat.Oversize)
		} else {
			p.stats.Inc(cecstat.Malformed)
		}
		if p.allowLog("translate") {
			p.log.Error().Err(err).Uint32("len", msg.Len).Msg("dropping cec frame")
		}
		return
	}

	if e := p.log.Debug(); e.Enabled() {
		e.Hex("frame", msg.Msg[:1+m.Length]).
			Stringer("initiator", m.Initiator).
			Stringer("destination", m.Destination).
			Msg("received cec frame")
	}

	p.deliver(Event{
		Type:    EventCECMessage,
		Device:  p.conf.DeviceName,
		Message: m,
	})
}

func (p *Processor) dequeueEvent(ev *KernelEvent, active bool) {
	*ev = KernelEvent{}
	if err := p.dev.DequeueEvent(ev); err != nil {
		p.stats.Inc(cecstat.EventErrors)
		if p.allowLog("dqevent") {
			p.log.Error().Err(err).Msg("cec event get error")
		}
		return
	}

	if ev.Flags&KernelEventFlagDroppedEvents != 0 {
		p.log.Warn().Str("event", KernelEventName(ev.Event)).
			Msg("kernel dropped events of this type")
	}
	if ev.Event == KernelEventLostMsgs {
		lost := ev.LostMsgs()
		p.stats.Add(cecstat.LostMessages, uint64(lost))
		if p.allowLog("lost") {
			p.log.Warn().Uint32("lost", lost).Msg("kernel receive queue overflowed")
		}
	}

	hp, ok := TranslateHotPlug(ev, p.conf.PortID)
	if !ok {
		p.stats.Inc(cecstat.IgnoredEvents)
		p.log.Debug().Str("event", KernelEventName(ev.Event)).Msg("ignoring cec event")
		return
	}
	if !active {
		p.stats.Inc(cecstat.Gated)
		return
	}

	p.stats.Inc(cecstat.HotPlug)
	p.log.Info().Bool("connected", hp.Connected).Int("port", hp.PortID).Msg("hot plug")
	p.deliver(Event{
		Type:    EventHotPlug,
		Device:  p.conf.DeviceName,
		HotPlug: hp,
	})
}

func (p *Processor) deliver(e Event) {
	if p.handler == nil {
		return
	}
	p.handler.HandleEvent(e)
	p.stats.Inc(cecstat.Delivered)
}

func (p *Processor) allowLog(category string) bool {
	return p.conf.LogLimiter.Allow(category)
}

// backoff sleeps one poll timeout so a persistently failing descriptor
// doesn't spin.
func (p *Processor) backoff(ctx context.Context) {
	t := time.NewTimer(p.conf.PollTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Worker is a Processor running in its own goroutine.
type Worker struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs p in a new goroutine until ctx is canceled or Stop is called.
func (p *Processor) Start(ctx context.Context) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = p.Run(ctx)
	}()
	return w
}

// Done is closed once the processor has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Err returns why the processor returned. Only valid after Done is closed.
func (w *Worker) Err() error { return w.err }

// Stop cancels the processor and waits for it to return.
// Returns nil on a clean shutdown.
func (w *Worker) Stop() error {
	w.cancel()
	<-w.done
	if errors.Is(w.err, context.Canceled) {
		return nil
	}
	return w.err
}
