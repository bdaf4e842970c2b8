package cec

import "fmt"

type EventType uint8

const (
	EventCECMessage EventType = 1
	EventHotPlug    EventType = 2
)

func (t EventType) String() string {
	switch t {
	case EventCECMessage:
		return "cec_message"
	case EventHotPlug:
		return "hot_plug"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// DefaultPortID is the HDMI port reported with hot plug events.
const DefaultPortID = 1

// HotPlug reports a change of the HPD line on an HDMI port.
type HotPlug struct {
	Connected bool
	PortID    int
}

// Event is delivered to a Handler. Message is set for EventCECMessage,
// HotPlug for EventHotPlug.
type Event struct {
	Type EventType
	// Device names the adapter the event was read from.
	Device  string
	Message Message
	HotPlug HotPlug
}

func (e Event) String() string {
	switch e.Type {
	case EventCECMessage:
		return fmt.Sprintf("%s: message %s", e.Device, e.Message)
	case EventHotPlug:
		state := "disconnected"
		if e.HotPlug.Connected {
			state = "connected"
		}
		return fmt.Sprintf("%s: port %d %s", e.Device, e.HotPlug.PortID, state)
	}
	return fmt.Sprintf("%s: %s", e.Device, e.Type)
}

// Handler receives translated events. HandleEvent is called synchronously
// from the processor goroutine; a slow handler delays polling.
// e.Message.Body is freshly allocated per event and may be retained.
type Handler interface {
	HandleEvent(e Event)
}

type HandlerFunc func(e Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }

// TranslateHotPlug maps HPD pin kernel events to a HotPlug.
// Any other kernel event reports false.
func TranslateHotPlug(e *KernelEvent, portID int) (HotPlug, bool) {
	switch e.Event {
	case KernelEventPinHPDHigh:
		return HotPlug{Connected: true, PortID: portID}, true
	case KernelEventPinHPDLow:
		return HotPlug{Connected: false, PortID: portID}, true
	}
	return HotPlug{}, false
}

// KernelEventName returns the CEC_EVENT_* name of code.
func KernelEventName(code uint32) string {
	switch code {
	case KernelEventStateChange:
		return "state_change"
	case KernelEventLostMsgs:
		return "lost_msgs"
	case KernelEventPinCECLow:
		return "pin_cec_low"
	case KernelEventPinCECHigh:
		return "pin_cec_high"
	case KernelEventPinHPDLow:
		return "pin_hpd_low"
	case KernelEventPinHPDHigh:
		return "pin_hpd_high"
	case KernelEventPin5VLow:
		return "pin_5v_low"
	case KernelEventPin5VHigh:
		return "pin_5v_high"
	}
	return fmt.Sprintf("unknown(%d)", code)
}
