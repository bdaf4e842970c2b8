package cec

import (
	"bytes"
	"encoding/binary"
)

/*---- Kernel structs ----*/

// Msg is struct cec_msg, defined in linux/cec.h.
// See https://elixir.bootlin.com/linux/v6.6/source/include/uapi/linux/cec.h
type Msg struct {
	TxTS     uint64
	RxTS     uint64
	Len      uint32
	Timeout  uint32
	Sequence uint32
	Flags    uint32
	Msg      [MaxMsgSize]byte
	Reply    uint8
	RxStatus uint8
	TxStatus uint8

	TxArbLostCnt  uint8
	TxNackCnt     uint8
	TxLowDriveCnt uint8
	TxErrorCnt    uint8
}

// KernelEvent is struct cec_event, defined in linux/cec.h.
// Payload holds the union of cec_event_state_change, cec_event_lost_msgs
// and the raw __u32[16] view.
type KernelEvent struct {
	TS      uint64
	Event   uint32
	Flags   uint32
	Payload [64]byte
}

// StateChange decodes the payload of a KernelEventStateChange event.
func (e *KernelEvent) StateChange() (physAddr, logAddrMask uint16, haveConnInfo bool) {
	return binary.NativeEndian.Uint16(e.Payload[0:]),
		binary.NativeEndian.Uint16(e.Payload[2:]),
		binary.NativeEndian.Uint16(e.Payload[4:]) != 0
}

// LostMsgs decodes the payload of a KernelEventLostMsgs event.
func (e *KernelEvent) LostMsgs() uint32 {
	return binary.NativeEndian.Uint32(e.Payload[0:])
}

// Caps is struct cec_caps, defined in linux/cec.h.
type Caps struct {
	Driver            [32]byte
	Name              [32]byte
	AvailableLogAddrs uint32
	Capabilities      uint32
	Version           uint32
}

func (c *Caps) DriverName() string  { return cString(c.Driver[:]) }
func (c *Caps) AdapterName() string { return cString(c.Name[:]) }

// KernelVersion returns the major, minor and patch components of Version.
func (c *Caps) KernelVersion() (major, minor, patch uint32) {
	return c.Version >> 16, (c.Version >> 8) & 0xff, c.Version & 0xff
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// MaxMsgSize is CEC_MAX_MSG_SIZE: one header byte plus up to 15 bytes
// of opcode and operands.
const MaxMsgSize = 16

// Kernel event codes (CEC_EVENT_*).
const (
	KernelEventStateChange = 1
	KernelEventLostMsgs    = 2
	KernelEventPinCECLow   = 3
	KernelEventPinCECHigh  = 4
	KernelEventPinHPDLow   = 5
	KernelEventPinHPDHigh  = 6
	KernelEventPin5VLow    = 7
	KernelEventPin5VHigh   = 8
)

// Kernel event flags (CEC_EVENT_FL_*).
const (
	KernelEventFlagInitialState  = 1 << 0
	KernelEventFlagDroppedEvents = 1 << 1
)

// Adapter capabilities (CEC_CAP_*).
const (
	CapPhysAddr    = 1 << 0
	CapLogAddrs    = 1 << 1
	CapTransmit    = 1 << 2
	CapPassthrough = 1 << 3
	CapRC          = 1 << 4
	CapMonitorAll  = 1 << 5
	CapNeedsHPD    = 1 << 6
	CapMonitorPin  = 1 << 7
	CapConnInfo    = 1 << 8
	CapReplyVendor = 1 << 9
)

// Mode is the file handle mode set with CEC_S_MODE: an initiator mode
// or'ed with a follower mode.
type Mode uint32

const (
	ModeNoInitiator   Mode = 0x0
	ModeInitiator     Mode = 0x1
	ModeExclInitiator Mode = 0x2
	ModeInitiatorMask Mode = 0x0f

	ModeNoFollower           Mode = 0x00
	ModeFollower             Mode = 0x10
	ModeExclFollower         Mode = 0x20
	ModeExclFollowerPassthru Mode = 0x30
	ModeMonitorPin           Mode = 0xd0
	ModeMonitor              Mode = 0xe0
	ModeMonitorAll           Mode = 0xf0
	ModeFollowerMask         Mode = 0xf0
)

func (m Mode) Initiator() Mode { return m & ModeInitiatorMask }
func (m Mode) Follower() Mode  { return m & ModeFollowerMask }

func (m Mode) String() string {
	var i string
	switch m.Initiator() {
	case ModeNoInitiator:
		i = "no-initiator"
	case ModeInitiator:
		i = "initiator"
	case ModeExclInitiator:
		i = "excl-initiator"
	default:
		i = "initiator?"
	}
	var f string
	switch m.Follower() {
	case ModeNoFollower:
		f = "no-follower"
	case ModeFollower:
		f = "follower"
	case ModeExclFollower:
		f = "excl-follower"
	case ModeExclFollowerPassthru:
		f = "excl-follower-passthru"
	case ModeMonitorPin:
		f = "monitor-pin"
	case ModeMonitor:
		f = "monitor"
	case ModeMonitorAll:
		f = "monitor-all"
	default:
		f = "follower?"
	}
	return i + "," + f
}

// ParseFollowerMode maps a config name to a follower Mode.
func ParseFollowerMode(s string) (Mode, bool) {
	switch s {
	case "", "follower":
		return ModeFollower, true
	case "none":
		return ModeNoFollower, true
	case "excl-follower":
		return ModeExclFollower, true
	case "excl-follower-passthru":
		return ModeExclFollowerPassthru, true
	case "monitor":
		return ModeMonitor, true
	case "monitor-all":
		return ModeMonitorAll, true
	case "monitor-pin":
		return ModeMonitorPin, true
	}
	return 0, false
}

// ReceiveMode returns the CEC_S_MODE value for listening with follower.
// The kernel requires an initiator mode for the follower modes and
// forbids one for the monitor modes.
func ReceiveMode(follower Mode) Mode {
	switch f := follower.Follower(); f {
	case ModeFollower, ModeExclFollower, ModeExclFollowerPassthru:
		return ModeInitiator | f
	default:
		return ModeNoInitiator | f
	}
}

/*---- ioctl request encoding ----*/

// Generic _IOC layout used by x86, arm and arm64 (and most others):
// dir:2 | size:14 | type:8 | nr:8.
const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

const (
	sizeofMsg         = 56
	sizeofKernelEvent = 80
	sizeofCaps        = 76
	sizeofMode        = 4
)

var (
	reqAdapGetCaps = iowr('a', 0, sizeofCaps)
	reqGetMode     = ior('a', 8, sizeofMode)
	reqSetMode     = iow('a', 9, sizeofMode)
	reqReceive     = iowr('a', 6, sizeofMsg)
	reqDQEvent     = iowr('a', 7, sizeofKernelEvent)
)
