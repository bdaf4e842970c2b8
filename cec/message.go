package cec

import (
	"errors"
	"fmt"
)

var (
	ErrMessageEmpty   = errors.New("cec frame has no header byte")
	ErrMessageTooLong = errors.New("cec message body exceeds 15 bytes")
)

// MaxBodyLength is the largest opcode+operand length accepted by
// TranslateMessage.
const MaxBodyLength = MaxMsgSize - 1

// LogicalAddress is a 4-bit CEC logical address.
type LogicalAddress uint8

const (
	AddrTV              LogicalAddress = 0
	AddrRecording1      LogicalAddress = 1
	AddrRecording2      LogicalAddress = 2
	AddrTuner1          LogicalAddress = 3
	AddrPlayback1       LogicalAddress = 4
	AddrAudioSystem     LogicalAddress = 5
	AddrTuner2          LogicalAddress = 6
	AddrTuner3          LogicalAddress = 7
	AddrPlayback2       LogicalAddress = 8
	AddrRecording3      LogicalAddress = 9
	AddrTuner4          LogicalAddress = 10
	AddrPlayback3       LogicalAddress = 11
	AddrBackup1         LogicalAddress = 12
	AddrBackup2         LogicalAddress = 13
	AddrSpecific        LogicalAddress = 14
	AddrUnregistered    LogicalAddress = 15 // as initiator
	AddrBroadcast       LogicalAddress = 15 // as destination
	logicalAddressCount                = 16
)

var logicalAddressNames = [logicalAddressCount]string{
	"tv",
	"recording-1",
	"recording-2",
	"tuner-1",
	"playback-1",
	"audio-system",
	"tuner-2",
	"tuner-3",
	"playback-2",
	"recording-3",
	"tuner-4",
	"playback-3",
	"backup-1",
	"backup-2",
	"specific",
	"broadcast",
}

func (a LogicalAddress) String() string {
	if int(a) < len(logicalAddressNames) {
		return logicalAddressNames[a]
	}
	return fmt.Sprintf("invalid(%d)", uint8(a))
}

// Message is a received CEC frame in host form.
type Message struct {
	Initiator   LogicalAddress
	Destination LogicalAddress

	// Length is the number of bytes in Body (opcode + operands).
	// Zero for a polling message.
	Length int
	Body   []byte
}

// Opcode returns the first body byte, if any.
func (m Message) Opcode() (byte, bool) {
	if m.Length == 0 {
		return 0, false
	}
	return m.Body[0], true
}

func (m Message) String() string {
	if m.Length == 0 {
		return fmt.Sprintf("%s->%s poll", m.Initiator, m.Destination)
	}
	return fmt.Sprintf("%s->%s % x", m.Initiator, m.Destination, m.Body)
}

// TranslateMessage converts a received kernel frame into a Message.
// The header byte carries the initiator in its high nibble and the
// destination in its low nibble; the remaining Len-1 bytes are copied
// into Body.
func TranslateMessage(m *Msg) (Message, error) {
	if m.Len == 0 {
		return Message{}, ErrMessageEmpty
	}
	// Compare as uint32: Len comes from the device and may be anything.
	if m.Len-1 > MaxBodyLength {
		return Message{}, fmt.Errorf("%w: %d", ErrMessageTooLong, m.Len-1)
	}
	length := int(m.Len) - 1
	body := make([]byte, length)
	copy(body, m.Msg[1:1+length])
	return Message{
		Initiator:   LogicalAddress(m.Msg[0] >> 4),
		Destination: LogicalAddress(m.Msg[0] & 0x0f),
		Length:      length,
		Body:        body,
	}, nil
}
