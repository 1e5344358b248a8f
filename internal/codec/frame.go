// Package codec implements the framing and attribute encoding for the
// Gizwits-derived protocol spoken by Jebao-style BLE wave pumps over a
// single GATT characteristic. It is pure and stateless: no I/O, no retries.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Command identifies a frame's command word.
type Command uint16

const (
	CmdGetPasscode    Command = 0x0006
	CmdPasscodeResp   Command = 0x0007
	CmdLogin          Command = 0x0008
	CmdLoginResp      Command = 0x0009
	CmdControl        Command = 0x0093
	CmdControlAck     Command = 0x0094
)

var magic = [4]byte{0x00, 0x00, 0x00, 0x03}

// Errors returned by Parse. These are structural only; the codec never
// inspects attribute semantics while framing.
var (
	ErrTooShort       = errors.New("codec: frame shorter than minimum length")
	ErrUnknownCommand = errors.New("codec: unrecognized command word")
	ErrBadLength      = errors.New("codec: length field does not match payload")
)

// Frame is a parsed inbound or outbound packet.
type Frame struct {
	Command Command
	Payload []byte
	// Raw is the complete frame as received, magic through the final byte.
	// Kept alongside Payload because control (0x0093) notifications locate
	// their embedded attribute update relative to the end of the frame,
	// not relative to the payload start.
	Raw []byte
}

// Build encodes a frame: 4-byte magic, 1-byte length (3 + len(payload)),
// 1 reserved byte, 2-byte big-endian command, then the payload.
//
// Values of length >= 253 are out of scope per the wire format's single
// length byte; Build does not guard against them since no caller in this
// system ever constructs a payload anywhere near that size.
func Build(cmd Command, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	out = append(out, magic[:]...)
	out = append(out, byte(3+len(payload)))
	out = append(out, 0x00)
	var cmdBuf [2]byte
	binary.BigEndian.PutUint16(cmdBuf[:], uint16(cmd))
	out = append(out, cmdBuf[:]...)
	out = append(out, payload...)
	return out
}

// Parse decodes an inbound frame. Frames shorter than 8 bytes are reported
// as ErrTooShort; callers drop these rather than treating them as fatal.
// A command word outside the known set is reported as ErrUnknownCommand.
func Parse(data []byte) (Frame, error) {
	if len(data) < 8 {
		return Frame{}, ErrTooShort
	}

	length := data[4]
	if int(length) != len(data)-5 {
		return Frame{}, fmt.Errorf("%w: declared %d, got %d", ErrBadLength, length, len(data)-5)
	}

	cmd := Command(binary.BigEndian.Uint16(data[6:8]))
	switch cmd {
	case CmdGetPasscode, CmdPasscodeResp, CmdLogin, CmdLoginResp, CmdControl, CmdControlAck:
	default:
		return Frame{}, fmt.Errorf("%w: %#04x", ErrUnknownCommand, uint16(cmd))
	}
	return Frame{Command: cmd, Payload: data[8:], Raw: data}, nil
}

// PasscodeFromResponse extracts the opaque passcode blob from a
// passcode_response frame payload. The blob is vendor-defined and never
// interpreted, only echoed back verbatim in the subsequent login frame.
func PasscodeFromResponse(payload []byte) []byte {
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}

// LoginStatus reports whether a login_response payload indicates success.
// A zero status byte means authenticated; anything else is failure. An
// empty payload is treated as failure.
func LoginStatus(payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	return payload[0] == 0x00
}

// ControlNotification describes the attribute update embedded in an
// inbound control (0x0093) frame.
type ControlNotification struct {
	Type   byte
	AttrHi byte
	AttrLo byte
	Value  byte
}

// ParseControlNotification extracts the embedded P0 from a control frame.
// It takes the full raw frame, not just the payload: the device is not
// consistent about how many reserved/serial bytes precede P0, so rather than
// anchoring on a fixed offset from the frame start, P0 is taken as the final
// 11 bytes of the frame — the device always trails the frame with a
// complete P0, regardless of what precedes it. A frame shorter than 19
// bytes (8-byte header + 11-byte P0) cannot carry one.
func ParseControlNotification(raw []byte) (ControlNotification, error) {
	if len(raw) < 19 {
		return ControlNotification{}, ErrTooShort
	}
	p0 := raw[len(raw)-11:]
	return ControlNotification{
		Type:   p0[7],
		AttrHi: p0[8],
		AttrLo: p0[9],
		Value:  p0[10],
	}, nil
}
