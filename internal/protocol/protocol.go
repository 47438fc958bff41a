// Package protocol implements the wire formats exchanged between Session
// Core, Transport and Relay Server: the JSON envelope that addresses
// messages to a recipient, the per-frame Input payload with its sideband
// desync channel, and the Fletcher-16 checksum used to validate savestates.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kshaa/racer/internal/ids"
)

// Frame is a signed, monotonically increasing tick counter. NullFrame
// denotes "no frame".
type Frame int32

const NullFrame Frame = -1

// Envelope is the textual JSON frame exchanged between a client and the
// relay: { "address": "<PlayerId-UUID>", "message": "<inner-JSON-string>" }.
// Address is the recipient on outbound envelopes and the sender on
// inbound ones.
type Envelope struct {
	Address ids.PlayerId `json:"address"`
	Message string       `json:"message"`
}

// EncodeEnvelope wraps an already-encoded inner payload for address.
func EncodeEnvelope(address ids.PlayerId, inner []byte) ([]byte, error) {
	env := Envelope{Address: address, Message: string(inner)}
	return json.Marshal(env)
}

// DecodeEnvelope parses a top-level envelope frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	return env, nil
}

// Input control-axis bits, per spec bit layout: 0 accelerate, 1 reverse,
// 2 brake, 3 steer-right, 4 steer-left. Bits 5-15 are reserved and must
// be zero.
const (
	InputAccelerate uint16 = 1 << 0
	InputReverse    uint16 = 1 << 1
	InputBrake      uint16 = 1 << 2
	InputSteerRight uint16 = 1 << 3
	InputSteerLeft  uint16 = 1 << 4

	inputReservedMask uint16 = ^uint16(0) << 5
)

// Input is the fixed-size packed struct sent once per player per frame.
// LastConfirmedFrame/LastConfirmedHash are the sideband desync channel;
// LastConfirmedFrame == NullFrame means "ignore hash sideband".
type Input struct {
	Buttons            uint16 `json:"input"`
	LastConfirmedFrame Frame  `json:"last_confirmed_frame"`
	LastConfirmedHash  uint16 `json:"last_confirmed_hash"`
}

// NoSideband is the sentinel attached to an Input when there is no
// validatable-but-unsent local checksum yet.
func NoSideband() (Frame, uint16) {
	return NullFrame, 0
}

func (in Input) Accelerate() bool { return in.Buttons&InputAccelerate != 0 }
func (in Input) Reverse() bool    { return in.Buttons&InputReverse != 0 }
func (in Input) Brake() bool      { return in.Buttons&InputBrake != 0 }
func (in Input) SteerRight() bool { return in.Buttons&InputSteerRight != 0 }
func (in Input) SteerLeft() bool  { return in.Buttons&InputSteerLeft != 0 }

// EncodeInput serializes an Input payload to its wire (inner) form.
func EncodeInput(in Input) ([]byte, error) {
	if in.Buttons&inputReservedMask != 0 {
		return nil, fmt.Errorf("protocol: reserved input bits set: %#04x", in.Buttons)
	}
	return json.Marshal(in)
}

// DecodeInput parses an inner Input payload. Reserved bits are masked off
// defensively rather than rejected, since a future peer on a newer wire
// revision may set them; Non-goals exclude cross-version compatibility,
// but a single stray bit should not fatally desync the match.
func DecodeInput(raw []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Input{}, fmt.Errorf("protocol: decode input: %w", err)
	}
	in.Buttons &^= inputReservedMask
	return in, nil
}

// Checksum is a 16-bit Fletcher-16 checksum over a savestate byte
// sequence, as specified for SaveState and the desync channel.
func Checksum(data []byte) uint16 {
	var sum1, sum2 uint16

	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}

	return sum2<<8 | sum1
}

// Checkpoint carries a full savestate for a frame. Not part of the
// per-frame Input sideband channel. Only the codec lives here: the
// connect-game match loop neither sends nor receives checkpoints.
type Checkpoint struct {
	Frame    Frame  `json:"frame"`
	State    []byte `json:"state"`
	Checksum uint16 `json:"checksum"`
}

func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func DecodeCheckpoint(raw []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("protocol: decode checkpoint: %w", err)
	}
	return cp, nil
}

// MessageKind distinguishes the two inner payload shapes a Message can
// carry. The connect-game match loop puts a bare encoded Input, not a
// Message, inside an Envelope's Message field.
type MessageKind string

const (
	MessageKindInput      MessageKind = "input"
	MessageKindCheckpoint MessageKind = "checkpoint"
)

// Message is the tagged union of inner payloads. Exactly one of Input or
// Checkpoint is populated, selected by Kind.
type Message struct {
	Kind       MessageKind `json:"kind"`
	Frame      Frame       `json:"frame"`
	Input      *Input      `json:"input,omitempty"`
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`
}

func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("protocol: decode message: %w", err)
	}
	return msg, nil
}
