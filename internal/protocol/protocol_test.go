package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kshaa/racer/internal/ids"
)

func TestInputRoundTrip(t *testing.T) {
	in := Input{Buttons: InputAccelerate | InputSteerRight, LastConfirmedFrame: 41, LastConfirmedHash: 0xBEEF & 0xFFFF}

	raw, err := EncodeInput(in)
	require.NoError(t, err)

	got, err := DecodeInput(raw)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestInputEmptyBitfieldRoundTrip(t *testing.T) {
	in := Input{Buttons: 0, LastConfirmedFrame: NullFrame, LastConfirmedHash: 0}

	raw, err := EncodeInput(in)
	require.NoError(t, err)

	got, err := DecodeInput(raw)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.False(t, got.Accelerate())
	assert.False(t, got.Brake())
}

func TestEncodeInputRejectsReservedBits(t *testing.T) {
	in := Input{Buttons: 1 << 15}
	_, err := EncodeInput(in)
	assert.Error(t, err)
}

func TestDecodeInputMasksReservedBits(t *testing.T) {
	raw := []byte(`{"input":65535,"last_confirmed_frame":-1,"last_confirmed_hash":0}`)

	got, err := DecodeInput(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(InputAccelerate|InputReverse|InputBrake|InputSteerRight|InputSteerLeft), got.Buttons)
}

func TestNoSidebandIsNullFrame(t *testing.T) {
	f, h := NoSideband()
	assert.Equal(t, NullFrame, f)
	assert.Equal(t, uint16(0), h)
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, Checksum(data), Checksum(data))
}

func TestChecksumDiffersOnMutation(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 5}
	assert.NotEqual(t, Checksum(a), Checksum(b))
}

func TestChecksumEmptyIsZero(t *testing.T) {
	assert.Equal(t, uint16(0), Checksum(nil))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	addr := ids.NewPlayerId()
	raw, err := EncodeEnvelope(addr, []byte(`{"hello":"world"}`))
	require.NoError(t, err)

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, addr, env.Address)
	assert.Equal(t, `{"hello":"world"}`, env.Message)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cp := Checkpoint{Frame: 7, State: []byte{9, 9, 9}, Checksum: Checksum([]byte{9, 9, 9})}

	raw, err := EncodeCheckpoint(cp)
	require.NoError(t, err)

	got, err := DecodeCheckpoint(raw)
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}

func TestMessageRoundTripInput(t *testing.T) {
	in := Input{Buttons: InputBrake, LastConfirmedFrame: NullFrame}
	msg := Message{Kind: MessageKindInput, Frame: 3, Input: &in}

	raw, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageKindInput, got.Kind)
	require.NotNil(t, got.Input)
	assert.Equal(t, in, *got.Input)
	assert.Nil(t, got.Checkpoint)
}

func TestMessageRoundTripCheckpoint(t *testing.T) {
	cp := Checkpoint{Frame: 0, State: []byte{1}, Checksum: 1}
	msg := Message{Kind: MessageKindCheckpoint, Frame: 0, Checkpoint: &cp}

	raw, err := EncodeMessage(msg)
	require.NoError(t, err)

	got, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageKindCheckpoint, got.Kind)
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, cp, *got.Checkpoint)
	assert.Nil(t, got.Input)
}
