package binario

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)

	require.NoError(t, w.WriteUint8(7))
	require.NoError(t, w.WriteUint16(300))
	require.NoError(t, w.WriteUint32(70000))
	require.NoError(t, w.WriteInt32(-5))
	require.NoError(t, w.WriteUint64(1 << 40))
	require.NoError(t, w.WriteFloat32(1.5))
	require.NoError(t, w.WriteFloat64(-2.25))
	require.NoError(t, w.WriteBool(true))
	require.NoError(t, w.WriteBytes([]byte("hello")))

	r := NewReader(&buf, binary.LittleEndian)

	var u8 uint8
	var u16 uint16
	var u32 uint32
	var i32 int32
	var u64 uint64
	var f32 float32
	var f64 float64
	var b bool

	require.NoError(t, r.ReadUint8To(&u8))
	require.NoError(t, r.ReadUint16To(&u16))
	require.NoError(t, r.ReadUint32To(&u32))
	require.NoError(t, r.ReadInt32To(&i32))
	require.NoError(t, r.ReadUint64To(&u64))
	require.NoError(t, r.ReadFloat32To(&f32))
	require.NoError(t, r.ReadFloat64To(&f64))
	require.NoError(t, r.ReadBoolTo(&b))
	bytesOut, err := r.ReadBytes()
	require.NoError(t, err)

	assert.Equal(t, uint8(7), u8)
	assert.Equal(t, uint16(300), u16)
	assert.Equal(t, uint32(70000), u32)
	assert.Equal(t, int32(-5), i32)
	assert.Equal(t, uint64(1<<40), u64)
	assert.Equal(t, float32(1.5), f32)
	assert.Equal(t, -2.25, f64)
	assert.True(t, b)
	assert.Equal(t, []byte("hello"), bytesOut)
}

func TestReadBytesTruncatedErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	require.NoError(t, w.WriteBytes([]byte("hello")))

	truncated := bytes.NewReader(buf.Bytes()[:3])
	r := NewReader(truncated, binary.LittleEndian)

	_, err := r.ReadBytes()
	assert.Error(t, err)
}

func TestWriteBoolFalse(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, binary.LittleEndian)
	require.NoError(t, w.WriteBool(false))

	r := NewReader(&buf, binary.LittleEndian)
	var b bool
	require.NoError(t, r.ReadBoolTo(&b))
	assert.False(t, b)
}
