package dexio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestULEB128(t *testing.T) {
	tests := []struct {
		value uint32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{16256, []byte{0x80, 0x7f}},
		{0xffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
	}
	for _, tt := range tests {
		w := NewWriter()
		n := w.WriteULEB128(tt.value)
		require.Equal(t, tt.bytes, w.Bytes())
		require.Equal(t, len(tt.bytes), n)
		require.Equal(t, n, ULEB128Size(tt.value))

		v, err := NewReader(tt.bytes).ReadULEB128()
		require.Nil(t, err)
		require.Equal(t, tt.value, v)
	}
}

func TestSLEB128(t *testing.T) {
	tests := []struct {
		value int32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7f}},
		{-128, []byte{0x80, 0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-2147483648, []byte{0x80, 0x80, 0x80, 0x80, 0x78}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteSLEB128(tt.value)
		require.Equal(t, tt.bytes, w.Bytes())

		v, err := NewReader(tt.bytes).ReadSLEB128()
		require.Nil(t, err)
		require.Equal(t, tt.value, v)
	}
}

func TestFixedWidth(t *testing.T) {
	w := NewWriter()
	w.WriteU16(0x1234)
	w.WriteU32(0xdeadbeef)
	require.Equal(t, []byte{0x34, 0x12, 0xef, 0xbe, 0xad, 0xde}, w.Bytes())

	r := NewReader(w.Bytes())
	u16, err := r.ReadU16()
	require.Nil(t, err)
	require.Equal(t, uint16(0x1234), u16)
	u32, err := r.ReadU32()
	require.Nil(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	_, err = r.ReadByte()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestTruncatedLEB(t *testing.T) {
	_, err := NewReader([]byte{0x80}).ReadULEB128()
	require.ErrorIs(t, err, ErrTruncated)
}
