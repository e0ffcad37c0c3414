// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVarIntRoundTrip exercises all four compact size widths.
func TestVarIntRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   uint64
		encoded int
	}{
		{0, 1},
		{1, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{0xffffffffffffffff, 9},
	}
	for _, test := range tests {
		var w binaryWriter
		w.putVarInt(test.value)
		require.Len(t, w.bytes(), test.encoded, "value %d", test.value)

		r := newBinaryReader(w.bytes())
		decoded, err := r.varInt()
		require.NoError(t, err)
		require.Equal(t, test.value, decoded)
		require.Zero(t, r.remaining())
	}
}

// TestIntegerEncoding verifies the little-endian layout of the fixed width
// integers, which is part of the wire format.
func TestIntegerEncoding(t *testing.T) {
	t.Parallel()

	var w binaryWriter
	w.putUint32(0x04030201)
	w.putInt32(-1)
	w.putUint8(0x7f)
	require.Equal(t, []byte{
		0x01, 0x02, 0x03, 0x04,
		0xff, 0xff, 0xff, 0xff,
		0x7f,
	}, w.bytes())

	r := newBinaryReader(w.bytes())
	u, err := r.uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x04030201), u)
	i, err := r.int32()
	require.NoError(t, err)
	require.Equal(t, int32(-1), i)
	b, err := r.uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x7f), b)
}

// TestFrameRoundTrip verifies the standard value envelope and that a length
// mismatch is reported as corruption.
func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	framed := frame(payload)
	require.Equal(t, append([]byte{4}, payload...), framed)

	got, err := unframe(framed)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// Declared length longer than the remaining bytes.
	_, err = unframe([]byte{5, 0xde, 0xad, 0xbe, 0xef})
	requireWalletError(t, err, ErrWalletCorrupt)

	// Declared length shorter than the remaining bytes.
	_, err = unframe([]byte{3, 0xde, 0xad, 0xbe, 0xef})
	requireWalletError(t, err, ErrWalletCorrupt)

	// Truncated buffer.
	_, err = unframe(nil)
	requireWalletError(t, err, ErrWalletCorrupt)
}

// TestReaderShortBuffer verifies every reader reports corruption instead of
// panicking on truncated input.
func TestReaderShortBuffer(t *testing.T) {
	t.Parallel()

	r := newBinaryReader([]byte{0x01, 0x02})
	_, err := r.uint32()
	requireWalletError(t, err, ErrWalletCorrupt)

	r = newBinaryReader([]byte{0xfd, 0x01})
	_, err = r.varInt()
	requireWalletError(t, err, ErrWalletCorrupt)

	r = newBinaryReader([]byte{0x01})
	_, err = r.bytes(2)
	requireWalletError(t, err, ErrWalletCorrupt)
}
