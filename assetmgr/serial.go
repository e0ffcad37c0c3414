// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package assetmgr

import (
	"encoding/binary"
)

// The record codec frames every value written to the wallet store as
// var_int(len) || payload and tags the records inside the payload with single
// byte markers.  The var_int is the Bitcoin compact size encoding and all
// multi-byte integers are little-endian.  These choices are part of the wire
// format and must never change.

// binaryWriter accumulates serialized records.  The zero value is ready for
// use.
type binaryWriter struct {
	buf []byte
}

// putUint8 appends a single byte.
func (w *binaryWriter) putUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// putUint32 appends a little-endian unsigned 32-bit integer.
func (w *binaryWriter) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// putInt32 appends a little-endian signed 32-bit integer.
func (w *binaryWriter) putInt32(v int32) {
	w.putUint32(uint32(v))
}

// putVarInt appends a Bitcoin compact size integer (1, 3, 5 or 9 bytes).
func (w *binaryWriter) putVarInt(v uint64) {
	switch {
	case v < 0xfd:
		w.buf = append(w.buf, byte(v))
	case v <= 0xffff:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.buf = append(w.buf, 0xfd)
		w.buf = append(w.buf, b[:]...)
	case v <= 0xffffffff:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		w.buf = append(w.buf, 0xfe)
		w.buf = append(w.buf, b[:]...)
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		w.buf = append(w.buf, 0xff)
		w.buf = append(w.buf, b[:]...)
	}
}

// putBytes appends raw bytes with no framing.
func (w *binaryWriter) putBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// bytes returns the accumulated buffer.
func (w *binaryWriter) bytes() []byte {
	return w.buf
}

// frame wraps a payload in the standard var_int(len) || payload envelope
// every stored value carries.
func frame(payload []byte) []byte {
	var w binaryWriter
	w.putVarInt(uint64(len(payload)))
	w.putBytes(payload)
	return w.bytes()
}

// unframe validates and strips the standard value envelope.  The declared
// length must cover the remainder of the buffer exactly; anything else is
// corruption.
func unframe(value []byte) ([]byte, error) {
	r := newBinaryReader(value)
	n, err := r.varInt()
	if err != nil {
		return nil, err
	}
	if n != uint64(r.remaining()) {
		str := "on disk data length mismatch"
		return nil, walletError(ErrWalletCorrupt, str, nil)
	}
	return r.bytes(int(n))
}

// binaryReader consumes records written by binaryWriter.  All read methods
// return ErrWalletCorrupt on a short buffer.
type binaryReader struct {
	data []byte
	off  int
}

func newBinaryReader(data []byte) *binaryReader {
	return &binaryReader{data: data}
}

// remaining returns the number of unread bytes.
func (r *binaryReader) remaining() int {
	return len(r.data) - r.off
}

func (r *binaryReader) short() error {
	str := "unexpected end of serialized record"
	return walletError(ErrWalletCorrupt, str, nil)
}

// uint8 reads a single byte.
func (r *binaryReader) uint8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, r.short()
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

// uint32 reads a little-endian unsigned 32-bit integer.
func (r *binaryReader) uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, r.short()
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// int32 reads a little-endian signed 32-bit integer.
func (r *binaryReader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

// varInt reads a Bitcoin compact size integer.
func (r *binaryReader) varInt() (uint64, error) {
	discriminant, err := r.uint8()
	if err != nil {
		return 0, err
	}
	switch discriminant {
	case 0xfd:
		if r.remaining() < 2 {
			return 0, r.short()
		}
		v := binary.LittleEndian.Uint16(r.data[r.off:])
		r.off += 2
		return uint64(v), nil
	case 0xfe:
		v, err := r.uint32()
		return uint64(v), err
	case 0xff:
		if r.remaining() < 8 {
			return 0, r.short()
		}
		v := binary.LittleEndian.Uint64(r.data[r.off:])
		r.off += 8
		return v, nil
	default:
		return uint64(discriminant), nil
	}
}

// bytes reads n raw bytes.  The returned slice aliases the reader's buffer;
// callers that retain it past the backing buffer's lifetime must copy.
func (r *binaryReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, r.short()
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}
