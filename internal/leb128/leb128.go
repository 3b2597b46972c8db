// Package leb128 implements LEB128 integers over byte slices that may end
// mid-value.
//
// Decoders never consume a partial value: they report how many bytes were
// used, or zero when the slice ends before the terminating byte, so callers
// can keep the tail and retry once more input arrives.
package leb128

import (
	"errors"
)

// MaxLen64 is the longest encoding of a 64-bit value.
const MaxLen64 = 10

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// Uvarint decodes an unsigned value from the front of buf.
// n is the number of bytes consumed; n == 0 means buf ends before the value does.
func Uvarint(buf []byte) (v uint64, n int, err error) {
	var shift uint
	for i, b := range buf {
		if i == MaxLen64-1 && b > 1 {
			return 0, 0, ErrOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if i+1 >= MaxLen64 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, nil
}

// Varint decodes a signed (sign-extended) value from the front of buf.
// n is the number of bytes consumed; n == 0 means buf ends before the value does.
func Varint(buf []byte) (v int64, n int, err error) {
	var shift uint
	for i, b := range buf {
		// the tenth byte holds bit 63 and its sign extension only
		if i == MaxLen64-1 && b != 0x00 && b != 0x7f {
			return 0, 0, ErrOverflow
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			// Sign extend
			if shift < 64 && b&0x40 != 0 {
				v |= ^int64(0) << shift
			}
			return v, i + 1, nil
		}
		if i+1 >= MaxLen64 {
			return 0, 0, ErrOverflow
		}
	}
	return 0, 0, nil
}

// AppendUvarint appends the unsigned LEB128 encoding of v.
func AppendUvarint(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendVarint appends the signed LEB128 encoding of v.
func AppendVarint(dst []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// SizeUvarint returns the encoded length of v.
func SizeUvarint(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
