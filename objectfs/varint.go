package objectfs

import "github.com/intellect4all/cowtree/common"

// Variable-length integer encoding (the same scheme Protocol Buffers
// uses) for directory-entry name lengths: most names are well under 128
// bytes, so this costs one byte far more often than the fixed two-byte
// field a slotted layout would otherwise need.
//   Values 0-127:         1 byte  (7 bits + continuation bit)
//   Values 128-16383:     2 bytes (14 bits + continuation bits)
//   Values 16384-2097151: 3 bytes (21 bits + continuation bits)

// maxVarintBytes is the longest encoding of a uint64: ceil(64/7).
const maxVarintBytes = 10

// putUvarint encodes x into buf and returns the number of bytes
// written. buf must have at least varintSize(x) bytes available.
func putUvarint(buf []byte, x uint64) int {
	n := 0
	for x >= 0x80 {
		buf[n] = byte(x&0x7f) | 0x80
		x >>= 7
		n++
	}
	buf[n] = byte(x)
	return n + 1
}

// uvarint decodes a uint64 from the start of buf, returning the value
// and the number of bytes consumed. A non-positive count signals a
// truncated or overflowing encoding.
func uvarint(buf []byte) (uint64, int) {
	var value uint64
	for n, b := range buf {
		if n >= maxVarintBytes {
			return 0, -(n + 1)
		}
		if b < 0x80 {
			if n == maxVarintBytes-1 && b > 1 {
				return 0, -(n + 1)
			}
			return value | uint64(b)<<(7*n), n + 1
		}
		value |= uint64(b&0x7f) << (7 * n)
	}
	return 0, 0
}

// varintSize returns the number of bytes needed to encode x.
func varintSize(x uint64) int {
	n := 1
	for x >= 0x80 {
		n++
		x >>= 7
	}
	return n
}

func decodeUvarintOrErr(buf []byte) (uint64, int, error) {
	v, n := uvarint(buf)
	if n <= 0 {
		return 0, 0, common.ErrCorruptEntry
	}
	return v, n, nil
}
