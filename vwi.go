package mobi

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction selects which end of a variable-width integer carries the stop
// bit.
type Direction int

const (
	// Forward integers are read front to back; the last byte is flagged.
	Forward Direction = iota
	// Backward integers are read from the end of a record towards its start;
	// the first byte is flagged.
	Backward
)

const (
	vwiStop     = 0x80
	vwiMask     = 0x7f
	maxVWIBytes = 10
)

// EncodeVWI encodes v as a big-endian sequence of 7-bit groups using the
// minimum number of bytes.
func EncodeVWI(v uint64, dir Direction) []byte {
	out := make([]byte, vwiLen(v))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = byte(v & vwiMask)
		v >>= 7
	}
	if dir == Forward {
		out[len(out)-1] |= vwiStop
	} else {
		out[0] |= vwiStop
	}
	return out
}

// DecodeVWI decodes the integer at the start of b (Forward) or at the end of
// b (Backward) and returns it with the number of bytes it occupied.
func DecodeVWI(b []byte, dir Direction) (uint64, int, error) {
	n := 0
	switch dir {
	case Forward:
		for n < len(b) {
			n++
			if b[n-1]&vwiStop != 0 {
				break
			}
		}
		if n == 0 || b[n-1]&vwiStop == 0 {
			return 0, 0, fmt.Errorf("%w: missing stop bit", ErrInvalidVWI)
		}
		b = b[:n]
	case Backward:
		for n < len(b) {
			n++
			if b[len(b)-n]&vwiStop != 0 {
				break
			}
		}
		if n == 0 || b[len(b)-n]&vwiStop == 0 {
			return 0, 0, fmt.Errorf("%w: missing stop bit", ErrInvalidVWI)
		}
		b = b[len(b)-n:]
	default:
		return 0, 0, fmt.Errorf("%w: unknown direction %d", ErrInvalidVWI, dir)
	}
	if n > maxVWIBytes {
		return 0, 0, fmt.Errorf("%w: %d bytes overflows 64 bits", ErrInvalidVWI, n)
	}
	var v uint64
	for _, c := range b {
		v = v<<7 | uint64(c&vwiMask)
	}
	return v, n, nil
}

func vwiLen(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

func encint(v int) []byte {
	if v < 0 {
		panic("mobi: negative variable-width integer")
	}
	return EncodeVWI(uint64(v), Forward)
}

// encodeTrailingEntry frames raw as a record trailing entry: raw followed by
// a backward integer holding the entry size including itself.
func encodeTrailingEntry(raw []byte) []byte {
	lsize := 1
	var size []byte
	for {
		size = EncodeVWI(uint64(len(raw)+lsize), Backward)
		if len(size) == lsize {
			break
		}
		lsize++
	}
	out := make([]byte, 0, len(raw)+len(size))
	out = append(out, raw...)
	return append(out, size...)
}

// encodeTBS packs val shifted left by flagSize together with the OR of the
// flag keys. The flag payloads follow in a fixed order: 0b0010 as an
// integer, 0b0100 as a single raw byte, 0b0001 as an integer. 0b1000 has no
// payload.
func encodeTBS(val int, extra map[int]int, flagSize uint) []byte {
	head := val << flagSize
	for f := range extra {
		head |= f
	}
	out := encint(head)
	if v, ok := extra[0b0010]; ok {
		out = append(out, encint(v)...)
	}
	if v, ok := extra[0b0100]; ok {
		out = append(out, byte(v))
	}
	if v, ok := extra[0b0001]; ok {
		out = append(out, encint(v)...)
	}
	return out
}

// encodeNumberAsHex writes n as upper-case hex digits prefixed by their count.
// Index entry names use this form.
func encodeNumberAsHex(n int) []byte {
	s := strings.ToUpper(strconv.FormatInt(int64(n), 16))
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return append([]byte{byte(len(s))}, s...)
}
