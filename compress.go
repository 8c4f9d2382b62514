package mobi

import (
	"bytes"
	"fmt"
)

// Compressor transforms the core payload of one text record. Implementations
// must be deterministic and must not retain data.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// CompressorFunc adapts a function to the Compressor interface.
type CompressorFunc func(data []byte) ([]byte, error)

func (f CompressorFunc) Compress(data []byte) ([]byte, error) { return f(data) }

type noopCompressor struct{}

func (noopCompressor) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// PalmDOCCompressor implements the PalmDOC LZ77 variant: literals, runs of up
// to eight high bytes, space-folded ASCII and 2-byte back references of
// length 3-10 within a 2047-byte window.
type PalmDOCCompressor struct{}

func (PalmDOCCompressor) Compress(data []byte) ([]byte, error) {
	return palmDOCCompress(data), nil
}

// compressorFor returns the built-in compressor for comp.
func compressorFor(comp Compression) (Compressor, error) {
	switch comp {
	case CompNone:
		return noopCompressor{}, nil
	case CompPalmDOC:
		return PalmDOCCompressor{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, compressionName(comp))
	}
}

func compressionName(comp Compression) string {
	switch comp {
	case CompNone:
		return "none"
	case CompPalmDOC:
		return "palmdoc"
	case CompHuffCDIC:
		return "huffcdic"
	default:
		return "unknown"
	}
}

// ParseCompression maps a user-facing name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompNone, nil
	case "palmdoc":
		return CompPalmDOC, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCompression, name)
	}
}

const (
	palmDOCWindow    = 2047
	palmDOCMaxMatch  = 10
	palmDOCMinMatch  = 3
	palmDOCMatchGate = 10
)

func palmDOCCompress(data []byte) []byte {
	n := len(data)
	out := make([]byte, 0, n)
	i := 0
	for i < n {
		if i > palmDOCMatchGate && n-i > palmDOCMatchGate {
			if length, dist := palmDOCMatch(data, i); length > 0 {
				code := 0x8000 | (dist<<3)&0x3ff8 | (length - palmDOCMinMatch)
				out = append(out, byte(code>>8), byte(code))
				i += length
				continue
			}
		}

		ch := data[i]
		i++
		if ch == ' ' && i+1 < n {
			if next := data[i]; next >= 0x40 && next < 0x80 {
				out = append(out, next^0x80)
				i++
				continue
			}
		}
		if isPalmDOCLiteral(ch) {
			out = append(out, ch)
			continue
		}

		// Run of bytes that need escaping, at most 8.
		end := i
		for end < n && end-i+1 < 8 && !isPalmDOCLiteral(data[end]) {
			end++
		}
		out = append(out, byte(end-i+1), ch)
		out = append(out, data[i:end]...)
		i = end
	}
	return out
}

// palmDOCMatch finds the longest earlier copy of data[i:i+k], k in 10..3,
// whose distance fits the window.
func palmDOCMatch(data []byte, i int) (length, dist int) {
	lo := max(i-palmDOCWindow, 0)
	for k := palmDOCMaxMatch; k >= palmDOCMinMatch; k-- {
		if at := bytes.LastIndex(data[lo:i], data[i:i+k]); at >= 0 {
			return k, i - (lo + at)
		}
	}
	return 0, 0
}

func isPalmDOCLiteral(c byte) bool {
	return c == 0 || (c > 8 && c < 0x80)
}
