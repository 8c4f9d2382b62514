package mobi

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// palmDOCDecompress is the reader side of PalmDOC, used to check output.
func palmDOCDecompress(t *testing.T, in []byte) []byte {
	t.Helper()
	var out []byte
	for i := 0; i < len(in); {
		c := in[i]
		i++
		switch {
		case c >= 1 && c <= 8:
			require.LessOrEqual(t, i+int(c), len(in), "run overflows input")
			out = append(out, in[i:i+int(c)]...)
			i += int(c)
		case c < 0x80:
			out = append(out, c)
		case c >= 0xc0:
			out = append(out, ' ', c^0x80)
		default:
			require.Less(t, i, len(in), "truncated back reference")
			code := int(c)<<8 | int(in[i])
			i++
			dist, n := (code>>3)&0x7ff, code&7+3
			require.Positive(t, dist)
			require.LessOrEqual(t, dist, len(out))
			for range n {
				out = append(out, out[len(out)-dist])
			}
		}
	}
	return out
}

func TestPalmDOC_RoundTrip(t *testing.T) {
	binary := make([]byte, 512)
	for i := range binary {
		binary[i] = byte(i * 7)
	}
	cases := map[string][]byte{
		"empty":     {},
		"short":     []byte("abc"),
		"prose":     []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 90)),
		"markup":    []byte(strings.Repeat(`<p class="x">Hello <a filepos=0000001234>world</a></p>`, 70)),
		"utf8":      []byte(strings.Repeat("héllo wörld, ünïcode ✓ ", 150)),
		"binary":    binary,
		"spaces":    []byte("  a b  c   " + strings.Repeat(" ", 40) + "end"),
		"highbytes": bytes.Repeat([]byte{0x80, 0x81, 0xff, 0x01, 0x08, 'a'}, 30),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := PalmDOCCompressor{}.Compress(in)
			require.NoError(t, err)
			require.Equal(t, in, palmDOCDecompress(t, out))
		})
	}
}

func TestPalmDOC_Shrinks(t *testing.T) {
	in := []byte(strings.Repeat("repetitive markup block ", 200))[:RecordSize]
	out := palmDOCCompress(in)
	require.Less(t, len(out), len(in)/2)
}

func TestPalmDOC_SpaceFolding(t *testing.T) {
	require.Equal(t, []byte{'x', 'a' ^ 0x80, 'y'}, palmDOCCompress([]byte("x ay")))
	// Space before a byte outside 0x40-0x7f stays literal.
	require.Equal(t, []byte{'x', ' ', '1', 'y'}, palmDOCCompress([]byte("x 1y")))
}

func TestPalmDOC_EscapedRuns(t *testing.T) {
	in := []byte{0xe2, 0x9c, 0x93, 'a'}
	require.Equal(t, []byte{3, 0xe2, 0x9c, 0x93, 'a'}, palmDOCCompress(in))

	long := bytes.Repeat([]byte{0xaa}, 10)
	out := palmDOCCompress(long)
	require.Equal(t, byte(8), out[0])
	require.Equal(t, long, palmDOCDecompress(t, out))
}

func TestCompressorFor(t *testing.T) {
	c, err := compressorFor(CompNone)
	require.NoError(t, err)
	in := []byte("payload")
	out, err := c.Compress(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
	out[0] = 'P'
	require.Equal(t, byte('p'), in[0], "identity compressor must copy")

	c, err = compressorFor(CompPalmDOC)
	require.NoError(t, err)
	require.IsType(t, PalmDOCCompressor{}, c)

	_, err = compressorFor(CompHuffCDIC)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompNone, "none": CompNone, "palmdoc": CompPalmDOC} {
		got, err := ParseCompression(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseCompression("huffcdic")
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestCompressorFunc_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := splitTextRecords([]byte("some text"), CompressorFunc(func([]byte) ([]byte, error) { return nil, boom }))
	require.ErrorIs(t, err, boom)
}
