package mdocx

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the compression applied to a section payload.
type Codec uint16

const (
	CodecNone   Codec = 0x0
	CodecZIP    Codec = 0x1
	CodecZstd   Codec = 0x2
	CodecLZ4    Codec = 0x3
	CodecBrotli Codec = 0x4
)

// zipEntryName is the only entry of a ZIP section payload.
const zipEntryName = "payload.gob"

var codecNames = map[Codec]string{
	CodecNone:   "none",
	CodecZIP:    "zip",
	CodecZstd:   "zstd",
	CodecLZ4:    "lz4",
	CodecBrotli: "brotli",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", uint16(c))
}

// ParseCodec maps a codec name, as printed by String, to its Codec.
func ParseCodec(s string) (Codec, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range codecNames {
		if name == s {
			return c, nil
		}
	}
	if s == "br" {
		return CodecBrotli, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

type codec struct {
	pack   func(raw []byte) ([]byte, error)
	unpack func(packed []byte, size uint64) ([]byte, error)
}

var codecs = map[Codec]codec{
	CodecZIP:    {zipPack, zipUnpack},
	CodecZstd:   {zstdPack, zstdUnpack},
	CodecLZ4:    {lz4Pack, lz4Unpack},
	CodecBrotli: {brotliPack, brotliUnpack},
}

// Function variables for testing injection.
var (
	newZstdEncoder = func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) }
	newZstdDecoder = func() (*zstd.Decoder, error) { return zstd.NewReader(nil) }
)

// packSection compresses raw with c. Compressed payloads carry an 8-byte
// little-endian prefix holding len(raw).
func packSection(c Codec, raw []byte) (flags uint16, payload []byte, err error) {
	if c == CodecNone {
		return uint16(CodecNone), raw, nil
	}
	cd, ok := codecs[c]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
	packed, err := cd.pack(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%s compress: %w", c, err)
	}
	payload = binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(packed)), uint64(len(raw)))
	return uint16(c) | sectionSizePrefix, append(payload, packed...), nil
}

// unpackSection reverses packSection. limit caps the declared size before
// any decompression starts.
func unpackSection(flags uint16, payload []byte, limit uint64) ([]byte, error) {
	c := Codec(flags & sectionCodecMask)
	if c == CodecNone {
		return payload, nil
	}
	cd, ok := codecs[c]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, c)
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: payload too short for its size prefix", ErrInvalidPayload)
	}
	size := binary.LittleEndian.Uint64(payload[:8])
	if size > limit {
		return nil, fmt.Errorf("%w: expanded size %d", ErrLimitExceeded, size)
	}
	out, err := cd.unpack(payload[8:], size)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != size {
		return nil, fmt.Errorf("%w: %s expanded to %d bytes, want %d", ErrInvalidPayload, c, len(out), size)
	}
	return out, nil
}

// readBounded drains r and fails once it yields more than size bytes.
func readBounded(r io.Reader, size uint64, c Codec) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", c, err)
	}
	if uint64(len(out)) > size {
		return nil, fmt.Errorf("%w: %s expanded beyond %d bytes", ErrInvalidPayload, c, size)
	}
	return out, nil
}

func zipPack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create(zipEntryName)
	if err == nil {
		_, err = entry.Write(raw)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zipUnpack(packed []byte, size uint64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(packed), int64(len(packed)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != zipEntryName || zr.File[0].FileInfo().IsDir() {
		return nil, fmt.Errorf("%w: zip must hold exactly one %s entry", ErrInvalidPayload, zipEntryName)
	}
	zf := zr.File[0]
	if zf.UncompressedSize64 != size {
		return nil, fmt.Errorf("%w: zip entry is %d bytes, want %d", ErrInvalidPayload, zf.UncompressedSize64, size)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readBounded(rc, size, CodecZIP)
}

func zstdPack(raw []byte) ([]byte, error) {
	enc, err := newZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func zstdUnpack(packed []byte, size uint64) ([]byte, error) {
	dec, err := newZstdDecoder()
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	if err := dec.Reset(bytes.NewReader(packed)); err != nil {
		return nil, err
	}
	return readBounded(dec, size, CodecZstd)
}

func lz4Pack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_, err := zw.Write(raw)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Unpack(packed []byte, size uint64) ([]byte, error) {
	return readBounded(lz4.NewReader(bytes.NewReader(packed)), size, CodecLZ4)
}

func brotliPack(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write(raw)
	if cerr := bw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliUnpack(packed []byte, size uint64) ([]byte, error) {
	return readBounded(brotli.NewReader(bytes.NewReader(packed)), size, CodecBrotli)
}
