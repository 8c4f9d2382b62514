package mdocx

import (
	"encoding/binary"
	"fmt"
)

// header is the fixed 32-byte file header.
//
//	0  magic        [8]byte
//	8  version      uint16
//	10 flags        uint16
//	12 headerSize   uint32
//	16 metadataLen  uint32
//	20 reserved     uint32 + uint64
type header struct {
	magic       [8]byte
	version     uint16
	flags       uint16
	size        uint32
	metadataLen uint32
	reserved0   uint32
	reserved1   uint64
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b[0:8], h.magic[:])
	binary.LittleEndian.PutUint16(b[8:10], h.version)
	binary.LittleEndian.PutUint16(b[10:12], h.flags)
	binary.LittleEndian.PutUint32(b[12:16], h.size)
	binary.LittleEndian.PutUint32(b[16:20], h.metadataLen)
	binary.LittleEndian.PutUint32(b[20:24], h.reserved0)
	binary.LittleEndian.PutUint64(b[24:32], h.reserved1)
	return b
}

func parseHeader(b []byte) header {
	var h header
	copy(h.magic[:], b[0:8])
	h.version = binary.LittleEndian.Uint16(b[8:10])
	h.flags = binary.LittleEndian.Uint16(b[10:12])
	h.size = binary.LittleEndian.Uint32(b[12:16])
	h.metadataLen = binary.LittleEndian.Uint32(b[16:20])
	h.reserved0 = binary.LittleEndian.Uint32(b[20:24])
	h.reserved1 = binary.LittleEndian.Uint64(b[24:32])
	return h
}

func (h header) check(limits Limits) error {
	switch {
	case h.magic != Magic:
		return ErrInvalidMagic
	case h.size != headerSize:
		return fmt.Errorf("%w: header size %d", ErrInvalidHeader, h.size)
	case h.version != VersionV1:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.version)
	case h.reserved0 != 0 || h.reserved1 != 0:
		return fmt.Errorf("%w: reserved must be zero", ErrInvalidHeader)
	case h.metadataLen > limits.MaxMetadataLen:
		return fmt.Errorf("%w: metadata length %d", ErrLimitExceeded, h.metadataLen)
	case h.metadataLen > 0 && h.flags&flagMetadataJSON == 0:
		return fmt.Errorf("%w: metadata present but METADATA_JSON flag not set", ErrInvalidHeader)
	}
	return nil
}

// sectionHeader precedes each section payload.
//
//	0  kind     uint16
//	2  flags    uint16 (codec in the low nibble, size prefix bit)
//	4  length   uint64
//	12 reserved uint32
type sectionHeader struct {
	kind     sectionKind
	flags    uint16
	length   uint64
	reserved uint32
}

func (s sectionHeader) marshal() []byte {
	b := make([]byte, sectionHeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], uint16(s.kind))
	binary.LittleEndian.PutUint16(b[2:4], s.flags)
	binary.LittleEndian.PutUint64(b[4:12], s.length)
	binary.LittleEndian.PutUint32(b[12:16], s.reserved)
	return b
}

func parseSectionHeader(b []byte) sectionHeader {
	return sectionHeader{
		kind:     sectionKind(binary.LittleEndian.Uint16(b[0:2])),
		flags:    binary.LittleEndian.Uint16(b[2:4]),
		length:   binary.LittleEndian.Uint64(b[4:12]),
		reserved: binary.LittleEndian.Uint32(b[12:16]),
	}
}

func (s sectionHeader) codec() Codec {
	return Codec(s.flags & sectionCodecMask)
}

func (s sectionHeader) check(want sectionKind) error {
	if s.reserved != 0 {
		return fmt.Errorf("%w: reserved must be 0", ErrInvalidSection)
	}
	if s.kind != want {
		return fmt.Errorf("%w: expected %s section, got type %d", ErrInvalidSection, want, uint16(s.kind))
	}
	c := s.codec()
	if _, ok := codecNames[c]; !ok {
		return fmt.Errorf("%w: unknown codec %d", ErrInvalidSection, c)
	}
	prefixed := s.flags&sectionSizePrefix != 0
	if c == CodecNone && prefixed {
		return fmt.Errorf("%w: uncompressed section must not set the size prefix flag", ErrInvalidSection)
	}
	if c != CodecNone && !prefixed {
		return fmt.Errorf("%w: %s section must set the size prefix flag", ErrInvalidSection, c)
	}
	return nil
}
