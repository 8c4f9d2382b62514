package mobi

import (
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"time"
)

const (
	pdbNameSize       = 32
	pdbHeaderSize     = 78
	pdbRecordInfoSize = 8
	pdbGapSize        = 2
)

var (
	eofRecord = []byte{0xe9, 0x8e, 0x0d, 0x0a}

	unsafeNameChars = regexp.MustCompile(`[^-A-Za-z0-9]+`)
)

// Header is the Palm database header of a MOBI file.
type Header struct {
	Name         string
	Attributes   uint16
	Version      uint16
	Created      time.Time
	Modified     time.Time
	Type         string
	Creator      string
	UniqueIDSeed uint32
	NumRecords   int
}

// databaseName turns a title into the NUL padded 32-byte database name.
func databaseName(title string) [pdbNameSize]byte {
	var name [pdbNameSize]byte
	s := unsafeNameChars.ReplaceAllString(title, "_")
	if len(s) > pdbNameSize-1 {
		s = s[:pdbNameSize-1]
	}
	copy(name[:], s)
	return name
}

// writeDatabase writes the Palm database header, the record info list and
// the records.
func writeDatabase(w io.Writer, title string, now time.Time, records [][]byte) error {
	var hdr [pdbHeaderSize]byte
	name := databaseName(title)
	copy(hdr[0:32], name[:])
	ts := uint32(now.Unix())
	binary.BigEndian.PutUint32(hdr[36:40], ts)
	binary.BigEndian.PutUint32(hdr[40:44], ts)
	copy(hdr[60:64], "BOOK")
	copy(hdr[64:68], "MOBI")
	binary.BigEndian.PutUint32(hdr[68:72], uint32(len(records)))
	binary.BigEndian.PutUint16(hdr[76:78], uint16(len(records)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	info := make([]byte, 0, len(records)*pdbRecordInfoSize+pdbGapSize)
	offset := pdbHeaderSize + len(records)*pdbRecordInfoSize + pdbGapSize
	for id, rec := range records {
		info = binary.BigEndian.AppendUint32(info, uint32(offset))
		// Attribute byte then a 24-bit unique id.
		info = binary.BigEndian.AppendUint32(info, uint32(id)&0xffffff)
		offset += len(rec)
	}
	info = append(info, 0, 0)
	if _, err := w.Write(info); err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// SplitRecords parses the Palm database header and returns the raw records.
// It does not interpret record contents.
func SplitRecords(data []byte) (Header, [][]byte, error) {
	if len(data) < pdbHeaderSize {
		return Header{}, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidDatabase, len(data))
	}
	var h Header
	name := data[0:pdbNameSize]
	for i, c := range name {
		if c == 0 {
			name = name[:i]
			break
		}
	}
	h.Name = string(name)
	h.Attributes = binary.BigEndian.Uint16(data[32:34])
	h.Version = binary.BigEndian.Uint16(data[34:36])
	h.Created = time.Unix(int64(binary.BigEndian.Uint32(data[36:40])), 0).UTC()
	h.Modified = time.Unix(int64(binary.BigEndian.Uint32(data[40:44])), 0).UTC()
	h.Type = string(data[60:64])
	h.Creator = string(data[64:68])
	h.UniqueIDSeed = binary.BigEndian.Uint32(data[68:72])
	h.NumRecords = int(binary.BigEndian.Uint16(data[76:78]))

	tableEnd := pdbHeaderSize + h.NumRecords*pdbRecordInfoSize
	if len(data) < tableEnd {
		return h, nil, fmt.Errorf("%w: record table truncated", ErrInvalidDatabase)
	}
	offsets := make([]int, h.NumRecords+1)
	for i := range h.NumRecords {
		at := pdbHeaderSize + i*pdbRecordInfoSize
		offsets[i] = int(binary.BigEndian.Uint32(data[at : at+4]))
	}
	offsets[h.NumRecords] = len(data)

	records := make([][]byte, h.NumRecords)
	for i := range h.NumRecords {
		start, end := offsets[i], offsets[i+1]
		if start < tableEnd || start > end || end > len(data) {
			return h, nil, fmt.Errorf("%w: record %d spans %d..%d", ErrInvalidDatabase, i, start, end)
		}
		records[i] = data[start:end]
	}
	return h, records, nil
}

func flisRecord() []byte {
	rec := []byte("FLIS\x00\x00\x00\x08\x00\x41\x00\x00\x00\x00\x00\x00\xff\xff\xff\xff\x00\x01\x00\x03\x00\x00\x00\x03\x00\x00\x00\x01")
	return append(rec, 0xff, 0xff, 0xff, 0xff)
}

func fcisRecord(textLength int) []byte {
	rec := []byte("FCIS\x00\x00\x00\x14\x00\x00\x00\x10\x00\x00\x00\x01\x00\x00\x00\x00")
	rec = binary.BigEndian.AppendUint32(rec, uint32(textLength))
	return append(rec, "\x00\x00\x00\x00\x00\x00\x00\x20\x00\x00\x00\x08\x00\x01\x00\x01\x00\x00\x00\x00"...)
}
