package mobi

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"strings"
)

const (
	palmDOCHeaderSize = 16
	mobiHeaderSize    = 0xe8
	record0MinSize    = 2452
	exthFlags         = 0x50
	noRecord          = 0xffffffff
)

// Extra-data flags announcing what text records carry after their payload.
const (
	extraMultibyte = 0x1
	extraTBS       = 0x2
	extraBreaks    = 0x4
)

// EXTH record codes.
const (
	exthCreator      = 100
	exthPublisher    = 101
	exthDescription  = 103
	exthISBN         = 104
	exthSubject      = 105
	exthDate         = 106
	exthReview       = 107
	exthContributor  = 108
	exthRights       = 109
	exthType         = 111
	exthSource       = 112
	exthCoverOffset  = 201
	exthThumbOffset  = 202
	exthHasFakeCover = 203
	exthUpdatedTitle = 503
)

var collapseSpace = regexp.MustCompile(`[ \t\r\n\v]+`)

// recordZero carries the record numbers and sizes written into the
// leading record. Record numbers are absolute; -1 means absent.
type recordZero struct {
	compression  Compression
	textLength   int
	textRecords  int
	bookType     uint32
	uid          uint32
	firstNonText int
	firstImage   int
	lastContent  int
	primaryIndex int
	fcis         int
	flis         int
	extraFlags   uint32
	language     string
	title        string
	exth         []byte
}

func (r recordZero) bytes() []byte {
	var palm [palmDOCHeaderSize]byte
	binary.BigEndian.PutUint16(palm[0:2], uint16(r.compression))
	binary.BigEndian.PutUint32(palm[4:8], uint32(r.textLength))
	binary.BigEndian.PutUint16(palm[8:10], uint16(r.textRecords))
	binary.BigEndian.PutUint16(palm[10:12], RecordSize)

	var h [mobiHeaderSize]byte
	copy(h[0x00:], "MOBI")
	binary.BigEndian.PutUint32(h[0x04:], mobiHeaderSize)
	binary.BigEndian.PutUint32(h[0x08:], r.bookType)
	binary.BigEndian.PutUint32(h[0x0c:], textEncodingUTF8)
	binary.BigEndian.PutUint32(h[0x10:], r.uid)
	binary.BigEndian.PutUint32(h[0x14:], generatorVersion)
	fill(h[0x18:0x40], 0xff) // secondary index and reserved slots
	binary.BigEndian.PutUint32(h[0x40:], uint32(r.firstNonText))
	binary.BigEndian.PutUint32(h[0x44:], uint32(mobiHeaderSize+palmDOCHeaderSize+len(r.exth)))
	binary.BigEndian.PutUint32(h[0x48:], uint32(len(r.title)))
	lang := languageCode(r.language)
	copy(h[0x4c:0x50], lang[:])
	binary.BigEndian.PutUint32(h[0x58:], generatorVersion)
	binary.BigEndian.PutUint32(h[0x5c:], uint32(max(r.firstImage, 0)))
	binary.BigEndian.PutUint32(h[0x70:], exthFlags)
	binary.BigEndian.PutUint32(h[0x94:], noRecord) // DRM offset
	binary.BigEndian.PutUint32(h[0x98:], noRecord) // DRM count
	binary.BigEndian.PutUint16(h[0xb0:], 1)
	binary.BigEndian.PutUint16(h[0xb2:], uint16(r.lastContent))
	binary.BigEndian.PutUint32(h[0xb4:], 1)
	if r.fcis >= 0 {
		binary.BigEndian.PutUint32(h[0xb8:], uint32(r.fcis))
		binary.BigEndian.PutUint32(h[0xbc:], 1)
		binary.BigEndian.PutUint32(h[0xc0:], uint32(r.flis))
	} else {
		binary.BigEndian.PutUint32(h[0xb8:], noRecord)
		binary.BigEndian.PutUint32(h[0xbc:], noRecord)
		binary.BigEndian.PutUint32(h[0xc0:], noRecord)
	}
	binary.BigEndian.PutUint32(h[0xc4:], 1)
	binary.BigEndian.PutUint32(h[0xd0:], noRecord)
	binary.BigEndian.PutUint32(h[0xd8:], noRecord)
	binary.BigEndian.PutUint32(h[0xdc:], noRecord)
	binary.BigEndian.PutUint32(h[0xe0:], r.extraFlags)
	primary := uint32(noRecord)
	if r.primaryIndex >= 0 {
		primary = uint32(r.primaryIndex)
	}
	binary.BigEndian.PutUint32(h[0xe4:], primary)

	var buf bytes.Buffer
	buf.Write(palm[:])
	buf.Write(h[:])
	buf.Write(r.exth)
	buf.WriteString(r.title)
	if buf.Len() < record0MinSize {
		buf.Write(make([]byte, record0MinSize-buf.Len()))
	}
	return buf.Bytes()
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// exthBuilder accumulates EXTH records.
type exthBuilder struct {
	buf  bytes.Buffer
	nrec int
}

func (e *exthBuilder) add(code uint32, data []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], code)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(data)+8))
	e.buf.Write(hdr[:])
	e.buf.Write(data)
	e.nrec++
}

func (e *exthBuilder) addText(code uint32, s string) {
	if s == "" {
		return
	}
	e.add(code, []byte(collapseSpace.ReplaceAllString(s, " ")))
}

func (e *exthBuilder) addUint32(code, v uint32) {
	e.add(code, binary.BigEndian.AppendUint32(nil, v))
}

// bytes frames the records. The block is always padded by 1 to 4 bytes
// and the padding is not counted in its length.
func (e *exthBuilder) bytes() []byte {
	body := e.buf.Bytes()
	out := make([]byte, 0, 12+len(body)+4)
	out = append(out, "EXTH"...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)+12))
	out = binary.BigEndian.AppendUint32(out, uint32(e.nrec))
	out = append(out, body...)
	return append(out, make([]byte, 4-len(body)%4)...)
}

// buildEXTH encodes the metadata block. cover and thumb are 1-based image
// record indices, 0 when absent.
func buildEXTH(md Metadata, preferAuthorSort bool, cover, thumb int) []byte {
	var e exthBuilder
	if len(md.Creators) > 0 {
		names := make([]string, 0, len(md.Creators))
		for _, c := range md.Creators {
			name := c.Name
			if preferAuthorSort && c.FileAs != "" {
				name = c.FileAs
			}
			names = append(names, name)
		}
		e.addText(exthCreator, strings.Join(names, "; "))
	}
	e.addText(exthPublisher, md.Publisher)
	e.addText(exthDescription, md.Description)
	for _, id := range md.Identifiers {
		switch {
		case strings.HasPrefix(strings.ToLower(id.Value), "urn:isbn:"):
			e.addText(exthISBN, id.Value[len("urn:isbn:"):])
		case strings.EqualFold(id.Scheme, "isbn"):
			e.addText(exthISBN, id.Value)
		}
	}
	for _, s := range md.Subjects {
		e.addText(exthSubject, s)
	}
	e.addText(exthDate, md.Date)
	e.addText(exthReview, md.Review)
	for _, c := range md.Contributors {
		e.addText(exthContributor, c)
	}
	e.addText(exthRights, md.Rights)
	e.addText(exthType, md.Type)
	e.addText(exthSource, md.Source)
	e.addText(exthUpdatedTitle, md.Title)
	if cover > 0 {
		e.addUint32(exthCoverOffset, uint32(cover-1))
		e.addUint32(exthHasFakeCover, 0)
		if thumb > 0 {
			e.addUint32(exthThumbOffset, uint32(thumb-1))
		}
	}
	return e.bytes()
}
