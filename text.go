package mobi

import "unicode/utf8"

// textRecord is one 4096-byte window of the flattened markup.
type textRecord struct {
	offset  int    // start of the window in the uncompressed stream
	data    []byte // compressed core payload
	overlap []byte // bytes completing a character cut by the window end
	trailer []byte // framed TBS or break entry, set when finalized
}

// bytes lays the record out as
// <data><overlap><len(overlap)><trailer>; readers strip trailing entries
// from the end, the multibyte entry last.
func (r *textRecord) bytes() []byte {
	out := make([]byte, 0, len(r.data)+len(r.overlap)+1+len(r.trailer))
	out = append(out, r.data...)
	out = append(out, r.overlap...)
	out = append(out, byte(len(r.overlap)))
	return append(out, r.trailer...)
}

// splitTextRecords cuts text into RecordSize windows and compresses each.
func splitTextRecords(text []byte, comp Compressor) ([]*textRecord, error) {
	records := make([]*textRecord, 0, textRecordCount(len(text)))
	for pos := 0; pos < len(text); pos += RecordSize {
		data, overlap := readTextRecord(text, pos)
		packed, err := comp.Compress(data)
		if err != nil {
			return nil, err
		}
		records = append(records, &textRecord{offset: pos, data: packed, overlap: overlap})
	}
	return records, nil
}

func textRecordCount(n int) int {
	return (n + RecordSize - 1) / RecordSize
}

// readTextRecord returns the window starting at pos and the bytes past its
// end needed to finish a multi-byte character the window cuts.
func readTextRecord(text []byte, pos int) (data, overlap []byte) {
	end := min(pos+RecordSize, len(text))
	data = text[pos:end]
	if end == len(text) {
		return data, nil
	}
	start := end - 1
	for start > pos && start > end-utf8.UTFMax && !utf8.RuneStart(text[start]) {
		start--
	}
	charEnd := min(start+utf8SeqLen(text[start]), len(text))
	if charEnd <= end {
		return data, nil
	}
	return data, text[end:charEnd]
}

// utf8SeqLen returns the sequence length announced by a leading byte.
func utf8SeqLen(b byte) int {
	switch {
	case b&0xe0 == 0xc0:
		return 2
	case b&0xf0 == 0xe0:
		return 3
	case b&0xf8 == 0xf0:
		return 4
	default:
		return 1
	}
}

// breakTrailer encodes the uncrossable breaks falling inside the record at
// offset, consuming them from breaks. Each break is stored as the distance
// from the previous one in units of eight bytes.
func breakTrailer(breaks []int, offset int) ([]byte, []int) {
	var raw []byte
	running := offset
	for len(breaks) > 0 && breaks[0]-offset < RecordSize {
		pbreak := max(breaks[0]-running, 0) >> 3
		breaks = breaks[1:]
		raw = append(raw, encint(pbreak)...)
		running += pbreak << 3
	}
	return encodeTrailingEntry(raw), breaks
}

// alignmentPadding returns the zero bytes that bring n up to a multiple of 4.
func alignmentPadding(n int) []byte {
	if n%4 == 0 {
		return nil
	}
	return make([]byte, 4-n%4)
}
