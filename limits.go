package mobi

type Limits struct {
	MaxIndexRecordSize int // INDX entry record including header
	MaxCNCXRecordSize  int // string bytes per CNCX record before padding
	MaxLabelLength     int // runes kept per CNCX string
	MaxRecords         int // Palm database record count (uint16)
	MaxContentLength   int // flattened markup bytes
}

func defaultLimits() Limits {
	return Limits{
		MaxIndexRecordSize: 0x10000,
		MaxCNCXRecordSize:  0xfbf8, // stays well under the 0x10000 record cap
		MaxLabelLength:     500,
		MaxRecords:         0xffff,
		MaxContentLength:   1 << 30,
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxIndexRecordSize == 0 {
		l.MaxIndexRecordSize = d.MaxIndexRecordSize
	}
	if l.MaxCNCXRecordSize == 0 {
		l.MaxCNCXRecordSize = d.MaxCNCXRecordSize
	}
	if l.MaxLabelLength == 0 {
		l.MaxLabelLength = d.MaxLabelLength
	}
	if l.MaxRecords == 0 {
		l.MaxRecords = d.MaxRecords
	}
	if l.MaxContentLength == 0 {
		l.MaxContentLength = d.MaxContentLength
	}
	return l
}
