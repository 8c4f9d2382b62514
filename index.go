package mobi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

// Index tag codes.
const (
	tagOffset          = 1
	tagLength          = 2
	tagLabelOffset     = 3
	tagDepth           = 4
	tagClassOffset     = 5
	tagParentIndex     = 21
	tagFirstChildIndex = 22
	tagLastChildIndex  = 23
)

// tagBitmasks orders the tags; a tag's position is its bit in the entry
// type byte and the TAGX mask.
var tagBitmasks = []int{tagOffset, tagLength, tagLabelOffset, tagDepth, tagClassOffset, tagParentIndex, tagFirstChildIndex, tagLastChildIndex}

const indexHeaderLength = 192

// Depths of the periodical hierarchy.
const (
	depthPeriodical = 0
	depthSection    = 1
	depthArticle    = 2
)

// IndexEntry is one navigation index entry. Optional links hold -1 when
// absent.
type IndexEntry struct {
	Offset          int
	Length          int
	Depth           int
	Index           int
	LabelOffset     int
	ClassOffset     int
	ParentIndex     int
	FirstChildIndex int
	LastChildIndex  int
}

func newIndexEntry(offset, label, depth, class int) *IndexEntry {
	return &IndexEntry{
		Offset:          offset,
		Depth:           depth,
		LabelOffset:     label,
		ClassOffset:     class,
		ParentIndex:     -1,
		FirstChildIndex: -1,
		LastChildIndex:  -1,
	}
}

// NextOffset is the first content offset past the entry.
func (e *IndexEntry) NextOffset() int {
	return e.Offset + e.Length
}

type tagValue struct {
	tag int
	val int
}

func (e *IndexEntry) tagValues() []tagValue {
	tv := []tagValue{
		{tagOffset, e.Offset},
		{tagLength, e.Length},
		{tagLabelOffset, e.LabelOffset},
		{tagDepth, e.Depth},
	}
	for _, opt := range []tagValue{
		{tagClassOffset, e.ClassOffset},
		{tagParentIndex, e.ParentIndex},
		{tagFirstChildIndex, e.FirstChildIndex},
		{tagLastChildIndex, e.LastChildIndex},
	} {
		if opt.val >= 0 {
			tv = append(tv, opt)
		}
	}
	return tv
}

func (e *IndexEntry) entryType() byte {
	var t byte
	for _, v := range e.tagValues() {
		t |= 1 << slices.Index(tagBitmasks, v.tag)
	}
	return t
}

// bytes encodes the entry as its hex name, type byte and tag values.
func (e *IndexEntry) bytes() []byte {
	out := encodeNumberAsHex(e.Index)
	out = append(out, e.entryType())
	for _, v := range e.tagValues() {
		out = append(out, encint(v.val)...)
	}
	return out
}

// navIndex is the finished navigation index of one document.
type navIndex struct {
	periodical bool
	entries    []*IndexEntry
	strings    *cncx
}

// buildNavIndex turns nav into index entries. It returns nil when nothing
// indexable survives, which selects the legacy trailer layout.
func buildNavIndex(nav []*NavNode, ser *serialized, cfg *buildConfig) (*navIndex, error) {
	if len(nav) == 0 {
		return nil, nil
	}
	periodical, err := detectPeriodical(nav, cfg.indexMode)
	if err != nil {
		return nil, err
	}
	strs, err := newCNCX(nav, periodical, cfg.limits)
	if err != nil {
		return nil, err
	}
	idx := &navIndex{periodical: periodical, strings: strs}
	if periodical {
		idx.entries, err = idx.periodicalEntries(nav[0], ser, cfg)
		if err != nil {
			return nil, err
		}
	} else {
		idx.entries = idx.bookEntries(nav, ser, cfg)
	}
	if len(idx.entries) == 0 || (periodical && len(idx.entries) == 1) {
		cfg.warn(Warning{Kind: WarnEmptyIndex, Subject: navLabel(nav[0]), Message: "no navigation entry points into the body, index omitted"})
		return nil, nil
	}
	cfg.log.Debug("navigation index built", "periodical", periodical, "entries", len(idx.entries))
	return idx, nil
}

// detectPeriodical decides the index topology. A periodical needs a single
// root whose children are sections holding articles.
func detectPeriodical(nav []*NavNode, mode IndexMode) (bool, error) {
	switch mode {
	case IndexBook:
		return false, nil
	case IndexAuto:
		if len(nav) != 1 || nav[0].Class != "periodical" {
			return false, nil
		}
	case IndexPeriodical:
	default:
		return false, fmt.Errorf("%w: unknown index mode %d", ErrUnsupportedIndex, mode)
	}
	if len(nav) != 1 {
		return false, fmt.Errorf("%w: periodical needs exactly one root, got %d", ErrUnsupportedIndex, len(nav))
	}
	for _, sec := range nav[0].Children {
		for _, art := range sec.Children {
			if len(art.Children) > 0 {
				return false, fmt.Errorf("%w: periodical navigation deeper than three levels under %q", ErrUnsupportedIndex, art.Title)
			}
		}
	}
	return true, nil
}

func (x *navIndex) bookEntries(nav []*NavNode, ser *serialized, cfg *buildConfig) []*IndexEntry {
	var entries []*IndexEntry
	seen := make(map[int]bool)
	walkDepthFirst(nav, func(n *NavNode, _ int) {
		offset, ok := ser.offsetOf(n.Href)
		if !ok {
			cfg.warn(Warning{Kind: WarnMissingTOCTarget, Subject: n.Href, Message: "TOC item not found in document"})
			return
		}
		if seen[offset] {
			return
		}
		seen[offset] = true
		entries = append(entries, newIndexEntry(offset, x.strings.offset(navLabel(n)), 0, -1))
	})
	slices.SortStableFunc(entries, func(a, b *IndexEntry) int { return a.Offset - b.Offset })

	setSpans(entries, ser.bodyEnd)
	entries = slices.DeleteFunc(entries, func(e *IndexEntry) bool { return e.Length <= 0 })
	for i, e := range entries {
		e.Index = i
	}
	setSpans(entries, ser.bodyEnd)
	return entries
}

// setSpans sets each entry's length to reach the next entry, the last one
// reaching end.
func setSpans(entries []*IndexEntry, end int) {
	for i, e := range entries {
		next := end
		if i+1 < len(entries) {
			next = entries[i+1].Offset
		}
		e.Length = next - e.Offset
	}
}

type sectionEntries struct {
	section  *IndexEntry
	articles []*IndexEntry
}

func (x *navIndex) periodicalEntries(root *NavNode, ser *serialized, cfg *buildConfig) ([]*IndexEntry, error) {
	periodical := newIndexEntry(ser.bodyStart, x.strings.offset(navLabel(root)), depthPeriodical,
		x.strings.offset(navClass(root, depthPeriodical)))
	periodical.Length = ser.bodyEnd - ser.bodyStart
	periodical.FirstChildIndex = 1

	var sections []sectionEntries
	seenSections := make(map[int]bool)
	seenArticles := make(map[int]bool)
	for _, sec := range root.Children {
		offset, ok := ser.offsetOf(sec.Href)
		if !ok {
			cfg.warn(Warning{Kind: WarnMissingTOCTarget, Subject: sec.Href, Message: "TOC section not found in document"})
			continue
		}
		if seenSections[offset] {
			continue
		}
		seenSections[offset] = true
		section := newIndexEntry(offset, x.strings.offset(navLabel(sec)), depthSection,
			x.strings.offset(navClass(sec, depthSection)))
		section.ParentIndex = 0

		var articles []*IndexEntry
		for _, art := range sec.Children {
			offset, ok := ser.offsetOf(art.Href)
			if !ok {
				cfg.warn(Warning{Kind: WarnMissingTOCTarget, Subject: art.Href, Message: "TOC article not found in document"})
				continue
			}
			if seenArticles[offset] {
				continue
			}
			seenArticles[offset] = true
			articles = append(articles, newIndexEntry(offset, x.strings.offset(navLabel(art)), depthArticle,
				x.strings.offset(navClass(art, depthArticle))))
		}
		if len(articles) > 0 {
			slices.SortStableFunc(articles, func(a, b *IndexEntry) int { return a.Offset - b.Offset })
			sections = append(sections, sectionEntries{section, articles})
		}
	}
	slices.SortStableFunc(sections, func(a, b sectionEntries) int { return a.section.Offset - b.section.Offset })

	setPeriodicalSpans(sections, ser.bodyEnd)
	for i := range sections {
		sections[i].articles = slices.DeleteFunc(sections[i].articles, func(e *IndexEntry) bool { return e.Length <= 0 })
	}
	sections = slices.DeleteFunc(sections, func(s sectionEntries) bool {
		return s.section.Length <= 0 || len(s.articles) == 0
	})

	i := 0
	for _, s := range sections {
		i++
		s.section.Index = i
	}
	for _, s := range sections {
		for _, art := range s.articles {
			i++
			art.Index = i
			art.ParentIndex = s.section.Index
		}
		s.section.FirstChildIndex = s.articles[0].Index
		s.section.LastChildIndex = s.articles[len(s.articles)-1].Index
	}
	setPeriodicalSpans(sections, ser.bodyEnd)

	if err := checkPeriodicalLayout(sections, ser.bodyEnd); err != nil {
		return nil, err
	}

	entries := []*IndexEntry{periodical}
	for _, s := range sections {
		entries = append(entries, s.section)
		periodical.LastChildIndex = s.section.Index
	}
	for _, s := range sections {
		entries = append(entries, s.articles...)
	}
	return entries, nil
}

// setPeriodicalSpans makes sections reach the next section and articles
// reach the next article of their section, or the section end.
func setPeriodicalSpans(sections []sectionEntries, end int) {
	for i, s := range sections {
		next := end
		if i+1 < len(sections) {
			next = sections[i+1].section.Offset
		}
		s.section.Length = next - s.section.Offset
		setSpans(s.articles, s.section.NextOffset())
	}
}

// checkPeriodicalLayout verifies that sections tile the body up to end and
// that the articles of each section tile the section from its first article.
func checkPeriodicalLayout(sections []sectionEntries, end int) error {
	for i, s := range sections {
		sec := s.section
		next := end
		if i+1 < len(sections) {
			next = sections[i+1].section.Offset
		}
		if sec.Length <= 0 || sec.NextOffset() != next {
			return &LayoutError{Kind: "section", Index: sec.Index, Offset: sec.Offset, Reason: "section does not reach the next section"}
		}
		for j, art := range s.articles {
			if art.Offset < sec.Offset {
				return &LayoutError{Kind: "article", Index: art.Index, Offset: art.Offset, Reason: "article starts before its section"}
			}
			next := sec.NextOffset()
			if j+1 < len(s.articles) {
				next = s.articles[j+1].Offset
			}
			if art.Length <= 0 || art.NextOffset() != next {
				return &LayoutError{Kind: "article", Index: art.Index, Offset: art.Offset, Reason: "article does not reach the next article"}
			}
		}
	}
	return nil
}

func (x *navIndex) depth() int {
	d := 0
	for _, e := range x.entries {
		d = max(d, e.Depth)
	}
	return d
}

// tagx returns the tag table declaring which tags entries may carry.
func (x *navIndex) tagx() []byte {
	n := 4
	if x.periodical {
		n = len(tagBitmasks)
	}
	var table []byte
	for i, tag := range tagBitmasks[:n] {
		table = append(table, byte(tag), 1, byte(1<<i), 0)
	}
	table = append(table, 0, 0, 0, 1)

	out := make([]byte, 0, 12+len(table))
	out = append(out, "TAGX"...)
	out = binary.BigEndian.AppendUint32(out, uint32(12+len(table)))
	out = binary.BigEndian.AppendUint32(out, 1)
	return append(out, table...)
}

// records returns the index records in file order: INDX header, INDX
// entries, then the string table records.
func (x *navIndex) records(limits Limits) ([][]byte, error) {
	entries, err := x.entryRecord(limits)
	if err != nil {
		return nil, err
	}
	out := [][]byte{x.headerRecord(), entries}
	return append(out, x.strings.records...), nil
}

func (x *navIndex) headerRecord() []byte {
	tagx := x.tagx()
	var buf bytes.Buffer
	be := func(v uint32) { buf.Write(binary.BigEndian.AppendUint32(nil, v)) }

	buf.WriteString("INDX")
	be(indexHeaderLength)
	buf.Write(make([]byte, 8))
	be(2) // index type
	be(0) // IDXT offset, patched below
	be(1) // index records
	be(textEncodingUTF8)
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	be(uint32(len(x.entries)))
	be(0) // ORDT
	be(0) // LIGT
	be(0) // LIGT entries
	be(uint32(len(x.strings.records)))
	buf.Write(make([]byte, 124))
	be(indexHeaderLength) // TAGX offset
	buf.Write(make([]byte, 8))

	buf.Write(tagx)
	buf.Write(encodeNumberAsHex(len(x.entries) - 1))
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(x.entries))))
	buf.Write(alignmentPadding(buf.Len()))

	idxt := buf.Len()
	buf.WriteString("IDXT")
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(indexHeaderLength+len(tagx))))
	buf.WriteByte(0)

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[20:], uint32(idxt))
	return append(out, alignmentPadding(len(out))...)
}

func (x *navIndex) entryRecord(limits Limits) ([]byte, error) {
	var block []byte
	offsets := make([]int, 0, len(x.entries))
	for _, e := range x.entries {
		offsets = append(offsets, len(block))
		block = append(block, e.bytes()...)
	}
	block = append(block, alignmentPadding(len(block))...)

	idxt := []byte("IDXT")
	for _, off := range offsets {
		idxt = binary.BigEndian.AppendUint16(idxt, uint16(indexHeaderLength+off))
	}
	idxt = append(idxt, alignmentPadding(len(idxt))...)

	out := make([]byte, 0, indexHeaderLength+len(block)+len(idxt))
	out = append(out, "INDX"...)
	out = binary.BigEndian.AppendUint32(out, indexHeaderLength)
	out = append(out, 0, 0, 0, 0)
	out = binary.BigEndian.AppendUint32(out, 1)
	out = append(out, 0, 0, 0, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(indexHeaderLength+len(block)))
	out = binary.BigEndian.AppendUint32(out, uint32(len(offsets)))
	out = append(out, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	out = append(out, make([]byte, 156)...)
	out = append(out, block...)
	out = append(out, idxt...)
	if len(out) > limits.MaxIndexRecordSize {
		return nil, fmt.Errorf("%w: %d entries need %d bytes", ErrIndexTooLarge, len(offsets), len(out))
	}
	return out, nil
}
