package mobi

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfig(warnings *[]Warning) *buildConfig {
	cfg := defaultBuildConfig()
	cfg.limits = cfg.limits.withDefaults()
	if warnings != nil {
		cfg.onWarning = func(w Warning) { *warnings = append(*warnings, w) }
	}
	return &cfg
}

func flatSerialized(end int, offsets map[string]int) *serialized {
	return &serialized{idOffsets: offsets, bodyStart: 0, bodyEnd: end}
}

func TestBookIndex_ScenarioA(t *testing.T) {
	ser := flatSerialized(15000, map[string]int{"a.html": 0, "b.html": 5000, "c.html": 12000})
	nav := []*NavNode{
		{Title: "One", Href: "a.html"},
		{Title: "Two", Href: "b.html"},
		{Title: "Three", Href: "c.html"},
	}
	idx, err := buildNavIndex(nav, ser, testConfig(nil))
	require.NoError(t, err)
	require.NotNil(t, idx)
	require.False(t, idx.periodical)
	require.Len(t, idx.entries, 3)

	lengths := []int{5000, 7000, 3000}
	total := 0
	for i, e := range idx.entries {
		require.Equal(t, i, e.Index)
		require.Equal(t, lengths[i], e.Length)
		require.Equal(t, 0, e.Depth)
		if i+1 < len(idx.entries) {
			require.Equal(t, idx.entries[i+1].Offset, e.NextOffset())
		}
		total += e.Length
	}
	require.Equal(t, 15000, total)

	require.Equal(t, 4, textRecordCount(15000))
	for _, seq := range idx.trailingSequences(4) {
		require.Empty(t, seq)
	}
}

func TestBookIndex_DedupSortAndPrune(t *testing.T) {
	ser := flatSerialized(9000, map[string]int{
		"a.html":      300,
		"a.html#dup":  300,
		"b.html":      2000,
		"c.html":      9000,
		"d.html#late": 6000,
	})
	nav := []*NavNode{
		{Title: "B", Href: "b.html"},
		{Title: "A", Href: "a.html", Children: []*NavNode{
			{Title: "A again", Href: "a.html#dup"},
			{Title: "Missing", Href: "a.html#nope"},
		}},
		{Title: "Late", Href: "d.html#late"},
		{Title: "At end", Href: "c.html"},
	}
	var warnings []Warning
	idx, err := buildNavIndex(nav, ser, testConfig(&warnings))
	require.NoError(t, err)
	require.Len(t, idx.entries, 3)

	require.Equal(t, []int{300, 2000, 6000}, []int{idx.entries[0].Offset, idx.entries[1].Offset, idx.entries[2].Offset})
	require.Equal(t, []int{1700, 4000, 3000}, []int{idx.entries[0].Length, idx.entries[1].Length, idx.entries[2].Length})
	require.Equal(t, []int{0, 1, 2}, []int{idx.entries[0].Index, idx.entries[1].Index, idx.entries[2].Index})

	require.Len(t, warnings, 1)
	require.Equal(t, WarnMissingTOCTarget, warnings[0].Kind)
	require.Equal(t, "a.html#nope", warnings[0].Subject)
}

func TestBookIndex_LengthsSumToContentMinusPrefix(t *testing.T) {
	ser := flatSerialized(20000, map[string]int{"a": 1234, "b": 4000, "c": 4001, "d": 19999})
	nav := []*NavNode{{Title: "a", Href: "a"}, {Title: "b", Href: "b"}, {Title: "c", Href: "c"}, {Title: "d", Href: "d"}}
	idx, err := buildNavIndex(nav, ser, testConfig(nil))
	require.NoError(t, err)
	total := 0
	for _, e := range idx.entries {
		require.Positive(t, e.Length)
		total += e.Length
	}
	require.Equal(t, 20000-1234, total)
}

func TestNavIndex_EmptyAfterPruning(t *testing.T) {
	var warnings []Warning
	ser := flatSerialized(100, map[string]int{"end.html": 100})
	nav := []*NavNode{{Title: "Gone", Href: "missing.html"}, {Title: "End", Href: "end.html"}}
	idx, err := buildNavIndex(nav, ser, testConfig(&warnings))
	require.NoError(t, err)
	require.Nil(t, idx)
	require.Len(t, warnings, 2)
	require.Equal(t, WarnMissingTOCTarget, warnings[0].Kind)
	require.Equal(t, WarnEmptyIndex, warnings[1].Kind)

	idx, err = buildNavIndex(nil, ser, testConfig(nil))
	require.NoError(t, err)
	require.Nil(t, idx)
}

func periodicalNav(sections ...*NavNode) []*NavNode {
	return []*NavNode{{Title: "Daily", Href: "index.html", Class: "periodical", Children: sections}}
}

func TestPeriodicalIndex_ScenarioB(t *testing.T) {
	ser := flatSerialized(8000, map[string]int{"sec.html": 100, "a1.html": 100, "a2.html": 4200})
	nav := periodicalNav(&NavNode{Title: "News", Href: "sec.html", Class: "section", Children: []*NavNode{
		{Title: "First", Href: "a1.html", Class: "article"},
		{Title: "Second", Href: "a2.html", Class: "article"},
	}})
	idx, err := buildNavIndex(nav, ser, testConfig(nil))
	require.NoError(t, err)
	require.True(t, idx.periodical)
	require.Len(t, idx.entries, 4)

	root, sec, a1, a2 := idx.entries[0], idx.entries[1], idx.entries[2], idx.entries[3]
	require.Equal(t, 0, root.Offset)
	require.Equal(t, 8000, root.Length)
	require.Equal(t, 1, root.FirstChildIndex)
	require.Equal(t, 1, root.LastChildIndex)
	require.Equal(t, -1, root.ParentIndex)

	require.Equal(t, 1, sec.Index)
	require.Equal(t, 0, sec.ParentIndex)
	require.Equal(t, 2, sec.FirstChildIndex)
	require.Equal(t, 3, sec.LastChildIndex)
	require.Equal(t, 7900, sec.Length)

	for _, a := range []*IndexEntry{a1, a2} {
		require.Equal(t, depthArticle, a.Depth)
		require.Equal(t, sec.Index, a.ParentIndex)
	}
	require.Equal(t, a2.Offset, a1.NextOffset())
	require.Equal(t, sec.NextOffset(), a2.NextOffset())

	tbs := idx.trailingSequences(textRecordCount(8000))
	require.Len(t, tbs, 2)
	require.Equal(t, []byte{0x86, 0x80, 0x02, 0x90}, tbs[0])
	require.Equal(t, []byte{0x82, 0x80, 0x90, 0x94, 0x02}, tbs[1])
}

func TestPeriodicalIndex_ArticlesTileSections(t *testing.T) {
	ser := flatSerialized(30000, map[string]int{
		"s1": 50, "s1a": 50, "s1b": 3000, "s1c": 7000,
		"s2": 12000, "s2a": 12000, "s2b": 20000,
		"s3": 25000, "s3a": 26000,
	})
	art := func(h string) *NavNode { return &NavNode{Title: h, Href: h} }
	nav := periodicalNav(
		&NavNode{Title: "s1", Href: "s1", Children: []*NavNode{art("s1a"), art("s1c"), art("s1b")}},
		&NavNode{Title: "s2", Href: "s2", Children: []*NavNode{art("s2a"), art("s2b")}},
		&NavNode{Title: "s3", Href: "s3", Children: []*NavNode{art("s3a")}},
	)
	idx, err := buildNavIndex(nav, ser, testConfig(nil))
	require.NoError(t, err)

	sections := map[int]*IndexEntry{}
	for _, e := range idx.entries {
		if e.Depth == depthSection {
			sections[e.Index] = e
		}
	}
	require.Len(t, sections, 3)
	covered := map[int]int{}
	for _, e := range idx.entries {
		if e.Depth != depthArticle {
			continue
		}
		sec := sections[e.ParentIndex]
		require.GreaterOrEqual(t, e.Offset, sec.Offset)
		require.LessOrEqual(t, e.NextOffset(), sec.NextOffset())
		covered[e.ParentIndex] += e.Length
	}
	// Articles cover each section from its first article to its end.
	require.Equal(t, 12000-50, covered[1])
	require.Equal(t, 25000-12000, covered[2])
	require.Equal(t, 30000-26000, covered[3])

	// Flattened order: periodical, sections, then articles.
	depths := []int{}
	for _, e := range idx.entries {
		depths = append(depths, e.Depth)
	}
	require.Equal(t, []int{0, 1, 1, 1, 2, 2, 2, 2, 2, 2}, depths)
	for i, e := range idx.entries[1:] {
		require.Equal(t, i+1, e.Index)
	}
}

func TestPeriodicalIndex_OverlappingArticlesFail(t *testing.T) {
	ser := flatSerialized(10000, map[string]int{"s1": 500, "a1": 600, "a2": 100, "s2": 5000, "b1": 5000})
	nav := periodicalNav(
		&NavNode{Title: "s1", Href: "s1", Children: []*NavNode{{Title: "a1", Href: "a1"}, {Title: "a2", Href: "a2"}}},
		&NavNode{Title: "s2", Href: "s2", Children: []*NavNode{{Title: "b1", Href: "b1"}}},
	)
	_, err := buildNavIndex(nav, ser, testConfig(nil))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidLayout)
	var le *LayoutError
	require.True(t, errors.As(err, &le))
	require.Equal(t, "article", le.Kind)
	require.Equal(t, 100, le.Offset)
}

func TestPeriodicalIndex_PrunesEmptySections(t *testing.T) {
	var warnings []Warning
	ser := flatSerialized(9000, map[string]int{"s1": 0, "a1": 0, "s2": 4000, "s3": 6000, "c1": 6000, "c2": 9000})
	nav := periodicalNav(
		&NavNode{Title: "s1", Href: "s1", Children: []*NavNode{{Title: "a1", Href: "a1"}}},
		&NavNode{Title: "s2", Href: "s2", Children: []*NavNode{{Title: "gone", Href: "gone"}}},
		&NavNode{Title: "s3", Href: "s3", Children: []*NavNode{{Title: "c1", Href: "c1"}, {Title: "c2", Href: "c2"}, {Title: "dup", Href: "a1"}}},
	)
	idx, err := buildNavIndex(nav, ser, testConfig(&warnings))
	require.NoError(t, err)
	require.Len(t, idx.entries, 5) // periodical, s1, s3, a1, c1

	s1, s3 := idx.entries[1], idx.entries[2]
	require.Equal(t, 0, s1.Offset)
	require.Equal(t, 6000, s1.Length, "s1 closes the gap left by s2")
	require.Equal(t, 6000, s3.Offset)
	require.Equal(t, 3000, s3.Length)
	require.Equal(t, 2, idx.entries[0].LastChildIndex)
	require.Equal(t, 4, s3.FirstChildIndex)
	require.Equal(t, 4, s3.LastChildIndex)

	require.Len(t, warnings, 1)
	require.Equal(t, "gone", warnings[0].Subject)
}

func TestPeriodicalIndex_AllSectionsPruned(t *testing.T) {
	var warnings []Warning
	ser := flatSerialized(100, map[string]int{"s1": 0})
	nav := periodicalNav(&NavNode{Title: "s1", Href: "s1"})
	idx, err := buildNavIndex(nav, ser, testConfig(&warnings))
	require.NoError(t, err)
	require.Nil(t, idx)
	require.Equal(t, WarnEmptyIndex, warnings[len(warnings)-1].Kind)
}

func TestDetectPeriodical(t *testing.T) {
	deep := periodicalNav(&NavNode{Title: "s", Children: []*NavNode{{Title: "a", Children: []*NavNode{{Title: "too deep"}}}}})
	flat := []*NavNode{{Title: "a"}, {Title: "b"}}

	ok, err := detectPeriodical(flat, IndexAuto)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = detectPeriodical(periodicalNav(), IndexAuto)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = detectPeriodical(periodicalNav(), IndexBook)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = detectPeriodical([]*NavNode{{Title: "root"}}, IndexPeriodical)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = detectPeriodical(flat, IndexPeriodical)
	require.ErrorIs(t, err, ErrUnsupportedIndex)
	_, err = detectPeriodical(deep, IndexAuto)
	require.ErrorIs(t, err, ErrUnsupportedIndex)
	_, err = detectPeriodical(flat, IndexMode(9))
	require.ErrorIs(t, err, ErrUnsupportedIndex)
}

func TestIndexEntry_Bytes(t *testing.T) {
	e := newIndexEntry(0, 0x10, 0, -1)
	e.Length = 5000
	require.Equal(t, byte(0x0f), e.entryType())
	want := []byte{2, '0', '0', 0x0f, 0x80, 0x27, 0x88, 0x90, 0x80}
	require.Equal(t, want, e.bytes())

	periodical := newIndexEntry(0, 0, depthPeriodical, 5)
	periodical.FirstChildIndex, periodical.LastChildIndex = 1, 1
	require.Equal(t, byte(0xdf), periodical.entryType())

	section := newIndexEntry(0, 0, depthSection, 5)
	section.ParentIndex, section.FirstChildIndex, section.LastChildIndex = 0, 2, 3
	require.Equal(t, byte(0xff), section.entryType())

	article := newIndexEntry(0, 0, depthArticle, 5)
	article.ParentIndex = 1
	require.Equal(t, byte(0x3f), article.entryType())
}

func TestTagx(t *testing.T) {
	book := (&navIndex{}).tagx()
	want := []byte("TAGX\x00\x00\x00\x20\x00\x00\x00\x01" +
		"\x01\x01\x01\x00\x02\x01\x02\x00\x03\x01\x04\x00\x04\x01\x08\x00\x00\x00\x00\x01")
	require.Equal(t, want, book)

	periodical := (&navIndex{periodical: true}).tagx()
	require.Len(t, periodical, 12+8*4+4)
	require.Equal(t, []byte{23, 1, 0x80, 0}, periodical[12+7*4:12+8*4])
}

func TestIndexRecords_Layout(t *testing.T) {
	ser := flatSerialized(15000, map[string]int{"a.html": 0, "b.html": 5000, "c.html": 12000})
	nav := []*NavNode{{Title: "One", Href: "a.html"}, {Title: "Two", Href: "b.html"}, {Title: "Three", Href: "c.html"}}
	cfg := testConfig(nil)
	idx, err := buildNavIndex(nav, ser, cfg)
	require.NoError(t, err)
	recs, err := idx.records(cfg.limits)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	hdr, entries := recs[0], recs[1]
	require.Equal(t, "INDX", string(hdr[:4]))
	require.Zero(t, len(hdr)%4)
	require.Equal(t, uint32(indexHeaderLength), binary.BigEndian.Uint32(hdr[4:8]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(hdr[16:20]))
	idxt := binary.BigEndian.Uint32(hdr[20:24])
	require.Equal(t, "IDXT", string(hdr[idxt:idxt+4]))
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(hdr[24:28]))
	require.Equal(t, uint32(textEncodingUTF8), binary.BigEndian.Uint32(hdr[28:32]))
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(hdr[36:40]))
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(hdr[52:56]))
	require.Equal(t, uint32(indexHeaderLength), binary.BigEndian.Uint32(hdr[180:184]))
	require.Equal(t, "TAGX", string(hdr[192:196]))

	require.Equal(t, "INDX", string(entries[:4]))
	require.Zero(t, len(entries)%4)
	count := int(binary.BigEndian.Uint32(entries[24:28]))
	require.Equal(t, 3, count)
	idxt = binary.BigEndian.Uint32(entries[20:24])
	require.Equal(t, "IDXT", string(entries[idxt:idxt+4]))
	for i := range count {
		at := binary.BigEndian.Uint16(entries[int(idxt)+4+2*i:])
		require.Equal(t, idx.entries[i].bytes(), entries[at:int(at)+len(idx.entries[i].bytes())])
	}
	require.Equal(t, idx.strings.records[0], recs[2])
}

func TestIndexRecords_TooLarge(t *testing.T) {
	offsets := map[string]int{}
	var nav []*NavNode
	for i := range 50 {
		href := string(rune('A'+i%26)) + string(rune('a'+i/26))
		offsets[href] = i * 100
		nav = append(nav, &NavNode{Title: href, Href: href})
	}
	cfg := testConfig(nil)
	idx, err := buildNavIndex(nav, flatSerialized(6000, offsets), cfg)
	require.NoError(t, err)
	_, err = idx.records(Limits{MaxIndexRecordSize: 300}.withDefaults())
	require.ErrorIs(t, err, ErrIndexTooLarge)
}
