package mobi

import (
	"maps"
	"slices"
)

// Selectors opening a periodical trailing byte sequence. The 0b100 flag
// marks records dealing with the first section.
var (
	tbsType010 = encodeTBS(0, map[int]int{0b010: 0}, 3)
	tbsType011 = encodeTBS(0, map[int]int{0b010: 0, 0b001: 0}, 3)
	tbsType110 = encodeTBS(0, map[int]int{0b100: 2, 0b010: 0}, 3)
	tbsType111 = encodeTBS(0, map[int]int{0b100: 2, 0b010: 0, 0b001: 0}, 3)
)

const tbsFlagSize = 4

// recordNodes buckets the index entries touching one text record.
type recordNodes struct {
	offset    int
	starts    []*IndexEntry // start inside, end after
	ends      []*IndexEntry // start before, end inside
	completes []*IndexEntry // start and end inside
	spans     *IndexEntry   // deepest entry covering the whole record
}

func (r *recordNodes) empty() bool {
	return len(r.starts) == 0 && len(r.ends) == 0 && len(r.completes) == 0 && r.spans == nil
}

// trailingSequences returns the TBS of every text record. Book indexes
// carry empty sequences.
func (x *navIndex) trailingSequences(numRecords int) [][]byte {
	out := make([][]byte, numRecords)
	if !x.periodical {
		return out
	}
	sections := make(map[int]*IndexEntry)
	for _, e := range x.entries {
		if e.Depth == depthSection {
			sections[e.Index] = e
		}
	}
	deepest := x.depth()

	found := false
	for i := range numRecords {
		nodes := x.recordNodes(i*RecordSize, deepest)
		if nodes.empty() {
			// Text between the periodical start and the first section.
			if found {
				out[i] = tbsType011
			}
			continue
		}
		out[i] = periodicalTBS(nodes, sections)
		found = true
	}
	return out
}

func (x *navIndex) recordNodes(offset, deepest int) *recordNodes {
	next := offset + RecordSize
	r := &recordNodes{offset: offset}
	for _, e := range x.entries {
		if e.Offset >= next {
			if e.Depth == deepest {
				break
			}
			continue
		}
		if e.NextOffset() <= offset {
			continue
		}
		switch {
		case e.Offset >= offset && e.NextOffset() <= next:
			r.completes = append(r.completes, e)
		case e.Offset >= offset:
			r.starts = append(r.starts, e)
		case e.NextOffset() <= next:
			r.ends = append(r.ends, e)
		case e.Depth == deepest:
			r.spans = e
		}
	}
	return r
}

func periodicalTBS(r *recordNodes, sections map[int]*IndexEntry) []byte {
	byDepth := make(map[int][]*IndexEntry)
	for _, list := range [][]*IndexEntry{r.starts, r.ends, r.completes} {
		for _, e := range list {
			byDepth[e.Depth] = append(byDepth[e.Depth], e)
		}
	}
	for _, list := range byDepth {
		slices.SortStableFunc(list, func(a, b *IndexEntry) int { return a.Offset - b.Offset })
	}
	secs, arts := byDepth[depthSection], byDepth[depthArticle]

	hasSectionStart := false
	for _, s := range secs {
		if slices.Contains(r.starts, s) {
			hasSectionStart = true
		}
	}
	spanner := r.spans
	parent := -1
	var typ []byte
	firstSection := false

	switch {
	case len(byDepth[depthPeriodical]) > 0:
		// The periodical itself starts or ends here.
		var first *IndexEntry
		for _, e := range append(slices.Clone(secs), arts...) {
			if first == nil || e.Offset < first.Offset || (e.Offset == first.Offset && e.Depth < first.Depth) {
				first = e
			}
		}
		typ = tbsType010
		if hasSectionStart {
			typ, firstSection = tbsType110, true
		}
		switch {
		case first != nil && first.Depth == depthSection:
			parent = first.Index
		case first != nil:
			parent = first.ParentIndex
		default:
			parent = slices.Max(slices.Collect(maps.Keys(sections)))
		}
	case spanner != nil:
		parent = spanner.ParentIndex
		typ = tbsType010
		if parent == 1 {
			typ, firstSection = tbsType110, true
		}
	case len(secs) == 0:
		// Only articles, so a section spans the record.
		parent = arts[0].ParentIndex
		typ = tbsType010
		if parent == 1 {
			typ, firstSection = tbsType111, true
		}
	default:
		if len(arts) > 0 {
			parent = arts[0].ParentIndex
		} else {
			parent = secs[0].Index
		}
		typ = tbsType011
	}

	out := slices.Clone(typ)
	if !firstSection && parent > 0 {
		extra := map[int]int{}
		if spanner == nil {
			n := 0
			for _, s := range secs {
				if s.ParentIndex == parent {
					n++
				}
			}
			if len(secs) == 0 {
				extra = map[int]int{0b0001: 0}
			}
			if n > 1 {
				extra = map[int]int{0b0100: n}
			}
		}
		out = append(out, encodeTBS(parent, extra, tbsFlagSize)...)
	}

	if spanner != nil {
		return append(out, encodeTBS(spanner.Index-parent, map[int]int{0b0001: 0}, tbsFlagSize)...)
	}

	var touched []*IndexEntry
	for _, a := range arts {
		if s := sections[a.ParentIndex]; !slices.Contains(touched, s) {
			touched = append(touched, s)
		}
	}
	slices.SortStableFunc(touched, func(a, b *IndexEntry) int { return a.Offset - b.Offset })
	for i, s := range touched {
		var own []*IndexEntry
		for _, a := range arts {
			if a.ParentIndex == s.Index {
				own = append(own, a)
			}
		}
		extra := map[int]int{}
		if len(own) > 1 {
			extra[0b0100] = len(own)
		}
		out = append(out, encodeTBS(own[0].Index-s.Index, extra, tbsFlagSize)...)
		if i+1 < len(touched) {
			out = append(out, encodeTBS(own[len(own)-1].Index-touched[i+1].Index, map[int]int{0b1000: 0}, tbsFlagSize)...)
		}
	}
	return out
}
