package mobi

import (
	"bytes"
	"fmt"
	"strings"
)

// cncxRecordStride is the distance in the global offset space between two
// CNCX records; the high half of an offset selects the record.
const cncxRecordStride = 0x10000

// Placeholder label for navigation nodes without a title.
const untitledLabel = "(none)"

// cncx is the string table holding every label and class of the index.
// Strings keep the offset of their first occurrence.
type cncx struct {
	offsets map[string]int
	records [][]byte
}

// newCNCX collects the strings of nav breadth first. Classes are only
// stored for periodicals.
func newCNCX(nav []*NavNode, periodical bool, limits Limits) (*cncx, error) {
	var keys []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			keys = append(keys, s)
		}
	}
	depths := navDepths(nav)
	walkBreadthFirst(nav, func(n *NavNode) {
		add(navLabel(n))
		if periodical {
			add(navClass(n, depths[n]))
		}
	})

	c := &cncx{offsets: make(map[string]int, len(keys))}
	var buf bytes.Buffer
	offset := 0
	for _, key := range keys {
		label := truncateRunes(key, limits.MaxLabelLength)
		raw := append(encint(len(label)), label...)
		if len(raw)+6 > limits.MaxCNCXRecordSize {
			return nil, fmt.Errorf("%w: label of %d bytes does not fit a string record", ErrLimitExceeded, len(label))
		}
		if limits.MaxCNCXRecordSize-buf.Len() < len(raw)+6 {
			buf.Write(make([]byte, limits.MaxCNCXRecordSize-buf.Len()))
			c.records = append(c.records, bytes.Clone(buf.Bytes()))
			buf.Reset()
			offset = len(c.records) * cncxRecordStride
		}
		buf.Write(raw)
		c.offsets[key] = offset
		offset += len(raw)
	}
	c.records = append(c.records, append(bytes.Clone(buf.Bytes()), alignmentPadding(buf.Len())...))
	return c, nil
}

func (c *cncx) offset(s string) int {
	return c.offsets[s]
}

func navLabel(n *NavNode) string {
	if strings.TrimSpace(n.Title) == "" {
		return untitledLabel
	}
	return n.Title
}

// navClass returns the periodical class of n, defaulting by depth.
func navClass(n *NavNode, depth int) string {
	if n.Class != "" {
		return n.Class
	}
	switch depth {
	case 0:
		return "periodical"
	case 1:
		return "section"
	default:
		return "article"
	}
}

func navDepths(nav []*NavNode) map[*NavNode]int {
	depths := make(map[*NavNode]int)
	walkDepthFirst(nav, func(n *NavNode, depth int) { depths[n] = depth })
	return depths
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
