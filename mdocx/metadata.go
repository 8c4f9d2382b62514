package mdocx

import (
	"fmt"
	"strings"

	"github.com/logicossoftware/go-mobi"
)

// metadata maps the bundle's JSON metadata onto mobi.Metadata. fallbackTitle
// is used when the bundle has no title.
func (c *converter) metadata(fallbackTitle string) mobi.Metadata {
	m := c.bundle.Metadata
	md := mobi.Metadata{
		Title:       firstString(m, "title"),
		Language:    firstString(m, "language", "lang"),
		Publisher:   firstString(m, "publisher"),
		Description: firstString(m, "description", "summary"),
		Date:        firstString(m, "date", "created_at"),
		Rights:      firstString(m, "rights", "license"),
		Source:      firstString(m, "source"),
		Subjects:    stringsOf(m, "subject", "subjects", "tags"),
	}
	if md.Title == "" {
		md.Title = fallbackTitle
	}
	if md.Title == "" {
		md.Title = "Untitled"
	}
	for _, name := range stringsOf(m, "author", "authors", "creator") {
		md.Creators = append(md.Creators, mobi.Creator{Name: name})
	}
	for _, v := range stringsOf(m, "identifier") {
		md.Identifiers = append(md.Identifiers, mobi.Identifier{Value: v})
	}
	for _, v := range stringsOf(m, "isbn") {
		md.Identifiers = append(md.Identifiers, mobi.Identifier{Scheme: "isbn", Value: v})
	}

	if id := firstString(m, "cover"); id != "" {
		if _, ok := c.mediaHrefs[id]; ok {
			md.CoverID = id
		} else {
			c.cfg.log.Warn("cover is not a raster media item", "id", id)
		}
	}
	return md
}

// firstString returns the first key present in m as a string.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := strings.TrimSpace(toString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// stringsOf collects the values of every key, accepting single values and
// JSON arrays.
func stringsOf(m map[string]any, keys ...string) []string {
	var out []string
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case []any:
			for _, e := range v {
				if s := strings.TrimSpace(toString(e)); s != "" {
					out = append(out, s)
				}
			}
		default:
			if s := strings.TrimSpace(toString(v)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		// {"name": ...} objects, as written by some producers.
		if name, ok := v["name"].(string); ok {
			return name
		}
		return ""
	default:
		return fmt.Sprint(v)
	}
}
