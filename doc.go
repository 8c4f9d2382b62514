// Package mobi writes Mobipocket (MOBI) e-book containers.
//
// A MOBI file is a Palm database: a short header, a table of record offsets
// and a sequence of records. The writer produces, in order:
//   - record 0: PalmDOC header, MOBI header, EXTH metadata block and title
//   - text records: the flattened markup split into 4096-byte windows,
//     optionally PalmDOC-compressed, each carrying trailing entries
//   - an alignment record when indexing is active
//   - the navigation index: INDX header record, INDX entry record and the
//     CNCX string records
//   - image records, then an optional thumbnail record
//   - end-of-file markers
//
// # Basic Usage
//
//	doc := &mobi.Document{
//		Manifest: []mobi.ManifestItem{
//			{ID: "c1", Href: "text/c1.xhtml", MediaType: "application/xhtml+xml", Data: page},
//		},
//		Spine:    []mobi.SpineItem{{Href: "text/c1.xhtml"}},
//		Metadata: mobi.Metadata{Title: "My Book", Language: "en"},
//	}
//	nav := []*mobi.NavNode{{Title: "Chapter 1", Href: "text/c1.xhtml"}}
//	raw, err := mobi.Build(doc, nav)
//
// # Navigation
//
// A flat table of contents produces a book index. A tree whose single root
// has class "periodical", with "section" children holding "article"
// children, produces a hierarchical periodical index whose position is
// tracked by per-record trailing byte sequences. See [IndexMode].
//
// # Errors
//
// Malformed navigation topology aborts the build with an error wrapping
// [ErrInvalidLayout] or [ErrUnsupportedIndex]. Per-node anomalies such as a
// dangling hyperlink or an unreadable image are reported as [Warning] values
// and the build continues.
package mobi
