// Package mdocx reads MDOCX containers and converts them into the source
// model consumed by [mobi.Build].
//
// An MDOCX file bundles one or more Markdown documents with the media they
// reference. It consists of:
//   - A 32-byte little-endian header with magic bytes, version and flags
//   - An optional UTF-8 JSON metadata object
//   - A Markdown section holding a gob-encoded [MarkdownBundle]
//   - A Media section holding a gob-encoded [MediaBundle]
//
// Section payloads are stored raw or compressed with ZIP, Zstandard, LZ4 or
// Brotli. Decoding enforces [Limits] on every declared and expanded size.
//
// # Converting a bundle
//
//	f, _ := os.Open("book.mdocx")
//	defer f.Close()
//	b, err := mdocx.Read(f)
//	if err != nil {
//		return err
//	}
//	doc, nav, err := mdocx.Convert(b)
//	if err != nil {
//		return err
//	}
//	return mobi.Encode(out, doc, nav)
//
// Every Markdown file becomes one XHTML spine document and its headings
// become navigation entries. Images written as mdocx://media/<id> or as a
// path naming a media item are linked to the matching image record.
//
// [Write] produces containers for tools and tests.
package mdocx
