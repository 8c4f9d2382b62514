// Package main provides C-compatible exports for the mobi library.
// Build with: go build -buildmode=c-shared -o mobi.dll
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Result structure for operations that return data
typedef struct {
    char* data;
    int   data_len;
    char* error;
} MobiResult;

// MarkdownFile for building books from memory
typedef struct {
    char* path;
    char* content;
    int   content_len;
} CMarkdownFile;

// MediaItem for building books from memory
typedef struct {
    char* id;
    char* path;
    char* mime_type;
    char* data;
    int   data_len;
} CMediaItem;
*/
import "C"

import (
	"bytes"
	"encoding/json"
	"unsafe"

	"github.com/logicossoftware/go-mobi"
	"github.com/logicossoftware/go-mobi/mdocx"
)

func main() {}

// MobiMdocxVersion returns the MDOCX container version accepted as input.
//
//export MobiMdocxVersion
func MobiMdocxVersion() C.uint16_t {
	return C.uint16_t(mdocx.VersionV1)
}

// MobiFreeResult frees memory allocated by other Mobi functions.
// Must be called to avoid memory leaks.
//
//export MobiFreeResult
func MobiFreeResult(result C.MobiResult) {
	if result.data != nil {
		C.free(unsafe.Pointer(result.data))
	}
	if result.error != nil {
		C.free(unsafe.Pointer(result.error))
	}
}

// MobiFreeString frees a C string allocated by Go.
//
//export MobiFreeString
func MobiFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func makeResult(data []byte) C.MobiResult {
	var result C.MobiResult
	if len(data) > 0 {
		result.data = (*C.char)(C.CBytes(data))
		result.data_len = C.int(len(data))
	}
	return result
}

func makeError(err error) C.MobiResult {
	var result C.MobiResult
	result.error = C.CString(err.Error())
	return result
}

// buildOptions maps the C arguments onto build options. periodical is -1 for
// automatic detection, 0 for a book index and 1 for a periodical index.
func buildOptions(compression C.uint16_t, periodical C.int) []mobi.Option {
	opts := []mobi.Option{mobi.WithCompression(mobi.Compression(compression))}
	switch periodical {
	case 0:
		opts = append(opts, mobi.WithIndexMode(mobi.IndexBook))
	case 1:
		opts = append(opts, mobi.WithIndexMode(mobi.IndexPeriodical))
	}
	return opts
}

func convert(b *mdocx.Bundle, opts []mobi.Option) C.MobiResult {
	doc, nav, err := mdocx.Convert(b)
	if err != nil {
		return makeError(err)
	}
	book, err := mobi.Build(doc, nav, opts...)
	if err != nil {
		return makeError(err)
	}
	return makeResult(book)
}

// MobiConvertMdocx converts an MDOCX file to a MOBI book.
// Parameters:
//   - data: pointer to MDOCX file bytes
//   - dataLen: length of the data
//   - compression: text compression (1=None, 2=PalmDOC)
//   - periodical: index layout (-1=auto, 0=book, 1=periodical)
//
// Returns MobiResult with the book bytes or error. Call MobiFreeResult when done.
//
//export MobiConvertMdocx
func MobiConvertMdocx(data *C.char, dataLen C.int, compression C.uint16_t, periodical C.int) C.MobiResult {
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)

	b, err := mdocx.Read(bytes.NewReader(goData))
	if err != nil {
		return makeError(err)
	}
	return convert(b, buildOptions(compression, periodical))
}

// MobiConvertMarkdown builds a MOBI book from markdown files held in memory.
// Parameters:
//   - metadataJSON: optional JSON string for metadata (can be NULL)
//   - markdownFiles: array of CMarkdownFile structs, the first one opens the book
//   - markdownCount: number of markdown files
//   - mediaItems: array of CMediaItem structs (can be NULL)
//   - mediaCount: number of media items
//   - compression: text compression (1=None, 2=PalmDOC)
//
// Returns MobiResult with the book bytes or error. Call MobiFreeResult when done.
//
//export MobiConvertMarkdown
func MobiConvertMarkdown(
	metadataJSON *C.char,
	markdownFiles *C.CMarkdownFile,
	markdownCount C.int,
	mediaItems *C.CMediaItem,
	mediaCount C.int,
	compression C.uint16_t,
) C.MobiResult {
	b := mdocx.NewBundle()

	if metadataJSON != nil {
		if s := C.GoString(metadataJSON); s != "" {
			var meta map[string]any
			if err := json.Unmarshal([]byte(s), &meta); err != nil {
				return makeError(err)
			}
			b.Metadata = meta
		}
	}

	if markdownCount > 0 && markdownFiles != nil {
		for i, f := range unsafe.Slice(markdownFiles, int(markdownCount)) {
			path := C.GoString(f.path)
			if i == 0 {
				b.Markdown.RootPath = path
			}
			b.Markdown.Files = append(b.Markdown.Files, mdocx.MarkdownFile{
				Path:    path,
				Content: C.GoBytes(unsafe.Pointer(f.content), f.content_len),
			})
		}
	}

	if mediaCount > 0 && mediaItems != nil {
		for _, m := range unsafe.Slice(mediaItems, int(mediaCount)) {
			b.Media.Items = append(b.Media.Items, mdocx.MediaItem{
				ID:       C.GoString(m.id),
				Path:     C.GoString(m.path),
				MIMEType: C.GoString(m.mime_type),
				Data:     C.GoBytes(unsafe.Pointer(m.data), m.data_len),
			})
		}
	}

	return convert(b, buildOptions(compression, -1))
}

// MobiValidateMdocx checks that an MDOCX file decodes and converts.
// Returns NULL on success, or an error message string on failure.
// Call MobiFreeString on the result if non-NULL.
//
//export MobiValidateMdocx
func MobiValidateMdocx(data *C.char, dataLen C.int) *C.char {
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)

	b, err := mdocx.Read(bytes.NewReader(goData))
	if err != nil {
		return C.CString(err.Error())
	}
	if _, _, err := mdocx.Convert(b); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

// MobiInspect returns a JSON summary of a MOBI file: its database header and
// the size of every record.
//
// Returns MobiResult with JSON or error. Call MobiFreeResult when done.
//
//export MobiInspect
func MobiInspect(data *C.char, dataLen C.int) C.MobiResult {
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)

	h, records, err := mobi.SplitRecords(goData)
	if err != nil {
		return makeError(err)
	}
	sizes := make([]int, len(records))
	for i, r := range records {
		sizes[i] = len(r)
	}
	out, err := json.Marshal(map[string]any{
		"name":     h.Name,
		"type":     h.Type,
		"creator":  h.Creator,
		"created":  h.Created,
		"records":  len(records),
		"sizes":    sizes,
		"uniqueId": h.UniqueIDSeed,
	})
	if err != nil {
		return makeError(err)
	}
	return makeResult(out)
}

// MobiGetRecordCount returns the number of records in a MOBI file.
// Returns -1 on error.
//
//export MobiGetRecordCount
func MobiGetRecordCount(data *C.char, dataLen C.int) C.int {
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)

	_, records, err := mobi.SplitRecords(goData)
	if err != nil {
		return -1
	}
	return C.int(len(records))
}
