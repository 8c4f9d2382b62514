package mobi

import "strings"

const (
	// RecordSize is the uncompressed size of every text record but the last.
	RecordSize = 0x1000

	// PalmMaxImageSize is the image record ceiling for older Palm readers.
	PalmMaxImageSize = 63 * 1024
	// OtherMaxImageSize is the default image record ceiling.
	OtherMaxImageSize = 10 * 1024 * 1024

	maxThumbSize   = 16 * 1024
	maxThumbWidth  = 180
	maxThumbHeight = 240

	textEncodingUTF8 = 65001
	generatorVersion = 6
)

// Book types stored in the MOBI header.
const (
	TypeBook       uint32 = 0x002
	TypePeriodical uint32 = 0x101
)

// Compression identifies the text record compression scheme stored in
// record 0.
type Compression uint16

const (
	CompNone     Compression = 1
	CompPalmDOC  Compression = 2
	CompHuffCDIC Compression = 17480
)

// IndexMode selects the navigation index topology.
type IndexMode int

const (
	// IndexAuto builds a periodical index when the navigation tree looks like
	// one and a book index otherwise.
	IndexAuto IndexMode = iota
	IndexBook
	IndexPeriodical
)

// Media types treated as spine documents and as image records.
var (
	documentTypes = map[string]bool{
		"application/xhtml+xml": true,
		"text/html":             true,
		"text/x-oeb1-document":  true,
	}
	rasterImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/gif":  true,
		"image/png":  true,
		"image/bmp":  true,
		"image/webp": true,
	}
)

// ManifestItem is one resource of the source document.
type ManifestItem struct {
	ID        string
	Href      string
	MediaType string
	Data      []byte
}

func (m ManifestItem) isDocument() bool {
	return documentTypes[strings.ToLower(m.MediaType)]
}

func (m ManifestItem) isRasterImage() bool {
	return rasterImageTypes[strings.ToLower(m.MediaType)]
}

// SpineItem places a manifest document in reading order.
type SpineItem struct {
	Href      string
	NonLinear bool
}

// GuideRef is a structural landmark such as the cover or the start of text.
type GuideRef struct {
	Type  string
	Title string
	Href  string
}

type Creator struct {
	Name   string
	FileAs string
}

type Identifier struct {
	Scheme string
	Value  string
}

// Metadata feeds the EXTH block and the MOBI header.
type Metadata struct {
	Title        string
	Language     string
	Creators     []Creator
	Publisher    string
	Description  string
	Identifiers  []Identifier
	Subjects     []string
	Date         string
	Review       string
	Contributors []string
	Rights       string
	Type         string
	Source       string
	// CoverID names the manifest item used as cover image.
	CoverID string
}

// Document is the source model consumed by Build.
//
// Spine hrefs MUST name document items of the manifest. The manifest MAY
// contain images, which become image records in manifest order.
type Document struct {
	Manifest []ManifestItem
	Spine    []SpineItem
	Guide    []GuideRef
	Metadata Metadata
}

func (d *Document) itemByHref(href string) (ManifestItem, bool) {
	for _, it := range d.Manifest {
		if it.Href == href {
			return it, true
		}
	}
	return ManifestItem{}, false
}

func (d *Document) itemByID(id string) (ManifestItem, bool) {
	for _, it := range d.Manifest {
		if it.ID == id {
			return it, true
		}
	}
	return ManifestItem{}, false
}

// NavNode is one entry of the navigation tree. Href is a manifest href with
// an optional fragment.
type NavNode struct {
	Title    string
	Href     string
	Class    string
	Children []*NavNode
}

// walkDepthFirst visits nodes in document order.
func walkDepthFirst(nodes []*NavNode, fn func(n *NavNode, depth int)) {
	var walk func([]*NavNode, int)
	walk = func(ns []*NavNode, depth int) {
		for _, n := range ns {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(nodes, 0)
}

// walkBreadthFirst visits nodes level by level.
func walkBreadthFirst(nodes []*NavNode, fn func(n *NavNode)) {
	queue := append([]*NavNode(nil), nodes...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		fn(n)
		queue = append(queue, n.Children...)
	}
}
