package mdocx

import "crypto/sha256"

const (
	VersionV1 uint16 = 1

	headerSize        = 32
	sectionHeaderSize = 16
)

// Magic is the 8-byte MDOCX file signature.
var Magic = [8]byte{'M', 'D', 'O', 'C', 'X', '\r', '\n', 0x1A}

const (
	flagMetadataJSON uint16 = 0x0001

	sectionCodecMask  uint16 = 0x000F
	sectionSizePrefix uint16 = 0x0010
)

type sectionKind uint16

const (
	sectionMarkdown sectionKind = 1
	sectionMedia    sectionKind = 2
)

func (k sectionKind) String() string {
	if k == sectionMarkdown {
		return "markdown"
	}
	return "media"
}

// Bundle is a decoded MDOCX container.
//
// Metadata is optional and encoded as a JSON object. Markdown MUST hold at
// least one file. Media MAY be empty.
type Bundle struct {
	Metadata map[string]any
	Markdown MarkdownBundle
	Media    MediaBundle
}

// The field names below are part of the gob payload and must not change.

type MarkdownBundle struct {
	BundleVersion uint16
	RootPath      string
	Files         []MarkdownFile
}

type MarkdownFile struct {
	Path       string
	Content    []byte
	MediaRefs  []string
	Attributes map[string]string
}

type MediaBundle struct {
	BundleVersion uint16
	Items         []MediaItem
}

type MediaItem struct {
	ID         string
	Path       string
	MIMEType   string
	Data       []byte
	SHA256     [32]byte
	Attributes map[string]string
}

func (m MediaItem) digest() [32]byte {
	return sha256.Sum256(m.Data)
}

// NewBundle returns an empty version 1 bundle.
func NewBundle() *Bundle {
	return &Bundle{
		Markdown: MarkdownBundle{BundleVersion: VersionV1},
		Media:    MediaBundle{BundleVersion: VersionV1},
	}
}

func (b *Bundle) mediaByID(id string) (MediaItem, bool) {
	for _, it := range b.Media.Items {
		if it.ID == id {
			return it, true
		}
	}
	return MediaItem{}, false
}
