package mdocx

// Limits bound what Read accepts and Write produces. Zero fields take the
// default.
type Limits struct {
	MaxMetadataLen        uint32
	MaxMarkdownSectionLen uint64 // stored payload, possibly compressed
	MaxMediaSectionLen    uint64 // stored payload, possibly compressed
	MaxMarkdownExpanded   uint64 // gob bytes after decompression
	MaxMediaExpanded      uint64 // gob bytes after decompression
	MaxMarkdownFiles      int
	MaxMediaItems         int
	MaxMarkdownFileSize   uint64
	MaxMediaItemSize      uint64
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxMetadataLen:        1 << 20,
		MaxMarkdownSectionLen: 1 << 30,
		MaxMediaSectionLen:    1 << 32,
		MaxMarkdownExpanded:   256 << 20,
		MaxMediaExpanded:      2 << 30,
		MaxMarkdownFiles:      10_000,
		MaxMediaItems:         10_000,
		MaxMarkdownFileSize:   256 << 20,
		MaxMediaItemSize:      512 << 20,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	orDefault(&l.MaxMetadataLen, d.MaxMetadataLen)
	orDefault(&l.MaxMarkdownSectionLen, d.MaxMarkdownSectionLen)
	orDefault(&l.MaxMediaSectionLen, d.MaxMediaSectionLen)
	orDefault(&l.MaxMarkdownExpanded, d.MaxMarkdownExpanded)
	orDefault(&l.MaxMediaExpanded, d.MaxMediaExpanded)
	orDefault(&l.MaxMarkdownFiles, d.MaxMarkdownFiles)
	orDefault(&l.MaxMediaItems, d.MaxMediaItems)
	orDefault(&l.MaxMarkdownFileSize, d.MaxMarkdownFileSize)
	orDefault(&l.MaxMediaItemSize, d.MaxMediaItemSize)
	return l
}

func orDefault[T comparable](v *T, d T) {
	var zero T
	if *v == zero {
		*v = d
	}
}
