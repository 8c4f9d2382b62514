package mdocx

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// Write encodes b to w as an MDOCX v1 container.
//
// By default both sections are Zstandard-compressed and zero media hashes
// are filled in place. The bundle is validated and fully encoded before the
// first byte reaches w.
func Write(w io.Writer, b *Bundle, opts ...WriteOption) error {
	cfg := writeConfig{
		limits:        DefaultLimits(),
		verifyHashes:  true,
		fillDigests:   true,
		markdownCodec: CodecZstd,
		mediaCodec:    CodecZstd,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if b == nil {
		return fmt.Errorf("%w: bundle is nil", ErrValidation)
	}

	if cfg.fillDigests {
		for i := range b.Media.Items {
			if b.Media.Items[i].SHA256 == ([32]byte{}) {
				b.Media.Items[i].SHA256 = b.Media.Items[i].digest()
			}
		}
	}
	if err := validateBundle(b, cfg.limits, cfg.verifyHashes); err != nil {
		return err
	}

	h := header{magic: Magic, version: VersionV1, size: headerSize}
	var metadata []byte
	if b.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(b.Metadata); err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrValidation, err)
		}
		if len(metadata) > int(cfg.limits.MaxMetadataLen) {
			return fmt.Errorf("%w: metadata is %d bytes", ErrLimitExceeded, len(metadata))
		}
		h.flags |= flagMetadataJSON
		h.metadataLen = uint32(len(metadata))
	}

	markdown, err := packBundle(sectionMarkdown, cfg.markdownCodec, b.Markdown)
	if err != nil {
		return err
	}
	media, err := packBundle(sectionMedia, cfg.mediaCodec, b.Media)
	if err != nil {
		return err
	}

	for _, part := range [][]byte{h.marshal(), metadata, markdown, media} {
		if len(part) == 0 {
			continue
		}
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// packBundle gob-encodes v and frames it as a section.
func packBundle(kind sectionKind, c Codec, v any) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return nil, fmt.Errorf("encode %s bundle: %w", kind, err)
	}
	flags, payload, err := packSection(c, raw.Bytes())
	if err != nil {
		return nil, err
	}
	sh := sectionHeader{kind: kind, flags: flags, length: uint64(len(payload))}
	return append(sh.marshal(), payload...), nil
}
