package mdocx

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// Read decodes an MDOCX container from r.
//
// Every declared length is checked against the configured [Limits] before
// the bytes are read, and every compressed section against its declared
// expanded size while it is inflated. Non-zero media hashes are verified
// unless WithVerifyHashes(false) is given.
//
// Read returns ErrInvalidMagic for non-MDOCX input, ErrUnsupportedVersion for
// other versions, ErrLimitExceeded when a limit is hit and ErrValidation when
// the decoded bundle is malformed.
func Read(r io.Reader, opts ...ReadOption) (*Bundle, error) {
	cfg := readConfig{limits: DefaultLimits(), verifyHashes: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()

	hb := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := parseHeader(hb)
	if err := h.check(cfg.limits); err != nil {
		return nil, err
	}

	b := &Bundle{}
	if h.metadataLen > 0 {
		raw := make([]byte, h.metadataLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		if err := json.Unmarshal(raw, &b.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
		}
		if b.Metadata == nil {
			return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidHeader)
		}
	}

	raw, err := readSection(r, sectionMarkdown, cfg.limits.MaxMarkdownSectionLen, cfg.limits.MaxMarkdownExpanded)
	if err != nil {
		return nil, err
	}
	if err := gobDecode(raw, &b.Markdown); err != nil {
		return nil, fmt.Errorf("%w: markdown bundle: %v", ErrInvalidPayload, err)
	}

	raw, err = readSection(r, sectionMedia, cfg.limits.MaxMediaSectionLen, cfg.limits.MaxMediaExpanded)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		b.Media = MediaBundle{BundleVersion: VersionV1}
	} else if err := gobDecode(raw, &b.Media); err != nil {
		return nil, fmt.Errorf("%w: media bundle: %v", ErrInvalidPayload, err)
	}

	if err := validateBundle(b, cfg.limits, cfg.verifyHashes); err != nil {
		return nil, err
	}
	return b, nil
}

// readSection reads one section header and its payload and returns the
// expanded gob bytes.
func readSection(r io.Reader, kind sectionKind, maxStored, maxExpanded uint64) ([]byte, error) {
	sb := make([]byte, sectionHeaderSize)
	if _, err := io.ReadFull(r, sb); err != nil {
		return nil, fmt.Errorf("read %s section header: %w", kind, err)
	}
	sh := parseSectionHeader(sb)
	if err := sh.check(kind); err != nil {
		return nil, err
	}
	if sh.length > maxStored {
		return nil, fmt.Errorf("%w: %s section is %d bytes", ErrLimitExceeded, kind, sh.length)
	}
	if sh.length == 0 {
		return nil, nil
	}
	payload := make([]byte, sh.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read %s section: %w", kind, err)
	}
	return unpackSection(sh.flags, payload, maxExpanded)
}

func gobDecode(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}
