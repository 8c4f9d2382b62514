package mobi

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
)

// Build converts doc and its navigation tree into a MOBI file.
func Build(doc *Document, nav []*NavNode, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, nav, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the MOBI file for doc and nav to w.
//
// The build runs in fixed phases: images are re-encoded, the spine is
// flattened and its links resolved, the navigation index is built, the
// markup is split into text records with their trailers, and record 0 is
// assembled last since it points at every other record. Nothing is written
// to w unless every phase succeeds.
func Encode(w io.Writer, doc *Document, nav []*NavNode, opts ...Option) error {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()

	comp := cfg.compressor
	if comp == nil {
		var err error
		if comp, err = compressorFor(cfg.compression); err != nil {
			return err
		}
	}
	if err := validateDocument(doc, nav); err != nil {
		return err
	}

	images := collectImages(doc, &cfg)
	ser, err := serializeDocument(doc, images.indices, &cfg)
	if err != nil {
		return err
	}
	idx, err := buildNavIndex(nav, ser, &cfg)
	if err != nil {
		return err
	}
	text, err := splitTextRecords(ser.text, comp)
	if err != nil {
		return fmt.Errorf("compress text: %w", err)
	}

	var extraFlags uint32 = extraMultibyte
	if idx != nil {
		extraFlags |= extraTBS
		for i, seq := range idx.trailingSequences(len(text)) {
			text[i].trailer = encodeTrailingEntry(seq)
		}
	} else {
		extraFlags |= extraBreaks
		breaks := ser.breaks
		for _, rec := range text {
			rec.trailer, breaks = breakTrailer(breaks, rec.offset)
		}
	}

	records := [][]byte{nil}
	textSize := 0
	for _, rec := range text {
		b := rec.bytes()
		textSize += len(b)
		records = append(records, b)
	}
	if idx != nil {
		// Readers expect this record after the text when an index follows,
		// even when it is empty.
		records = append(records, alignmentPadding(textSize))
	}
	firstNonText := len(records)

	primaryIndex := -1
	bookType := TypeBook
	if idx != nil {
		primaryIndex = len(records)
		recs, err := idx.records(cfg.limits)
		if err != nil {
			return err
		}
		records = append(records, recs...)
		if idx.periodical {
			bookType = TypePeriodical
		}
	}

	cover := images.cover(doc)
	if cover > 0 && cfg.thumbnail {
		images.addThumbnail(doc, &cfg)
	}
	firstImage := -1
	if len(images.records) > 0 {
		firstImage = len(records)
		records = append(records, images.records...)
	}
	lastContent := len(records) - 1

	fcis, flis := -1, -1
	if cfg.endRecords {
		flis = len(records)
		records = append(records, flisRecord())
		fcis = len(records)
		records = append(records, fcisRecord(len(ser.text)))
	}
	records = append(records, eofRecord)
	if len(records) > cfg.limits.MaxRecords {
		return fmt.Errorf("%w: %d records", ErrLimitExceeded, len(records))
	}

	uid := cfg.uid
	if !cfg.uidSet {
		uid = rand.Uint32()
	}
	records[0] = recordZero{
		compression:  cfg.compression,
		textLength:   len(ser.text),
		textRecords:  len(text),
		bookType:     bookType,
		uid:          uid,
		firstNonText: firstNonText,
		firstImage:   firstImage,
		lastContent:  lastContent,
		primaryIndex: primaryIndex,
		fcis:         fcis,
		flis:         flis,
		extraFlags:   extraFlags,
		language:     doc.Metadata.Language,
		title:        doc.Metadata.Title,
		exth:         buildEXTH(doc.Metadata, cfg.preferAuthorSort, cover, images.thumb),
	}.bytes()

	cfg.log.Debug("mobi layout",
		"text_records", len(text),
		"text_length", len(ser.text),
		"compression", compressionName(cfg.compression),
		"indexed", idx != nil,
		"images", len(images.records),
		"records", len(records))
	return writeDatabase(w, doc.Metadata.Title, cfg.now(), records)
}
