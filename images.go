package mobi

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/cespare/xxhash/v2"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Images up to this many pixels that need re-encoding become GIFs.
const maxGIFArea = 40000

// imageSet holds the image records of a document. Indices are 1-based, in
// manifest order, and shared by images with identical bytes.
type imageSet struct {
	indices map[string]int // manifest href -> record index
	records [][]byte
	thumb   int // record index of the thumbnail, 0 if none
}

// collectImages re-encodes every raster image of the manifest to fit
// maxSize. Images that cannot be decoded are skipped with a warning.
// imageDigest keys the duplicate lookup. Equal digests are confirmed with a
// byte compare.
var imageDigest = xxhash.Sum64

type seenImage struct {
	data  []byte
	index int
}

func collectImages(doc *Document, cfg *buildConfig) *imageSet {
	set := &imageSet{indices: make(map[string]int)}
	byDigest := make(map[uint64][]seenImage)
outer:
	for _, it := range doc.Manifest {
		if !it.isRasterImage() {
			continue
		}
		digest := imageDigest(it.Data)
		for _, seen := range byDigest[digest] {
			if bytes.Equal(seen.data, it.Data) {
				set.indices[it.Href] = seen.index
				continue outer
			}
		}
		data, err := rescaleImage(it.Data, cfg.maxImageSize, nil)
		if err != nil {
			cfg.warn(Warning{Kind: WarnBadImage, Subject: it.Href, Message: err.Error()})
			continue
		}
		set.records = append(set.records, data)
		byDigest[digest] = append(byDigest[digest], seenImage{data: it.Data, index: len(set.records)})
		set.indices[it.Href] = len(set.records)
	}
	return set
}

// cover returns the record index of the cover image, 0 if there is none.
func (s *imageSet) cover(doc *Document) int {
	if doc.Metadata.CoverID == "" {
		return 0
	}
	it, ok := doc.itemByID(doc.Metadata.CoverID)
	if !ok {
		return 0
	}
	return s.indices[it.Href]
}

// addThumbnail appends a thumbnail of the cover image.
func (s *imageSet) addThumbnail(doc *Document, cfg *buildConfig) {
	it, ok := doc.itemByID(doc.Metadata.CoverID)
	if !ok {
		return
	}
	data, err := rescaleImage(it.Data, maxThumbSize, &image.Point{X: maxThumbWidth, Y: maxThumbHeight})
	if err != nil {
		cfg.warn(Warning{Kind: WarnBadImage, Subject: it.Href, Message: "thumbnail: " + err.Error()})
		return
	}
	s.records = append(s.records, data)
	s.thumb = len(s.records)
}

// rescaleImage returns data as a JPEG or GIF of at most maxSize bytes,
// shrunk to fit within bounds when bounds is set. Quality drops first, then
// the picture is scaled down.
func rescaleImage(data []byte, maxSize int, bounds *image.Point) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	changed := false
	if format != "jpeg" && format != "gif" {
		size := img.Bounds().Size()
		format = "jpeg"
		if size.X*size.Y <= maxGIFArea {
			format = "gif"
		}
		changed = true
	}
	if bounds != nil {
		img = fitWithin(img, *bounds)
		changed = true
	}
	if changed {
		if data, err = encodeImage(img, format, jpeg.DefaultQuality); err != nil {
			return nil, err
		}
	}
	if len(data) <= maxSize {
		return data, nil
	}

	for q := 95; q > 0; q -= 5 {
		if data, err = encodeImage(img, "jpeg", q); err != nil {
			return nil, err
		}
		if len(data) <= maxSize {
			return data, nil
		}
	}
	size := img.Bounds().Size()
	for scale := 95; scale > 0; scale -= 5 {
		w, h := max(size.X*scale/100, 1), max(size.Y*scale/100, 1)
		if data, err = encodeImage(fitWithin(img, image.Pt(w, h)), "jpeg", 1); err != nil {
			return nil, err
		}
		if len(data) <= maxSize {
			return data, nil
		}
	}
	// Smallest attempt wins even when it is still too large.
	return data, nil
}

// fitWithin scales img down, keeping its aspect ratio, so it fits bounds.
// Images already inside bounds are returned unchanged.
func fitWithin(img image.Image, bounds image.Point) image.Image {
	size := img.Bounds().Size()
	if size.X <= bounds.X && size.Y <= bounds.Y {
		return img
	}
	w, h := bounds.X, size.Y*bounds.X/size.X
	if h > bounds.Y {
		w, h = size.X*bounds.Y/size.Y, bounds.Y
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
