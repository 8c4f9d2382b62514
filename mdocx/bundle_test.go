package mdocx

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleBundle() *Bundle {
	b := NewBundle()
	b.Metadata = map[string]any{"title": "Example", "tags": []any{"a", "b"}}
	b.Markdown.RootPath = "docs/index.md"
	b.Markdown.Files = []MarkdownFile{
		{Path: "docs/index.md", Content: []byte("# Hello\n\n![Logo](mdocx://media/logo)\n"), MediaRefs: []string{"logo"}},
		{Path: "docs/notes.md", Content: []byte("Some notes\n")},
	}
	b.Media.Items = []MediaItem{
		{ID: "logo", Path: "assets/logo.png", MIMEType: "image/png", Data: []byte{0x01, 0x02, 0x03}},
	}
	return b
}

func encodeBundle(t *testing.T, b *Bundle, opts ...WriteOption) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, b, opts...))
	return buf.Bytes()
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	if len(p) > w.n {
		p = p[:w.n]
	}
	w.n -= len(p)
	return len(p), nil
}

func TestHeader_RoundTrip(t *testing.T) {
	in := header{magic: Magic, version: VersionV1, flags: flagMetadataJSON, size: headerSize, metadataLen: 123}
	require.Equal(t, in, parseHeader(in.marshal()))

	sh := sectionHeader{kind: sectionMarkdown, flags: uint16(CodecLZ4) | sectionSizePrefix, length: 99}
	require.Equal(t, sh, parseSectionHeader(sh.marshal()))
	require.Equal(t, CodecLZ4, sh.codec())
	require.NoError(t, sh.check(sectionMarkdown))
}

func TestWriteRead_AllCodecs(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecZIP, CodecZstd, CodecLZ4, CodecBrotli} {
		t.Run(c.String(), func(t *testing.T) {
			in := sampleBundle()
			raw := encodeBundle(t, in, WithCodec(c))

			out, err := Read(bytes.NewReader(raw))
			require.NoError(t, err)
			require.Equal(t, in.Metadata, out.Metadata)
			require.Equal(t, in.Markdown, out.Markdown)
			require.Equal(t, in.Media, out.Media)
			require.NotEqual(t, [32]byte{}, out.Media.Items[0].SHA256)
		})
	}
}

func TestWriteRead_MixedCodecsAndNoMetadata(t *testing.T) {
	in := sampleBundle()
	in.Metadata = nil
	raw := encodeBundle(t, in, WithMarkdownCodec(CodecBrotli), WithMediaCodec(CodecNone))
	require.Zero(t, binary.LittleEndian.Uint16(raw[10:12]), "no metadata flag")

	out, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Nil(t, out.Metadata)
	require.Equal(t, in.Markdown.Files, out.Markdown.Files)
}

func TestRead_EmptyMediaSection(t *testing.T) {
	b := sampleBundle()
	b.Metadata = nil
	raw := encodeBundle(t, b, WithCodec(CodecNone))
	mdLen := binary.LittleEndian.Uint64(raw[headerSize+4:])
	cut := headerSize + sectionHeaderSize + int(mdLen)

	empty := sectionHeader{kind: sectionMedia, flags: uint16(CodecNone)}
	raw = append(raw[:cut:cut], empty.marshal()...)
	out, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Empty(t, out.Media.Items)
	require.Equal(t, VersionV1, out.Media.BundleVersion)
}

func TestRead_HeaderErrors(t *testing.T) {
	good := encodeBundle(t, sampleBundle())
	patch := func(off int, b ...byte) []byte {
		out := bytes.Clone(good)
		copy(out[off:], b)
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"Magic", patch(0, 'X'), ErrInvalidMagic},
		{"HeaderSize", patch(12, 33), ErrInvalidHeader},
		{"Version", patch(8, 2), ErrUnsupportedVersion},
		{"Reserved", patch(20, 1), ErrInvalidHeader},
		{"MetadataFlag", patch(10, 0), ErrInvalidHeader},
		{"MetadataJSON", patch(headerSize, '!'), ErrInvalidHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Read(bytes.NewReader(good), WithReadLimits(Limits{MaxMetadataLen: 4}))
	require.ErrorIs(t, err, ErrLimitExceeded)

	null := NewBundle()
	null.Markdown.Files = []MarkdownFile{{Path: "a.md"}}
	raw := encodeBundle(t, null)
	raw = append(append(raw[:headerSize:headerSize], "null"...), raw[headerSize:]...)
	binary.LittleEndian.PutUint16(raw[10:12], flagMetadataJSON)
	binary.LittleEndian.PutUint32(raw[16:20], 4)
	_, err = Read(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestRead_SectionErrors(t *testing.T) {
	b := sampleBundle()
	b.Metadata = nil
	good := encodeBundle(t, b, WithCodec(CodecZstd))
	sec := headerSize
	withFlags := func(flags uint16) []byte {
		out := bytes.Clone(good)
		binary.LittleEndian.PutUint16(out[sec+2:], flags)
		return out
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"WrongKind", func() []byte { out := bytes.Clone(good); out[sec] = 2; return out }(), ErrInvalidSection},
		{"Reserved", func() []byte { out := bytes.Clone(good); out[sec+12] = 1; return out }(), ErrInvalidSection},
		{"UnknownCodec", withFlags(0x9 | sectionSizePrefix), ErrInvalidSection},
		{"NoneWithPrefix", withFlags(uint16(CodecNone) | sectionSizePrefix), ErrInvalidSection},
		{"CompressedWithoutPrefix", withFlags(uint16(CodecZstd)), ErrInvalidSection},
		{"CorruptPayload", func() []byte { out := bytes.Clone(good); out[sec+sectionHeaderSize+8] ^= 0xff; return out }(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			require.Error(t, err)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
			}
		})
	}

	_, err := Read(bytes.NewReader(good), WithReadLimits(Limits{MaxMarkdownSectionLen: 8}))
	require.ErrorIs(t, err, ErrLimitExceeded)
	_, err = Read(bytes.NewReader(good), WithReadLimits(Limits{MaxMarkdownExpanded: 8}))
	require.ErrorIs(t, err, ErrLimitExceeded)
	_, err = Read(bytes.NewReader(good), WithReadLimits(Limits{MaxMediaSectionLen: 8}))
	require.ErrorIs(t, err, ErrLimitExceeded)
}

func TestRead_Truncated(t *testing.T) {
	good := encodeBundle(t, sampleBundle())
	for _, n := range []int{0, 10, headerSize, headerSize + 5, len(good) / 2, len(good) - 1} {
		_, err := Read(bytes.NewReader(good[:n]))
		require.Error(t, err, "truncated at %d", n)
	}
}

func TestRead_HashMismatch(t *testing.T) {
	b := sampleBundle()
	b.Media.Items[0].SHA256[0] = 0xaa
	raw := encodeBundle(t, b, WithVerifyHashesOnWrite(false), WithAutoPopulateSHA256(false))

	_, err := Read(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrValidation)

	out, err := Read(bytes.NewReader(raw), WithVerifyHashes(false))
	require.NoError(t, err)
	require.Equal(t, byte(0xaa), out.Media.Items[0].SHA256[0])
}

func TestWrite_Errors(t *testing.T) {
	require.ErrorIs(t, Write(io.Discard, nil), ErrValidation)

	b := sampleBundle()
	b.Metadata = map[string]any{"bad": func() {}}
	require.ErrorIs(t, Write(io.Discard, b), ErrValidation)

	b = sampleBundle()
	b.Metadata = map[string]any{"title": "long enough"}
	require.ErrorIs(t, Write(io.Discard, b, WithWriteLimits(Limits{MaxMetadataLen: 4})), ErrLimitExceeded)

	require.ErrorIs(t, Write(io.Discard, sampleBundle(), WithCodec(Codec(9))), ErrUnknownCodec)

	raw := encodeBundle(t, sampleBundle())
	for _, n := range []int{0, headerSize - 1, headerSize + 3, len(raw) - 1} {
		require.Error(t, Write(&failingWriter{n: n}, sampleBundle()), "writer fails after %d bytes", n)
	}
}

func TestWrite_KeepsZeroHashWithoutAutoPopulate(t *testing.T) {
	b := sampleBundle()
	require.NoError(t, Write(io.Discard, b, WithAutoPopulateSHA256(false)))
	require.Equal(t, [32]byte{}, b.Media.Items[0].SHA256)

	require.NoError(t, Write(io.Discard, b))
	require.Equal(t, b.Media.Items[0].digest(), b.Media.Items[0].SHA256)
}

func TestValidateBundle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *Bundle)
		want   error
	}{
		{"MarkdownVersion", func(b *Bundle) { b.Markdown.BundleVersion = 2 }, ErrValidation},
		{"NoFiles", func(b *Bundle) { b.Markdown.Files = nil }, ErrValidation},
		{"BadRoot", func(b *Bundle) { b.Markdown.RootPath = "/abs.md" }, ErrValidation},
		{"BadPath", func(b *Bundle) { b.Markdown.Files[1].Path = "../up.md" }, ErrValidation},
		{"DuplicatePath", func(b *Bundle) { b.Markdown.Files[1].Path = "docs/index.md" }, ErrValidation},
		{"InvalidUTF8", func(b *Bundle) { b.Markdown.Files[1].Content = []byte{0xff, 0xfe} }, ErrValidation},
		{"MediaVersion", func(b *Bundle) { b.Media.BundleVersion = 0 }, ErrValidation},
		{"EmptyMediaID", func(b *Bundle) { b.Media.Items[0].ID = " " }, ErrValidation},
		{"DuplicateMediaID", func(b *Bundle) { b.Media.Items = append(b.Media.Items, b.Media.Items[0]) }, ErrValidation},
		{"BadMediaPath", func(b *Bundle) { b.Media.Items[0].Path = `a\b.png` }, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBundle()
			tt.mutate(b)
			require.ErrorIs(t, validateBundle(b, DefaultLimits(), true), tt.want)
		})
	}

	require.ErrorIs(t, validateBundle(nil, DefaultLimits(), true), ErrValidation)
	require.ErrorIs(t, validateBundle(sampleBundle(), Limits{MaxMarkdownFiles: 1}.withDefaults(), true), ErrLimitExceeded)
	require.ErrorIs(t, validateBundle(sampleBundle(), Limits{MaxMediaItems: -1}.withDefaults(), true), ErrLimitExceeded)
	require.ErrorIs(t, validateBundle(sampleBundle(), Limits{MaxMarkdownFileSize: 4}.withDefaults(), true), ErrLimitExceeded)
	require.ErrorIs(t, validateBundle(sampleBundle(), Limits{MaxMediaItemSize: 2}.withDefaults(), true), ErrLimitExceeded)
}

func TestValidatePath(t *testing.T) {
	for _, p := range []string{"a.md", "docs/a.md", "a/b/c.png"} {
		require.NoError(t, validatePath(p), p)
	}
	for _, p := range []string{"", "  ", "/a.md", `a\b`, "a/../b", "./a", ".", "..", "../a"} {
		require.Error(t, validatePath(p), p)
	}
}

func TestLimits_WithDefaults(t *testing.T) {
	require.Equal(t, DefaultLimits(), Limits{}.withDefaults())
	l := Limits{MaxMediaItems: 3}.withDefaults()
	require.Equal(t, 3, l.MaxMediaItems)
	require.Equal(t, DefaultLimits().MaxMetadataLen, l.MaxMetadataLen)
}
