package mobi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDocument(t *testing.T) {
	valid := func() *Document {
		return &Document{
			Manifest: []ManifestItem{
				docItem("text/c1.xhtml", "<p>a</p>"),
				{ID: "cover", Href: "img/cover.jpg", MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}},
				{ID: "css", Href: "style.css", MediaType: "text/css"},
			},
			Spine:    []SpineItem{{Href: "text/c1.xhtml"}},
			Metadata: Metadata{CoverID: "cover"},
		}
	}
	require.NoError(t, validateDocument(valid(), nil))

	tests := []struct {
		name   string
		mutate func(d *Document) []*NavNode
	}{
		{"EmptySpine", func(d *Document) []*NavNode { d.Spine = nil; return nil }},
		{"AbsoluteHref", func(d *Document) []*NavNode { d.Manifest[2].Href = "/style.css"; return nil }},
		{"EscapingHref", func(d *Document) []*NavNode { d.Manifest[2].Href = "../style.css"; return nil }},
		{"UncleanHref", func(d *Document) []*NavNode { d.Manifest[2].Href = "a/./style.css"; return nil }},
		{"Backslash", func(d *Document) []*NavNode { d.Manifest[2].Href = `a\style.css`; return nil }},
		{"DuplicateHref", func(d *Document) []*NavNode { d.Manifest[2].Href = "img/cover.jpg"; return nil }},
		{"DuplicateID", func(d *Document) []*NavNode { d.Manifest[2].ID = "cover"; return nil }},
		{"SpineNotInManifest", func(d *Document) []*NavNode { d.Spine[0].Href = "missing.xhtml"; return nil }},
		{"SpineNotDocument", func(d *Document) []*NavNode { d.Spine[0].Href = "style.css"; return nil }},
		{"DuplicateSpine", func(d *Document) []*NavNode { d.Spine = append(d.Spine, d.Spine[0]); return nil }},
		{"CoverMissing", func(d *Document) []*NavNode { d.Metadata.CoverID = "nope"; return nil }},
		{"CoverNotImage", func(d *Document) []*NavNode { d.Metadata.CoverID = "css"; return nil }},
		{"NilNavNode", func(d *Document) []*NavNode { return []*NavNode{nil} }},
		{"NilNestedNavNode", func(d *Document) []*NavNode {
			return []*NavNode{{Title: "Part", Href: "text/c1.xhtml", Children: []*NavNode{
				{Title: "One", Href: "text/c1.xhtml", Children: []*NavNode{nil}},
			}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			nav := tt.mutate(d)
			require.ErrorIs(t, validateDocument(d, nav), ErrValidation)
		})
	}
}

func TestLimits_WithDefaults(t *testing.T) {
	require.Equal(t, defaultLimits(), Limits{}.withDefaults())

	l := Limits{MaxRecords: 10, MaxLabelLength: 3}.withDefaults()
	require.Equal(t, 10, l.MaxRecords)
	require.Equal(t, 3, l.MaxLabelLength)
	require.Equal(t, defaultLimits().MaxIndexRecordSize, l.MaxIndexRecordSize)
	require.Equal(t, defaultLimits().MaxCNCXRecordSize, l.MaxCNCXRecordSize)
	require.Equal(t, defaultLimits().MaxContentLength, l.MaxContentLength)
}

func TestWarningKind_String(t *testing.T) {
	require.Equal(t, "unresolved-link", WarnUnresolvedLink.String())
	require.Equal(t, "missing-toc-target", WarnMissingTOCTarget.String())
	require.Equal(t, "bad-image", WarnBadImage.String())
	require.Equal(t, "empty-index", WarnEmptyIndex.String())
	require.Equal(t, "unknown", WarningKind(0).String())
	require.Equal(t, "bad-image: x.png: broken", Warning{Kind: WarnBadImage, Subject: "x.png", Message: "broken"}.String())
}
