package mdocx

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/logicossoftware/go-mobi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// mediaScheme prefixes image destinations that name a media item by ID.
const mediaScheme = "mdocx://media/"

const xhtmlType = "application/xhtml+xml"

// Image types the MOBI builder turns into image records.
var rasterTypes = map[string]bool{
	"image/jpeg": true,
	"image/gif":  true,
	"image/png":  true,
	"image/bmp":  true,
	"image/webp": true,
}

type convertConfig struct {
	tocDepth int
	log      *slog.Logger
}

type ConvertOption func(*convertConfig)

// WithTOCDepth sets the deepest heading level that becomes a navigation
// entry, from 1 to 3. The default is 2.
func WithTOCDepth(n int) ConvertOption {
	return func(c *convertConfig) { c.tocDepth = min(max(n, 1), 3) }
}

func WithConvertLogger(l *slog.Logger) ConvertOption {
	return func(c *convertConfig) { c.log = l }
}

// converter holds the state shared by all files of one bundle.
type converter struct {
	bundle *Bundle
	cfg    convertConfig
	md     goldmark.Markdown

	docHrefs   map[string]string // markdown path -> spine href
	mediaHrefs map[string]string // media ID -> manifest href
	mediaPaths map[string]string // media path -> manifest href
}

// Convert maps b onto the MOBI source model. Each Markdown file becomes one
// XHTML spine document, RootPath first and the rest in bundle order.
// Headings down to the TOC depth become navigation entries, nested by level.
// Raster media items become manifest images. The metadata keys title,
// author, language, publisher, description, identifier, isbn, subject,
// date, rights and cover fill mobi.Metadata.
func Convert(b *Bundle, opts ...ConvertOption) (*mobi.Document, []*mobi.NavNode, error) {
	cfg := convertConfig{tocDepth: 2, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBundle(b, DefaultLimits(), false); err != nil {
		return nil, nil, err
	}

	c := &converter{
		bundle: b,
		cfg:    cfg,
		md: goldmark.New(
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
		docHrefs:   make(map[string]string, len(b.Markdown.Files)),
		mediaHrefs: make(map[string]string, len(b.Media.Items)),
		mediaPaths: make(map[string]string, len(b.Media.Items)),
	}
	doc := &mobi.Document{}
	c.addMedia(doc)

	files := c.readingOrder()
	for _, f := range files {
		c.docHrefs[f.Path] = xhtmlHref(f.Path)
	}

	var nav []*mobi.NavNode
	var firstHeading string
	for i, f := range files {
		body, entries, title, err := c.render(f)
		if err != nil {
			return nil, nil, err
		}
		if firstHeading == "" {
			firstHeading = title
		}
		href := c.docHrefs[f.Path]
		doc.Manifest = append(doc.Manifest, mobi.ManifestItem{
			ID:        fmt.Sprintf("text-%d", i+1),
			Href:      href,
			MediaType: xhtmlType,
			Data:      wrapXHTML(title, body),
		})
		doc.Spine = append(doc.Spine, mobi.SpineItem{Href: href})
		if len(entries) == 0 {
			entries = []*mobi.NavNode{{Title: fileTitle(f.Path, title), Href: href}}
		}
		nav = append(nav, entries...)
	}
	doc.Guide = []mobi.GuideRef{{Type: "text", Title: "Start", Href: doc.Spine[0].Href}}

	doc.Metadata = c.metadata(firstHeading)
	if doc.Metadata.CoverID != "" {
		doc.Guide = append(doc.Guide, mobi.GuideRef{Type: "cover", Title: "Cover", Href: doc.Spine[0].Href})
	}
	cfg.log.Debug("mdocx bundle converted",
		"documents", len(doc.Spine),
		"images", len(c.mediaHrefs),
		"nav_roots", len(nav))
	return doc, nav, nil
}

// readingOrder returns the markdown files with RootPath first.
func (c *converter) readingOrder() []MarkdownFile {
	files := c.bundle.Markdown.Files
	root := c.bundle.Markdown.RootPath
	out := make([]MarkdownFile, 0, len(files))
	for _, f := range files {
		if f.Path == root {
			out = append(out, f)
		}
	}
	for _, f := range files {
		if f.Path != root {
			out = append(out, f)
		}
	}
	return out
}

func (c *converter) addMedia(doc *mobi.Document) {
	for _, it := range c.bundle.Media.Items {
		mt := strings.ToLower(it.MIMEType)
		if mt == "" || mt == "application/octet-stream" {
			mt, _, _ = strings.Cut(http.DetectContentType(it.Data), ";")
		}
		if !rasterTypes[mt] {
			c.cfg.log.Debug("skipping media item", "id", it.ID, "mime", mt)
			continue
		}
		href := it.Path
		if href == "" {
			href = "media/" + it.ID
		}
		doc.Manifest = append(doc.Manifest, mobi.ManifestItem{ID: it.ID, Href: href, MediaType: mt, Data: it.Data})
		c.mediaHrefs[it.ID] = href
		if it.Path != "" {
			c.mediaPaths[it.Path] = href
		}
	}
}

// render converts one markdown file to an XHTML body fragment and collects
// its navigation entries. title is the first heading, if any.
func (c *converter) render(f MarkdownFile) (body []byte, nav []*mobi.NavNode, title string, err error) {
	src := f.Content
	root := c.md.Parser().Parse(text.NewReader(src))
	href := c.docHrefs[f.Path]

	// open[level-1] is the latest entry at that heading level.
	open := make([]*mobi.NavNode, c.cfg.tocDepth)
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Image:
			n.Destination = c.rewriteImage(f.Path, n.Destination)
		case *ast.Link:
			n.Destination = c.rewriteLink(f.Path, n.Destination)
		case *ast.Heading:
			label := strings.TrimSpace(string(n.Text(src)))
			if title == "" {
				title = label
			}
			if n.Level > c.cfg.tocDepth {
				return ast.WalkContinue, nil
			}
			entry := &mobi.NavNode{Title: label, Href: href}
			if id, ok := n.AttributeString("id"); ok {
				if b, ok := id.([]byte); ok && len(b) > 0 {
					entry.Href = href + "#" + string(b)
				}
			}
			c.attach(&nav, open, n.Level, entry)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, nil, "", err
	}

	var buf bytes.Buffer
	if err := c.md.Renderer().Render(&buf, src, root); err != nil {
		return nil, nil, "", fmt.Errorf("render %s: %w", f.Path, err)
	}
	return buf.Bytes(), nav, title, nil
}

// attach places entry under the nearest open heading of a lower level, or
// at the top when there is none.
func (c *converter) attach(top *[]*mobi.NavNode, open []*mobi.NavNode, level int, entry *mobi.NavNode) {
	var parent *mobi.NavNode
	for l := level - 1; l >= 1; l-- {
		if open[l-1] != nil {
			parent = open[l-1]
			break
		}
	}
	if parent == nil {
		*top = append(*top, entry)
	} else {
		parent.Children = append(parent.Children, entry)
	}
	open[level-1] = entry
	for l := level; l < len(open); l++ {
		open[l] = nil
	}
}

func (c *converter) rewriteImage(from string, dest []byte) []byte {
	d := string(dest)
	if id, ok := strings.CutPrefix(d, mediaScheme); ok {
		if href, ok := c.mediaHrefs[id]; ok {
			return []byte("/" + href)
		}
		c.cfg.log.Warn("image names unknown media item", "file", from, "id", id)
		return dest
	}
	if target, ok := resolveLocal(from, d); ok {
		if href, ok := c.mediaPaths[target]; ok {
			return []byte("/" + href)
		}
	}
	return dest
}

// rewriteLink points links between markdown files at their spine documents.
func (c *converter) rewriteLink(from string, dest []byte) []byte {
	p, frag, _ := strings.Cut(string(dest), "#")
	target, ok := resolveLocal(from, p)
	if !ok {
		return dest
	}
	href, ok := c.docHrefs[target]
	if !ok {
		return dest
	}
	if frag != "" {
		href += "#" + frag
	}
	return []byte("/" + href)
}

// resolveLocal resolves a relative reference against the file at from. It
// reports false for URLs with a scheme or host and for empty references.
func resolveLocal(from, ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p := u.Path
	if strings.HasPrefix(p, "/") {
		return path.Clean(strings.TrimPrefix(p, "/")), true
	}
	return path.Join(path.Dir(from), p), true
}

func xhtmlHref(p string) string {
	return strings.TrimSuffix(p, path.Ext(p)) + ".xhtml"
}

func fileTitle(p, heading string) string {
	if heading != "" {
		return heading
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

func wrapXHTML(title string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	buf.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml"><head><title>`)
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head><body>\n")
	buf.Write(body)
	buf.WriteString("</body></html>\n")
	return buf.Bytes()
}
