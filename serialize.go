package mobi

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

const fileposPlaceholder = "0000000000"

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// linkPatch is a filepos placeholder waiting for the offset of key.
type linkPatch struct {
	pos int
	key string
}

// serialized is the flattened markup plus everything later phases need
// to locate content inside it.
type serialized struct {
	text      []byte
	idOffsets map[string]int // href or href#id -> offset
	breaks    []int
	bodyStart int
	bodyEnd   int
}

type serializer struct {
	doc    *Document
	images map[string]int
	cfg    *buildConfig

	buf       bytes.Buffer
	idOffsets map[string]int
	patches   []linkPatch
	breaks    []int
	inSpine   map[string]bool

	// anchorOffset is where an id seen now would point: the start of the
	// previous element when no text has been written since, else -1.
	anchorOffset int
	bodyStart    int
	bodyEnd      int
}

// serializeDocument flattens the spine into one markup stream and resolves
// every hyperlink placeholder against the final offsets.
func serializeDocument(doc *Document, images map[string]int, cfg *buildConfig) (*serialized, error) {
	s := &serializer{
		doc:          doc,
		images:       images,
		cfg:          cfg,
		idOffsets:    make(map[string]int),
		inSpine:      make(map[string]bool, len(doc.Spine)),
		anchorOffset: -1,
	}
	for _, si := range doc.Spine {
		s.inSpine[si.Href] = true
	}

	s.buf.WriteString("<html>")
	s.serializeHead()
	if err := s.serializeBody(); err != nil {
		return nil, err
	}
	s.buf.WriteString("</html>")
	if s.buf.Len() > cfg.limits.MaxContentLength {
		return nil, fmt.Errorf("%w: markup is %d bytes", ErrLimitExceeded, s.buf.Len())
	}
	s.fixupLinks()

	return &serialized{
		text:      s.buf.Bytes(),
		idOffsets: s.idOffsets,
		breaks:    s.breaks,
		bodyStart: s.bodyStart,
		bodyEnd:   s.bodyEnd,
	}, nil
}

func (s *serializer) serializeHead() {
	s.buf.WriteString("<head>")
	if len(s.doc.Guide) > 0 {
		s.serializeGuide()
	}
	s.buf.WriteString("</head>")
}

func (s *serializer) serializeGuide() {
	s.buf.WriteString("<guide>")
	for _, ref := range s.doc.Guide {
		p, _ := splitFragment(normalizeHref(ref.Href))
		if it, ok := s.doc.itemByHref(p); !ok || !it.isDocument() {
			continue
		}
		s.buf.WriteString(`<reference type="`)
		s.writeText(ref.Type, true)
		s.buf.WriteString(`" `)
		if ref.Title != "" {
			s.buf.WriteString(`title="`)
			s.writeText(ref.Title, true)
			s.buf.WriteString(`" `)
		}
		s.serializeHref(ref.Href, "")
		// Readers ignore the reference without the space.
		s.buf.WriteString(" />")
	}
	s.buf.WriteString("</guide>")
}

func (s *serializer) serializeBody() error {
	s.buf.WriteString("<body>")
	s.bodyStart = s.buf.Len()
	s.anchorOffset = s.buf.Len()

	// "Start Reading" link for readers that look for one at body start.
	for _, ref := range s.doc.Guide {
		if ref.Type == "text" {
			s.buf.WriteString("<a ")
			s.serializeHref(ref.Href, "")
			s.buf.WriteString(" />")
			break
		}
	}

	order := make([]SpineItem, 0, len(s.doc.Spine))
	for _, si := range s.doc.Spine {
		if !si.NonLinear {
			order = append(order, si)
		}
	}
	for _, si := range s.doc.Spine {
		if si.NonLinear {
			order = append(order, si)
		}
	}
	for _, si := range order {
		if err := s.serializeItem(si); err != nil {
			return err
		}
	}
	s.bodyEnd = s.buf.Len()
	s.buf.WriteString("</body>")
	return nil
}

func (s *serializer) serializeItem(si SpineItem) error {
	item, _ := s.doc.itemByHref(si.Href)
	if si.NonLinear {
		s.breaks = append(s.breaks, s.buf.Len()-1)
	}
	s.idOffsets[item.Href] = s.buf.Len()
	s.anchorOffset = s.buf.Len()

	root, err := parseMarkup(item.Data)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrValidation, item.Href, err)
	}
	body := findElement(root, "body")
	if body == nil {
		body = root
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			s.serializeElem(c, item.Href)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				s.anchorOffset = -1
				s.writeText(c.Data, false)
			}
		}
	}
	s.buf.WriteString("<mbp:pagebreak/>")
	return nil
}

func (s *serializer) serializeElem(n *html.Node, base string) {
	tag := n.Data
	// Foreign content has no meaning to the reader.
	if foreignElements[tag] {
		return
	}

	attrs := make([]html.Attribute, 0, len(n.Attr))
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" {
			key := base + "#" + a.Val
			offset := s.anchorOffset
			if offset < 0 {
				offset = s.buf.Len()
			}
			s.idOffsets[key] = offset
			continue
		}
		attrs = append(attrs, a)
	}
	if s.anchorOffset >= 0 && tag == "a" && len(attrs) == 0 && n.FirstChild == nil {
		return
	}
	s.anchorOffset = s.buf.Len()

	s.buf.WriteByte('<')
	s.buf.WriteString(tag)
	for _, a := range attrs {
		if a.Namespace != "" {
			continue
		}
		s.buf.WriteByte(' ')
		switch a.Key {
		case "href":
			if s.serializeHref(a.Val, base) {
				continue
			}
		case "src":
			if idx, ok := s.images[resolveHref(base, normalizeHref(a.Val))]; ok {
				fmt.Fprintf(&s.buf, `recindex="%05d"`, idx)
				continue
			}
		}
		s.buf.WriteString(a.Key)
		s.buf.WriteString(`="`)
		s.writeText(a.Val, true)
		s.buf.WriteByte('"')
	}

	if n.FirstChild == nil {
		s.buf.WriteString("/>")
		return
	}
	s.buf.WriteByte('>')
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			s.serializeElem(c, base)
		case html.TextNode:
			if c.Data != "" {
				s.anchorOffset = -1
				s.writeText(c.Data, false)
			}
		}
	}
	s.buf.WriteString("</")
	s.buf.WriteString(tag)
	s.buf.WriteByte('>')
}

// serializeHref writes a filepos placeholder for href when it points into
// the spine. It reports false, writing nothing, for any other target.
func (s *serializer) serializeHref(href, base string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return false
	}
	p, frag := splitFragment(normalizeHref(href))
	if p != "" && base != "" {
		p = resolveHref(base, p)
	}
	switch {
	case p != "":
		if _, ok := s.doc.itemByHref(p); !ok || !s.inSpine[p] {
			return false
		}
	case base != "":
		p = base
	default:
		return false
	}
	key := p
	if frag != "" {
		key = p + "#" + frag
	}
	s.buf.WriteString("filepos=")
	s.patches = append(s.patches, linkPatch{pos: s.buf.Len(), key: key})
	s.buf.WriteString(fileposPlaceholder)
	return true
}

// fixupLinks replaces every placeholder with its target offset. A missing
// fragment falls back to the start of its document.
func (s *serializer) fixupLinks() {
	raw := s.buf.Bytes()
	for _, p := range s.patches {
		offset, ok := s.idOffsets[p.key]
		if !ok {
			s.cfg.warn(Warning{Kind: WarnUnresolvedLink, Subject: p.key, Message: "hyperlink target not found"})
			doc, _ := splitFragment(p.key)
			if offset, ok = s.idOffsets[doc]; !ok {
				offset = s.bodyStart
			}
		}
		copy(raw[p.pos:p.pos+len(fileposPlaceholder)], fmt.Sprintf("%010d", offset))
	}
}

func (s *serializer) writeText(text string, quot bool) {
	if quot {
		s.buf.WriteString(attrEscaper.Replace(text))
		return
	}
	s.buf.WriteString(textEscaper.Replace(text))
}

// Elements written without a closing tag in HTML documents.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var foreignElements = map[string]bool{"svg": true, "math": true}

// parseMarkup builds an element tree from XHTML the way an XML parser
// would: "/>" closes any element, and an end tag closes the nearest open
// element of that name. Unmatched end tags are dropped and elements still
// open at the end are closed.
func parseMarkup(data []byte) (*html.Node, error) {
	root := &html.Node{Type: html.DocumentNode}
	open := []*html.Node{root}
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return root, nil
		case html.TextToken:
			tok := z.Token()
			open[len(open)-1].AppendChild(&html.Node{Type: html.TextNode, Data: tok.Data})
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			el := &html.Node{Type: html.ElementNode, Data: tok.Data, Attr: tok.Attr}
			open[len(open)-1].AppendChild(el)
			if tt == html.StartTagToken && !voidElements[tok.Data] {
				open = append(open, el)
			}
		case html.EndTagToken:
			tok := z.Token()
			for i := len(open) - 1; i > 0; i-- {
				if open[i].Data == tok.Data {
					open = open[:i]
					break
				}
			}
		}
	}
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// normalizeHref undoes percent-encoding so hrefs compare equal to manifest
// paths.
func normalizeHref(href string) string {
	if u, err := url.PathUnescape(href); err == nil {
		return u
	}
	return href
}

func splitFragment(href string) (string, string) {
	p, frag, _ := strings.Cut(href, "#")
	return p, frag
}

// resolveHref resolves ref against the document at base.
func resolveHref(base, ref string) string {
	if ref == "" {
		return base
	}
	if strings.HasPrefix(ref, "/") {
		return path.Clean(strings.TrimPrefix(ref, "/"))
	}
	return path.Join(path.Dir(base), ref)
}

// offsetOf returns the content offset of a navigation href.
func (s *serialized) offsetOf(href string) (int, bool) {
	p, frag := splitFragment(normalizeHref(href))
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if frag != "" {
		key += "#" + frag
	}
	off, ok := s.idOffsets[key]
	return off, ok
}
