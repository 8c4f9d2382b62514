package mobi

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

func validateDocument(doc *Document, nav []*NavNode) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}
	if len(doc.Spine) == 0 {
		return fmt.Errorf("%w: spine must not be empty", ErrValidation)
	}
	seenHrefs := make(map[string]struct{}, len(doc.Manifest))
	seenIDs := make(map[string]struct{}, len(doc.Manifest))
	for i, it := range doc.Manifest {
		if err := validateContainerPath(it.Href); err != nil {
			return fmt.Errorf("%w: manifest item %d href: %v", ErrValidation, i, err)
		}
		if _, ok := seenHrefs[it.Href]; ok {
			return fmt.Errorf("%w: duplicate manifest href %q", ErrValidation, it.Href)
		}
		seenHrefs[it.Href] = struct{}{}
		if it.ID == "" {
			continue
		}
		if _, ok := seenIDs[it.ID]; ok {
			return fmt.Errorf("%w: duplicate manifest id %q", ErrValidation, it.ID)
		}
		seenIDs[it.ID] = struct{}{}
	}
	seenSpine := make(map[string]struct{}, len(doc.Spine))
	for _, si := range doc.Spine {
		it, ok := doc.itemByHref(si.Href)
		if !ok {
			return fmt.Errorf("%w: spine href %q not in manifest", ErrValidation, si.Href)
		}
		if !it.isDocument() {
			return fmt.Errorf("%w: spine href %q has media type %q", ErrValidation, si.Href, it.MediaType)
		}
		if _, ok := seenSpine[si.Href]; ok {
			return fmt.Errorf("%w: duplicate spine href %q", ErrValidation, si.Href)
		}
		seenSpine[si.Href] = struct{}{}
	}
	if id := doc.Metadata.CoverID; id != "" {
		it, ok := doc.itemByID(id)
		if !ok {
			return fmt.Errorf("%w: cover id %q not in manifest", ErrValidation, id)
		}
		if !it.isRasterImage() {
			return fmt.Errorf("%w: cover %q is not a raster image", ErrValidation, id)
		}
	}
	return validateNav(nav, "")
}

// validateNav rejects nil nodes anywhere in the tree. where names the
// position, e.g. "1.0.2".
func validateNav(nodes []*NavNode, where string) error {
	for i, n := range nodes {
		pos := strconv.Itoa(i)
		if where != "" {
			pos = where + "." + pos
		}
		if n == nil {
			return fmt.Errorf("%w: navigation node %s is nil", ErrValidation, pos)
		}
		if err := validateNav(n.Children, pos); err != nil {
			return err
		}
	}
	return nil
}

func validateContainerPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("path must not be absolute")
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("path must use forward slashes")
	}
	clean := path.Clean(p)
	if clean != p {
		return fmt.Errorf("path must be normalized: %q", clean)
	}
	if clean == "." {
		return fmt.Errorf("path must not be current directory")
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path must not escape")
	}
	return nil
}
