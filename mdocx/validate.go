package mdocx

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

func validateBundle(b *Bundle, limits Limits, verifyHashes bool) error {
	if b == nil {
		return fmt.Errorf("%w: bundle is nil", ErrValidation)
	}
	if err := validateMarkdown(b.Markdown, limits); err != nil {
		return err
	}
	return validateMedia(b.Media, limits, verifyHashes)
}

func validateMarkdown(md MarkdownBundle, limits Limits) error {
	if md.BundleVersion != VersionV1 {
		return fmt.Errorf("%w: Markdown.BundleVersion must be %d", ErrValidation, VersionV1)
	}
	if len(md.Files) == 0 {
		return fmt.Errorf("%w: Markdown.Files must not be empty", ErrValidation)
	}
	if len(md.Files) > limits.MaxMarkdownFiles {
		return fmt.Errorf("%w: %d markdown files", ErrLimitExceeded, len(md.Files))
	}
	if md.RootPath != "" {
		if err := validatePath(md.RootPath); err != nil {
			return fmt.Errorf("%w: Markdown.RootPath: %v", ErrValidation, err)
		}
	}
	seen := make(map[string]struct{}, len(md.Files))
	for i, f := range md.Files {
		if err := validatePath(f.Path); err != nil {
			return fmt.Errorf("%w: markdown file %d path: %v", ErrValidation, i, err)
		}
		if _, ok := seen[f.Path]; ok {
			return fmt.Errorf("%w: duplicate markdown path %q", ErrValidation, f.Path)
		}
		seen[f.Path] = struct{}{}
		if uint64(len(f.Content)) > limits.MaxMarkdownFileSize {
			return fmt.Errorf("%w: markdown file %q is %d bytes", ErrLimitExceeded, f.Path, len(f.Content))
		}
		if !utf8.Valid(f.Content) {
			return fmt.Errorf("%w: markdown file %q is not valid UTF-8", ErrValidation, f.Path)
		}
	}
	return nil
}

func validateMedia(media MediaBundle, limits Limits, verifyHashes bool) error {
	if media.BundleVersion != VersionV1 {
		return fmt.Errorf("%w: Media.BundleVersion must be %d", ErrValidation, VersionV1)
	}
	if len(media.Items) > limits.MaxMediaItems {
		return fmt.Errorf("%w: %d media items", ErrLimitExceeded, len(media.Items))
	}
	seen := make(map[string]struct{}, len(media.Items))
	for i, it := range media.Items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w: media item %d has empty ID", ErrValidation, i)
		}
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: duplicate media ID %q", ErrValidation, it.ID)
		}
		seen[it.ID] = struct{}{}
		if it.Path != "" {
			if err := validatePath(it.Path); err != nil {
				return fmt.Errorf("%w: media item %q path: %v", ErrValidation, it.ID, err)
			}
		}
		if uint64(len(it.Data)) > limits.MaxMediaItemSize {
			return fmt.Errorf("%w: media item %q is %d bytes", ErrLimitExceeded, it.ID, len(it.Data))
		}
		if verifyHashes && it.SHA256 != ([32]byte{}) {
			sum := it.digest()
			if subtle.ConstantTimeCompare(sum[:], it.SHA256[:]) != 1 {
				return fmt.Errorf("%w: media item %q SHA256 mismatch", ErrValidation, it.ID)
			}
		}
	}
	return nil
}

// validatePath accepts clean, relative, forward-slash paths that stay
// inside the container.
func validatePath(p string) error {
	clean := path.Clean(p)
	switch {
	case strings.TrimSpace(p) == "":
		return errors.New("path is empty")
	case strings.HasPrefix(p, "/"):
		return errors.New("path must not be absolute")
	case strings.Contains(p, `\`):
		return errors.New("path must use forward slashes")
	case clean != p:
		return fmt.Errorf("path must be normalized: %q", clean)
	case clean == ".":
		return errors.New("path must not be current directory")
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return errors.New("path must not escape")
	}
	return nil
}
