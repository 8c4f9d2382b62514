package mobi

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("mobi: validation failed")
	ErrLimitExceeded          = errors.New("mobi: limit exceeded")
	ErrUnsupportedCompression = errors.New("mobi: unsupported compression")
	ErrUnsupportedIndex       = errors.New("mobi: unsupported index layout")
	ErrIndexTooLarge          = errors.New("mobi: index record too large")
	ErrInvalidLayout          = errors.New("mobi: invalid navigation layout")
	ErrInvalidVWI             = errors.New("mobi: invalid variable-width integer")
	ErrInvalidDatabase        = errors.New("mobi: invalid palm database")
)

// LayoutError reports a periodical index whose sections or articles do not
// tile the document body. It is fatal and wraps ErrInvalidLayout.
type LayoutError struct {
	Kind   string // "section" or "article"
	Index  int
	Offset int
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("%v: %s %d at offset %d: %s", ErrInvalidLayout, e.Kind, e.Index, e.Offset, e.Reason)
}

func (e *LayoutError) Unwrap() error { return ErrInvalidLayout }

// WarningKind classifies a recoverable build anomaly.
type WarningKind int

const (
	WarnUnresolvedLink WarningKind = iota + 1
	WarnMissingTOCTarget
	WarnBadImage
	WarnEmptyIndex
)

func (k WarningKind) String() string {
	switch k {
	case WarnUnresolvedLink:
		return "unresolved-link"
	case WarnMissingTOCTarget:
		return "missing-toc-target"
	case WarnBadImage:
		return "bad-image"
	case WarnEmptyIndex:
		return "empty-index"
	}
	return "unknown"
}

// Warning is a per-node anomaly that did not stop the build.
type Warning struct {
	Kind    WarningKind
	Subject string // href, TOC title or manifest href the warning is about
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Kind, w.Subject, w.Message)
}

// WarningHandler receives warnings in the order they are raised.
type WarningHandler func(Warning)
