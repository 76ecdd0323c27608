// Package docx extracts tracked changes and comments from WordprocessingML
// packages.
//
// A parse opens the package, builds XML trees for the body and the
// optional comment table, indexes the comments and folds over the body
// paragraphs in document order. Each paragraph contributes its plain text
// (deleted runs included, as a reviewer reads it) and zero or more items:
// insertions, then deletions, then resolved comment references.
//
// Parsing is pure: it touches no filesystem or network and shares no
// state between calls, so callers may parse several documents
// concurrently and discard abandoned results without cleanup.
package docx

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/xml"
)

// DefaultMaxMemberSize bounds the decompressed size of any single part.
const DefaultMaxMemberSize int64 = 64 << 20

// Options configures a parse.
type Options struct {
	Logger        *slog.Logger
	MaxMemberSize int64
}

// Option mutates Options.
type Option func(*Options)

// WithLogger sets the logger used for diagnostics. Parses are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithMaxMemberSize sets the decompressed size limit per part.
func WithMaxMemberSize(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxMemberSize = n
		}
	}
}

// DefaultOptions returns options with a discarding logger.
func DefaultOptions() Options {
	return Options{
		Logger:        slog.New(slog.DiscardHandler),
		MaxMemberSize: DefaultMaxMemberSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.MaxMemberSize <= 0 {
		o.MaxMemberSize = DefaultMaxMemberSize
	}
	return o
}

// Parse extracts the document text and change items from a package.
// name is the display name of the source and appears in every error.
//
// The result is all-or-nothing: an unreadable archive, a missing body or
// malformed body markup returns an error and no items. A malformed or
// absent comment table only means there are no comment items.
func Parse(data []byte, name string, opts ...Option) (*Document, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	pkg, err := LoadPackage(data, name, o)
	if err != nil {
		return nil, err
	}

	body, err := xml.Parse(pkg.Body.Data)
	if err != nil {
		return nil, errors.NewMarkupParse(name, pkg.Body.Name, err)
	}

	comments := CommentIndex{}
	if pkg.Comments != nil {
		tree, err := xml.Parse(pkg.Comments.Data)
		if err != nil {
			o.Logger.Warn("comment table malformed, ignoring comments",
				"file", name, "member", pkg.Comments.Name, "error", err)
		} else {
			comments = BuildCommentIndex(tree)
		}
	}

	doc := Walk(body, comments)
	o.Logger.Debug("document parsed",
		"file", name,
		"paragraphs", doc.Paragraphs(),
		"comments_indexed", len(comments),
		"items", len(doc.Items))
	return doc, nil
}

// ParseReader reads r fully and parses it.
func ParseReader(r io.Reader, name string, opts ...Option) (*Document, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return Parse(buf.Bytes(), name, opts...)
}
