package docx

import (
	"fmt"
	"strings"
)

// Kind identifies the type of editorial change.
type Kind string

const (
	// Insertion is text added under revision tracking.
	Insertion Kind = "INSERTION"
	// Deletion is text removed under revision tracking.
	Deletion Kind = "DELETION"
	// Comment is a reviewer comment anchored in the body.
	Comment Kind = "COMMENT"
)

const (
	// StartOfDocument is the section context before any heading is seen.
	StartOfDocument = "Start of Document"
	// CommentPlaceholder is the item text of comment items.
	CommentPlaceholder = "Text in vicinity of comment"
	// UnknownAuthor is used when a revision carries no author.
	UnknownAuthor = "Unknown"
)

// Item is one extracted change.
type Item struct {
	ID             string  `json:"id"`
	Kind           Kind    `json:"type"`
	Text           string  `json:"text"`
	Context        string  `json:"context"`
	SectionContext string  `json:"sectionContext"`
	CommentContent *string `json:"commentContent,omitempty"`
	Author         *string `json:"author,omitempty"`
	Date           *string `json:"date,omitempty"`
	ParagraphIndex int     `json:"paragraphIndex"`
}

// AuthorOr returns the author or fallback when none is set.
func (it Item) AuthorOr(fallback string) string {
	if it.Author == nil || *it.Author == "" {
		return fallback
	}
	return *it.Author
}

// Content returns the comment text for comments and the tracked text otherwise.
func (it Item) Content() string {
	if it.Kind == Comment && it.CommentContent != nil {
		return *it.CommentContent
	}
	return it.Text
}

// Document is the result of a parse: the reconstructed body text and the
// changes in document order.
type Document struct {
	FullText string `json:"fullText"`
	Items    []Item `json:"items"`
}

// Paragraphs returns the number of paragraphs that produced FullText.
func (d *Document) Paragraphs() int {
	return strings.Count(d.FullText, "\n")
}

// Count returns the number of items of the given kind.
func (d *Document) Count(kind Kind) int {
	n := 0
	for _, it := range d.Items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// change is the raw record emitted by the walker before normalization.
// Identity inputs are kept separate so the normalizer can build ids.
type change struct {
	kind      Kind
	text      string
	context   string
	section   string
	author    string
	date      string
	comment   string
	paragraph int // 1-based
	ordinal   int // position among wrappers of the same kind in the paragraph
	commentID string
}

// normalize finalizes raw changes into Items, preserving order.
func normalize(changes []change) []Item {
	items := make([]Item, 0, len(changes))
	for _, c := range changes {
		items = append(items, c.item())
	}
	return items
}

func (c change) item() Item {
	it := Item{
		ID:             c.id(),
		Kind:           c.kind,
		Text:           c.text,
		Context:        c.context,
		SectionContext: strings.TrimSpace(c.section),
		ParagraphIndex: c.paragraph,
	}
	if it.SectionContext == "" {
		it.SectionContext = StartOfDocument
	}

	switch c.kind {
	case Comment:
		if it.Text == "" {
			it.Text = CommentPlaceholder
		}
		content := c.comment
		it.CommentContent = &content
	default:
		author := strings.TrimSpace(c.author)
		if author == "" {
			author = UnknownAuthor
		}
		it.Author = &author
		if date := strings.TrimSpace(c.date); date != "" {
			it.Date = &date
		}
	}
	return it
}

// id derives the stable identifier. Revisions carry no stable id in the
// markup, so theirs is positional; comments reuse the comment table id.
func (c change) id() string {
	switch c.kind {
	case Insertion:
		return fmt.Sprintf("ins-%d-%d", c.paragraph-1, c.ordinal)
	case Deletion:
		return fmt.Sprintf("del-%d-%d", c.paragraph-1, c.ordinal)
	default:
		return "com-" + c.commentID
	}
}
