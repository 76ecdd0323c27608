package docx

import (
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/docdiff/core/xml"
)

// HeadingMaxLen is the exclusive upper bound, in characters, for a
// paragraph to count as a heading. Longer paragraphs are body text that
// happens to carry a heading style.
const HeadingMaxLen = 200

// literalText lists the local names of elements carrying document text.
// Word stores deleted runs in delText rather than t.
var literalText = []string{"t", "delText"}

// walkState is the accumulator threaded through the paragraph fold.
type walkState struct {
	section string
	index   int // 1-based position of the next paragraph
}

// paragraph is what one fold step contributes to the result.
type paragraph struct {
	text    string
	changes []change
}

// Walk folds over every paragraph of the body in document order and
// returns the reconstructed text and normalized items.
func Walk(body *xml.Document, comments CommentIndex) *Document {
	state := walkState{section: StartOfDocument, index: 1}

	var text strings.Builder
	var changes []change
	for _, p := range body.Descendants("p") {
		var para paragraph
		state, para = state.step(p, comments)
		text.WriteString(para.text)
		text.WriteByte('\n')
		changes = append(changes, para.changes...)
	}

	return &Document{
		FullText: text.String(),
		Items:    normalize(changes),
	}
}

// step processes one paragraph. It never mutates s.
func (s walkState) step(p *xml.Node, comments CommentIndex) (walkState, paragraph) {
	text := p.CollectText(literalText...)

	next := s
	if heading, ok := headingText(p, text); ok {
		next.section = heading
	}

	para := paragraph{text: text}
	para.changes = append(para.changes, revisions(p, "ins", Insertion, text, next)...)
	para.changes = append(para.changes, revisions(p, "del", Deletion, text, next)...)
	para.changes = append(para.changes, commentRefs(p, comments, text, next)...)

	next.index++
	return next, para
}

// headingText reports whether p qualifies as a section heading. The
// style check is a substring heuristic because style ids are neither
// stable across locales nor fixed by producing tools.
func headingText(p *xml.Node, text string) (string, bool) {
	props := p.Children("pPr")
	if len(props) == 0 {
		return "", false
	}
	pPr := props[0]

	styled := false
	for _, style := range pPr.Children("pStyle") {
		val := strings.ToLower(style.Attr("val"))
		if strings.Contains(val, "heading") || strings.Contains(val, "title") {
			styled = true
			break
		}
	}
	outlined := len(pPr.Children("outlineLvl")) > 0
	if !styled && !outlined {
		return "", false
	}

	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 || n >= HeadingMaxLen {
		return "", false
	}
	return trimmed, true
}

func revisions(p *xml.Node, local string, kind Kind, context string, s walkState) []change {
	var out []change
	for ordinal, w := range p.Descendants(local) {
		text := w.CollectText(literalText...)
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, change{
			kind:      kind,
			text:      text,
			context:   context,
			section:   s.section,
			author:    w.Attr("author"),
			date:      w.Attr("date"),
			paragraph: s.index,
			ordinal:   ordinal,
		})
	}
	return out
}

func commentRefs(p *xml.Node, comments CommentIndex, context string, s walkState) []change {
	var out []change
	for _, ref := range p.Descendants("commentReference") {
		id := ref.Attr("id")
		if id == "" {
			continue
		}
		body, ok := comments.Lookup(id)
		if !ok {
			continue
		}
		out = append(out, change{
			kind:      Comment,
			text:      CommentPlaceholder,
			context:   context,
			section:   s.section,
			comment:   body,
			paragraph: s.index,
			commentID: id,
		})
	}
	return out
}
