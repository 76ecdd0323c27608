// Package query implements a small filter language over extracted items.
//
// A filter is a whitespace-separated list of terms, all of which must hold:
//
//	type:insertion author~smith -section:"Start of Document" paragraph>=10
//
// A term is field, operator and value. ":" compares case-insensitively for
// equality and "~" for substring. The ordering operators apply only to
// paragraph. A leading "-" negates the term. Values containing spaces or
// operator characters must be double-quoted.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
)

// Field names accepted in a term.
const (
	FieldType      = "type"
	FieldAuthor    = "author"
	FieldSection   = "section"
	FieldText      = "text"
	FieldComment   = "comment"
	FieldParagraph = "paragraph"
)

// Op is a comparison operator.
type Op string

const (
	OpEqual    Op = ":"
	OpContains Op = "~"
	OpGE       Op = ">="
	OpLE       Op = "<="
	OpGT       Op = ">"
	OpLT       Op = "<"
)

//nolint:govet // participle grammar tags are not standard struct tags
type filterGrammar struct {
	Terms []*termGrammar `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type termGrammar struct {
	Negate bool   `@Neg?`
	Field  string `@Word`
	Op     string `@Op`
	Value  string `( @String | @Word )`
}

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Op", Pattern: `>=|<=|[:~<>]`},
	{Name: "Neg", Pattern: `-`},
	{Name: "Word", Pattern: `[^\s:~<>"\-][^\s:~<>"]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var filterParser = participle.MustBuild[filterGrammar](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
)

// Term is one parsed condition.
type Term struct {
	Negate bool
	Field  string
	Op     Op
	Value  string
	number int
}

// Filter is a conjunction of terms. The zero Filter matches every item.
type Filter struct {
	Terms []Term
}

// Parse compiles a filter expression. An empty or blank expression
// yields a filter that matches everything.
func Parse(s string) (*Filter, error) {
	if strings.TrimSpace(s) == "" {
		return &Filter{}, nil
	}

	parsed, err := filterParser.ParseString("", s)
	if err != nil {
		return nil, errors.NewParse("filter", s, err.Error())
	}

	f := &Filter{Terms: make([]Term, 0, len(parsed.Terms))}
	for _, g := range parsed.Terms {
		term, err := newTerm(g)
		if err != nil {
			return nil, err
		}
		f.Terms = append(f.Terms, term)
	}
	return f, nil
}

// MustParse is like Parse but panics on error. Intended for fixed
// expressions in code and tests.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func newTerm(g *termGrammar) (Term, error) {
	t := Term{
		Negate: g.Negate,
		Field:  strings.ToLower(g.Field),
		Op:     Op(g.Op),
		Value:  g.Value,
	}

	switch t.Field {
	case FieldParagraph:
		if t.Op == OpContains {
			return Term{}, errors.NewValidation(t.Field, "substring match is not supported for paragraph")
		}
		n, err := strconv.Atoi(t.Value)
		if err != nil {
			return Term{}, errors.NewValidation(t.Field, fmt.Sprintf("%q is not a number", t.Value))
		}
		t.number = n
	case FieldType:
		if t.Op != OpEqual {
			return Term{}, errors.NewValidation(t.Field, "only ':' is supported for type")
		}
		kind, ok := parseKind(t.Value)
		if !ok {
			return Term{}, errors.NewValidation(t.Field, fmt.Sprintf("unknown type %q", t.Value))
		}
		t.Value = string(kind)
	case FieldAuthor, FieldSection, FieldText, FieldComment:
		if t.Op != OpEqual && t.Op != OpContains {
			return Term{}, errors.NewValidation(t.Field, fmt.Sprintf("operator %q applies only to paragraph", t.Op))
		}
	default:
		return Term{}, errors.NewValidation("field", fmt.Sprintf("unknown field %q", g.Field))
	}
	return t, nil
}

func parseKind(s string) (docx.Kind, bool) {
	switch strings.ToLower(s) {
	case "insertion", "ins":
		return docx.Insertion, true
	case "deletion", "del":
		return docx.Deletion, true
	case "comment", "com":
		return docx.Comment, true
	}
	return "", false
}

// Match reports whether item satisfies every term.
func (f *Filter) Match(item docx.Item) bool {
	if f == nil {
		return true
	}
	for _, t := range f.Terms {
		if t.match(item) == t.Negate {
			return false
		}
	}
	return true
}

// Apply returns the items that match, preserving order.
func (f *Filter) Apply(items []docx.Item) []docx.Item {
	out := make([]docx.Item, 0, len(items))
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	return out
}

// String renders the filter back to its textual form.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

// String renders the term with its value quoted.
func (t Term) String() string {
	neg := ""
	if t.Negate {
		neg = "-"
	}
	return neg + t.Field + string(t.Op) + strconv.Quote(t.Value)
}

func (t Term) match(item docx.Item) bool {
	switch t.Field {
	case FieldType:
		return string(item.Kind) == t.Value
	case FieldAuthor:
		return t.compareText(item.AuthorOr(""))
	case FieldSection:
		return t.compareText(item.SectionContext)
	case FieldText:
		return t.compareText(item.Text)
	case FieldComment:
		if item.CommentContent == nil {
			return false
		}
		return t.compareText(*item.CommentContent)
	case FieldParagraph:
		return t.compareNumber(item.ParagraphIndex)
	}
	return false
}

func (t Term) compareText(s string) bool {
	if t.Op == OpContains {
		return strings.Contains(strings.ToLower(s), strings.ToLower(t.Value))
	}
	return strings.EqualFold(s, t.Value)
}

func (t Term) compareNumber(n int) bool {
	switch t.Op {
	case OpEqual:
		return n == t.number
	case OpGE:
		return n >= t.number
	case OpLE:
		return n <= t.number
	case OpGT:
		return n > t.number
	case OpLT:
		return n < t.number
	}
	return false
}
