package query

import (
	"errors"
	"testing"

	"github.com/FocuswithJustin/docdiff/core/docx"
	docerrors "github.com/FocuswithJustin/docdiff/core/errors"
)

func ptr(s string) *string { return &s }

func sampleItems() []docx.Item {
	return []docx.Item{
		{ID: "ins-0-0", Kind: docx.Insertion, Text: "the Vendor", SectionContext: docx.StartOfDocument, Author: ptr("Alice Smith"), ParagraphIndex: 1},
		{ID: "del-3-0", Kind: docx.Deletion, Text: "sixty days", SectionContext: "Payment Terms", Author: ptr("Bob"), ParagraphIndex: 4},
		{ID: "com-7", Kind: docx.Comment, Text: docx.CommentPlaceholder, SectionContext: "Payment Terms", CommentContent: ptr("Is this enforceable?"), ParagraphIndex: 5},
		{ID: "ins-11-2", Kind: docx.Insertion, Text: "indemnify", SectionContext: "Liability", Author: ptr("bob"), ParagraphIndex: 12},
	}
}

func ids(items []docx.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"ins-0-0", "del-3-0", "com-7", "ins-11-2"}},
		{"   ", []string{"ins-0-0", "del-3-0", "com-7", "ins-11-2"}},
		{"type:insertion", []string{"ins-0-0", "ins-11-2"}},
		{"type:DEL", []string{"del-3-0"}},
		{"type:comment", []string{"com-7"}},
		{"author:bob", []string{"del-3-0", "ins-11-2"}},
		{"author~smith", []string{"ins-0-0"}},
		{`section:"payment terms"`, []string{"del-3-0", "com-7"}},
		{"-section:Liability", []string{"ins-0-0", "del-3-0", "com-7"}},
		{"text~vendor", []string{"ins-0-0"}},
		{"comment~enforceable", []string{"com-7"}},
		{"-comment~enforceable", []string{"ins-0-0", "del-3-0", "ins-11-2"}},
		{"paragraph>=5", []string{"com-7", "ins-11-2"}},
		{"paragraph>4 paragraph<12", []string{"com-7"}},
		{"paragraph<=4", []string{"ins-0-0", "del-3-0"}},
		{"paragraph:12", []string{"ins-11-2"}},
		{"type:insertion author:bob", []string{"ins-11-2"}},
		{`text:"sixty days"`, []string{"del-3-0"}},
		{"author:nobody", []string{}},
	}

	items := sampleItems()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.expr, err)
			}
			got := ids(f.Apply(items))
			if len(got) != len(tt.want) {
				t.Fatalf("Apply = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Apply = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		expr       string
		validation bool
	}{
		{"colour:red", true},
		{"type~ins", true},
		{"type:edit", true},
		{"paragraph:abc", true},
		{"paragraph~3", true},
		{"author>3", true},
		{"author", false},
		{`text:"unterminated`, false},
		{":value", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if err == nil {
				t.Fatalf("Parse(%q) should fail", tt.expr)
			}
			var ve *docerrors.ValidationError
			if got := errors.As(err, &ve); got != tt.validation {
				t.Errorf("validation error = %v, want %v (%v)", got, tt.validation, err)
			}
		})
	}
}

func TestNilFilterMatchesEverything(t *testing.T) {
	var f *Filter
	if !f.Match(sampleItems()[0]) {
		t.Error("nil filter should match")
	}
	if f.String() != "" {
		t.Errorf("String = %q", f.String())
	}
}

func TestCommentFieldSkipsRevisions(t *testing.T) {
	f := MustParse(`comment:""`)
	for _, it := range sampleItems() {
		if it.Kind != docx.Comment && f.Match(it) {
			t.Errorf("%s has no comment content and should not match", it.ID)
		}
	}
}

func TestString(t *testing.T) {
	f := MustParse(`-author~smith paragraph>=3 type:ins`)
	want := `-author~"smith" paragraph>="3" type:"INSERTION"`
	if f.String() != want {
		t.Errorf("String = %q, want %q", f.String(), want)
	}

	again, err := Parse(f.String())
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if again.String() != want {
		t.Errorf("re-parsed String = %q", again.String())
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse("nope:1")
}
