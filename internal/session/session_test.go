package session

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/docdiff/core/docx"
	docerrors "github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/internal/compare"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
)

func str(s string) *string { return &s }

func sampleState() *State {
	return &State{
		OldDocText: "Old text\n",
		NewDocText: "New text\n",
		OldName:    "v1.docx",
		NewName:    "v2.docx",
		ExtractedItems: []docx.Item{
			{ID: "ins-0-0", Kind: docx.Insertion, Text: "added", Author: str("Alice"), SectionContext: docx.StartOfDocument},
			{ID: "com-4", Kind: docx.Comment, Text: docx.CommentPlaceholder, CommentContent: str("why?"), SectionContext: "Terms"},
		},
		AnalysisResults: Results{
			{ID: "ins-0-0", Result: prompt.AnalysisResult{ItemID: "ins-0-0", Status: prompt.StatusAccepted, Confidence: 1}},
			{ID: "com-4", Result: prompt.AnalysisResult{ItemID: "com-4", Status: prompt.StatusNotActioned, Confidence: 1}},
		},
		Context:        &prompt.Context{ReportStyle: prompt.StyleBalanced},
		OldFingerprint: "aaaa",
		NewFingerprint: "bbbb",
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openStore(t)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	ctx := context.Background()

	key, err := s.Save(ctx, DefaultKey, sampleState())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if key != DefaultKey {
		t.Errorf("key = %q", key)
	}

	got, err := s.Load(ctx, DefaultKey)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil")
	}
	if got.LastUpdated != 1700000000000 {
		t.Errorf("LastUpdated = %d", got.LastUpdated)
	}
	if len(got.ExtractedItems) != 2 || *got.ExtractedItems[1].CommentContent != "why?" {
		t.Errorf("items = %+v", got.ExtractedItems)
	}
	if r, ok := got.AnalysisResults.Get("com-4"); !ok || r.Status != prompt.StatusNotActioned {
		t.Errorf("com-4 result = %+v, %v", r, ok)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := openStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Errorf("Load = %v, %v; want nil, nil", got, err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	if _, err := OpenReadOnly(filepath.Join(dir, "missing.db")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenReadOnly(missing) error = %v, want fs.ErrNotExist", err)
	}

	path := filepath.Join(dir, "sessions.db")
	rw, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := rw.Save(ctx, DefaultKey, sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rw.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer ro.Close()

	got, err := ro.Load(ctx, DefaultKey)
	if err != nil || got == nil {
		t.Fatalf("Load = %v, %v", got, err)
	}
	if got.NewName != "v2.docx" {
		t.Errorf("NewName = %q", got.NewName)
	}
	if list, err := ro.List(ctx); err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
	if _, err := ro.Save(ctx, "other", sampleState()); err == nil {
		t.Error("Save through a read-only store should fail")
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	st := sampleState()
	if _, err := s.Save(ctx, "k", st); err != nil {
		t.Fatal(err)
	}
	st.NewDocText = "changed"
	if _, err := s.Save(ctx, "k", st); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Load(ctx, "k")
	if got.NewDocText != "changed" {
		t.Errorf("NewDocText = %q", got.NewDocText)
	}
	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Errorf("List = %d sessions, want 1", len(list))
	}
}

func TestStoreNewKeyAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tick := int64(1000)
	s.now = func() time.Time { tick += 1000; return time.UnixMilli(tick) }

	first, err := s.Save(ctx, "", sampleState())
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 36 {
		t.Errorf("generated key = %q", first)
	}
	second, _ := s.Save(ctx, "", &State{ExtractedItems: []docx.Item{}, AnalysisResults: Results{}})

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List = %d sessions", len(list))
	}
	if list[0].Key != second || list[1].Key != first {
		t.Errorf("order = %s, %s; want newest first", list[0].Key, list[1].Key)
	}
	if list[1].Items != 2 || list[1].Results != 2 || list[1].OldName != "v1.docx" || list[1].NewFingerprint != "bbbb" {
		t.Errorf("summary = %+v", list[1])
	}
}

func TestStoreClear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	s.Save(ctx, DefaultKey, sampleState())
	if err := s.Clear(ctx, DefaultKey); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got, _ := s.Load(ctx, DefaultKey); got != nil {
		t.Error("session still present after Clear")
	}
	if err := s.Clear(ctx, DefaultKey); err != nil {
		t.Errorf("Clear of missing key = %v", err)
	}
}

func TestStoreSaveNil(t *testing.T) {
	s := openStore(t)
	_, err := s.Save(context.Background(), "k", nil)
	var ve *docerrors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestExportImport(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "xz"
		}
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Export(&buf, sampleState(), compress); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if compress == bytes.HasPrefix(buf.Bytes(), []byte("{")) {
				t.Errorf("compress=%v but output starts with %q", compress, buf.Bytes()[:1])
			}

			got, err := Import(&buf)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if got.OldDocText != "Old text\n" || len(got.AnalysisResults) != 2 {
				t.Errorf("imported = %+v", got)
			}
			if got.AnalysisResults[0].ID != "ins-0-0" {
				t.Errorf("result order changed: %+v", got.AnalysisResults)
			}
		})
	}
}

func TestExportEncodesResultPairs(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, sampleState(), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\"analysisResults\": [\n    [\n      \"ins-0-0\",") {
		t.Errorf("results not encoded as [id, result] pairs:\n%s", out)
	}
	if !strings.Contains(out, "\n  \"oldDocText\"") {
		t.Error("output not indented")
	}
}

func TestImportRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"no items", `{"analysisResults":[]}`},
		{"no results", `{"extractedItems":[]}`},
		{"null results", `{"extractedItems":[],"analysisResults":null}`},
		{"bad pair", `{"extractedItems":[],"analysisResults":[["only-id"]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(strings.NewReader(tt.data))
			var pe *docerrors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want ParseError", err)
			}
			if !strings.Contains(pe.Message, "Invalid session file format") {
				t.Errorf("message = %q", pe.Message)
			}
		})
	}
}

func TestImportAcceptsEmptyCollections(t *testing.T) {
	st, err := Import(strings.NewReader(`{"oldDocText":"a","extractedItems":[],"analysisResults":[]}`))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if st.OldDocText != "a" {
		t.Errorf("OldDocText = %q", st.OldDocText)
	}
}

func TestExportFileName(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("X", -5*3600))
	if got := ExportFileName(at, false); got != "docdiff-session-2026-03-10.json" {
		t.Errorf("plain name = %q", got)
	}
	if got := ExportFileName(at, true); got != "docdiff-session-2026-03-10.json.xz" {
		t.Errorf("xz name = %q", got)
	}
}

func TestReattachResults(t *testing.T) {
	st := sampleState()
	items := []docx.Item{st.ExtractedItems[1], {ID: "del-2-0", Kind: docx.Deletion}}

	if dropped := st.ReattachResults(items); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(st.AnalysisResults) != 1 || st.AnalysisResults[0].ID != "com-4" {
		t.Errorf("results = %+v", st.AnalysisResults)
	}
	if len(st.ExtractedItems) != 2 {
		t.Errorf("items not replaced")
	}
}

func TestStateSet(t *testing.T) {
	st := &State{}
	st.Set(prompt.AnalysisResult{ItemID: "a", Status: prompt.StatusPending})
	st.Set(prompt.AnalysisResult{ItemID: "b", Status: prompt.StatusPending})
	st.Set(prompt.AnalysisResult{ItemID: "a", Status: prompt.StatusAccepted})

	if len(st.AnalysisResults) != 2 || st.AnalysisResults[0].Result.Status != prompt.StatusAccepted {
		t.Errorf("results = %+v", st.AnalysisResults)
	}
	if !st.SetNotes("b", "check later") || st.SetNotes("zzz", "x") {
		t.Error("SetNotes mismatch")
	}
	if st.AnalysisResults.Map()["b"].UserNotes != "check later" {
		t.Error("notes not stored")
	}
}

func TestExportEmptyStateImports(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, &State{OldDocText: "x"}, true); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(&buf); err != nil {
		t.Errorf("Import of empty export failed: %v", err)
	}
}

func TestFromComparison(t *testing.T) {
	c := &compare.Comparison{
		OldName:         "a.docx",
		NewName:         "b.docx",
		OldText:         "old",
		NewText:         "new",
		StakeholderText: "priorities",
		Items:           []docx.Item{{ID: "ins-0-0", Kind: docx.Insertion}},
		OldFingerprint:  "f1",
		NewFingerprint:  "f2",
	}
	st := FromComparison(c, &prompt.Context{FocusArea: "Liability"})

	if st.OldName != "a.docx" || st.StakeholderDocText != "priorities" || len(st.ExtractedItems) != 1 {
		t.Errorf("state = %+v", st)
	}
	if st.AnalysisResults == nil || len(st.AnalysisResults) != 0 {
		t.Errorf("results = %#v, want empty non-nil", st.AnalysisResults)
	}
	if !st.Matches(c) {
		t.Error("state should match its comparison")
	}
	c.NewFingerprint = "other"
	if st.Matches(c) {
		t.Error("state should not match a different new document")
	}
}
