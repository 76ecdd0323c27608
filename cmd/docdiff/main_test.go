package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/internal/session"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// Test helper functions

func writeDocx(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for member, content := range members {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// reviewedDocx has a heading, then one paragraph with an insertion by
// Alice, a deletion by Bob and comment 5.
func reviewedDocx(t *testing.T, dir string) string {
	t.Helper()
	body := `<w:document ` + wordNS + `><w:body>` +
		`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Payment</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Pay </w:t></w:r>` +
		`<w:ins w:id="1" w:author="Alice"><w:r><w:t>promptly</w:t></w:r></w:ins>` +
		`<w:del w:id="2" w:author="Bob"><w:r><w:delText>later</w:delText></w:r></w:del>` +
		`<w:r><w:commentReference w:id="5"/></w:r></w:p>` +
		`</w:body></w:document>`
	comments := `<w:comments ` + wordNS + `>` +
		`<w:comment w:id="5"><w:p><w:r><w:t>Define promptly</w:t></w:r></w:p></w:comment></w:comments>`
	return writeDocx(t, dir, "old.docx", map[string]string{
		"word/document.xml": body,
		"word/comments.xml": comments,
	})
}

func plainDocx(t *testing.T, dir, name, text string) string {
	t.Helper()
	return writeDocx(t, dir, name, map[string]string{
		"word/document.xml": `<w:document ` + wordNS + `><w:body><w:p><w:r><w:t>` + text +
			`</w:t></w:r></w:p></w:body></w:document>`,
	})
}

// runCLI executes the CLI against a database in dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	args = append([]string{"--db", filepath.Join(dir, "sessions.db"), "--log-level", "error"}, args...)
	err := run(context.Background(), args, &out, strings.NewReader(""))
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dir, args...)
	if err != nil {
		t.Fatalf("docdiff %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestExtractText(t *testing.T) {
	dir := t.TempDir()
	path := reviewedDocx(t, dir)

	out := mustRun(t, dir, "extract", path, "--text")

	for _, want := range []string{
		"old.docx",
		"2 paragraphs, 1 insertions, 1 deletions, 1 comments",
		"ins-1-0", "del-1-0", "com-5",
		"Alice", "Bob", "Unknown",
		`"Define promptly"`,
		"Pay promptlylater\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExtractJSONWithFilter(t *testing.T) {
	dir := t.TempDir()
	path := reviewedDocx(t, dir)

	out := mustRun(t, dir, "extract", path, "--format", "json", "--where", "type:comment")

	var got struct {
		Name        string `json:"name"`
		Fingerprint string `json:"fingerprint"`
		FullText    string `json:"fullText"`
		Items       []struct {
			ID             string `json:"id"`
			CommentContent string `json:"commentContent"`
			SectionContext string `json:"sectionContext"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Name != "old.docx" || len(got.Fingerprint) != 64 {
		t.Errorf("name=%q fingerprint=%q", got.Name, got.Fingerprint)
	}
	if got.FullText != "" {
		t.Error("fullText should be omitted without --text")
	}
	if len(got.Items) != 1 || got.Items[0].ID != "com-5" {
		t.Fatalf("items = %+v, want only com-5", got.Items)
	}
	if got.Items[0].CommentContent != "Define promptly" || got.Items[0].SectionContext != "Payment" {
		t.Errorf("item = %+v", got.Items[0])
	}
}

func TestExtractPackageWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	path := reviewedDocx(t, dir)
	renamed := filepath.Join(dir, "old.bin")
	if err := os.Rename(path, renamed); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, dir, "extract", renamed)
	for _, want := range []string{"old.bin", "ins-1-0", "com-5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	notZip := filepath.Join(dir, "broken.docx")
	os.WriteFile(notZip, []byte("plain text"), 0o644)
	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("plain text"), 0o644)
	good := reviewedDocx(t, dir)

	tests := []struct {
		name   string
		args   []string
		target error
	}{
		{"corrupt archive", []string{"extract", notZip}, errors.ErrArchiveFormat},
		{"not a docx", []string{"extract", txt}, errors.ErrUnsupported},
		{"missing file", []string{"extract", filepath.Join(dir, "absent.docx")}, nil},
		{"bad filter", []string{"extract", good, "--where", "colour:red"}, errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dir, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error %v does not match %v", err, tt.target)
			}
		})
	}

	_, err := runCLI(t, dir, "extract", notZip)
	if err == nil || !strings.Contains(err.Error(), "broken.docx") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestCompareSavesSession(t *testing.T) {
	dir := t.TempDir()
	oldPath := reviewedDocx(t, dir)
	newPath := plainDocx(t, dir, "new.docx", "Pay promptly")

	out := mustRun(t, dir, "compare", oldPath, newPath, "--session", "contract")
	for _, want := range []string{"old: old.docx", "new: new.docx", "3 items to assess", "saved session contract"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, dir, "session", "list")
	if !strings.Contains(out, "contract") || !strings.Contains(out, "old.docx") {
		t.Errorf("list output:\n%s", out)
	}

	out = mustRun(t, dir, "session", "show", "contract")
	st, err := session.Decode([]byte(out))
	if err != nil {
		t.Fatalf("show output is not a session: %v", err)
	}
	if len(st.ExtractedItems) != 3 || st.NewDocText != "Pay promptly\n" {
		t.Errorf("session = %d items, new text %q", len(st.ExtractedItems), st.NewDocText)
	}
}

func TestCompareNothingToAnalyze(t *testing.T) {
	dir := t.TempDir()
	oldPath := plainDocx(t, dir, "old.docx", "Same")
	newPath := plainDocx(t, dir, "new.docx", "Same")

	out := mustRun(t, dir, "compare", oldPath, newPath)
	if !strings.Contains(out, "nothing to analyze") {
		t.Errorf("output:\n%s", out)
	}
}

func TestComparePrompts(t *testing.T) {
	dir := t.TempDir()
	oldPath := reviewedDocx(t, dir)
	newPath := plainDocx(t, dir, "new.docx", "Pay promptly")
	stakeholder := plainDocx(t, dir, "priorities.docx", "Prompt payment matters most")

	out := mustRun(t, dir, "compare", oldPath, newPath,
		"--stakeholder", stakeholder, "--prompt", "--context-focus", "payment terms")

	var prompts struct {
		ChangeAnalysis  *struct{ Model string } `json:"changeAnalysis"`
		Commentary      *struct{ Model string } `json:"commentary"`
		IntelligentDiff *struct {
			Parts []struct{ Text string } `json:"parts"`
		} `json:"intelligentDiff"`
	}
	if err := json.Unmarshal([]byte(out), &prompts); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if prompts.ChangeAnalysis == nil || prompts.IntelligentDiff == nil {
		t.Fatal("expected change analysis and intelligent diff requests")
	}
	if prompts.Commentary != nil {
		t.Error("no commentary document was given")
	}
	first := prompts.IntelligentDiff.Parts[0].Text
	if !strings.Contains(first, "payment terms") || !strings.Contains(first, "Prompt payment matters most") {
		t.Errorf("context not rendered into the diff request:\n%s", first)
	}
}

func TestSessionApplyAndReport(t *testing.T) {
	dir := t.TempDir()
	oldPath := reviewedDocx(t, dir)
	newPath := plainDocx(t, dir, "new.docx", "Pay promptly")
	mustRun(t, dir, "compare", oldPath, newPath, "--session", "k")

	answer := filepath.Join(dir, "answer.json")
	os.WriteFile(answer, []byte(`[
		{"itemId":"ins-1-0","status":"ACCEPTED","explanation":"kept","confidence":0.4},
		{"itemId":"ghost","status":"REJECTED","explanation":"no such item"}
	]`), 0o644)

	out := mustRun(t, dir, "session", "apply", "k", "--changes", answer, "--note", "ins-1-0=check with <legal>")
	if !strings.Contains(out, "ignored 1 results") {
		t.Errorf("apply output:\n%s", out)
	}

	st, err := session.Decode([]byte(mustRun(t, dir, "session", "show", "k")))
	if err != nil {
		t.Fatal(err)
	}
	r, ok := st.AnalysisResults.Get("ins-1-0")
	if !ok || r.Status != "ACCEPTED" || r.Confidence != 1.0 || r.UserNotes != "check with <legal>" {
		t.Errorf("result = %+v, %v", r, ok)
	}
	if _, ok := st.AnalysisResults.Get("ghost"); ok {
		t.Error("result for an unknown item was kept")
	}

	html := filepath.Join(dir, "report.html")
	mustRun(t, dir, "report", "--session", "k", "--out", html, "--old-name", "Draft 1")
	data, err := os.ReadFile(html)
	if err != nil {
		t.Fatal(err)
	}
	page := string(data)
	if !strings.Contains(page, "Draft 1") || !strings.Contains(page, "check with &lt;legal&gt;") {
		t.Errorf("report missing content")
	}
	if strings.Contains(page, "<legal>") {
		t.Error("user notes were not escaped")
	}
}

func TestSessionApplyRejectsBadAnswer(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, dir, "compare", reviewedDocx(t, dir), plainDocx(t, dir, "new.docx", "x"), "--session", "k")

	answer := filepath.Join(dir, "answer.json")
	os.WriteFile(answer, []byte(`[{"itemId":"ins-1-0","status":"MAYBE"}]`), 0o644)

	_, err := runCLI(t, dir, "session", "apply", "k", "--changes", answer)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
	if err == nil || !strings.Contains(err.Error(), "answer.json") {
		t.Errorf("error should name the answer file: %v", err)
	}
}

func TestSessionExportImport(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "xz"
		}
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			mustRun(t, dir, "compare", reviewedDocx(t, dir), plainDocx(t, dir, "new.docx", "x"), "--session", "src")

			file := filepath.Join(dir, "export.json")
			args := []string{"session", "export", "src", "--out", file}
			if compress {
				args = append(args, "--compress")
			}
			mustRun(t, dir, args...)

			out := mustRun(t, dir, "session", "import", file, "--key", "copy")
			if !strings.Contains(out, "imported 3 items and 0 results into session copy") {
				t.Errorf("import output: %s", out)
			}

			mustRun(t, dir, "session", "clear", "src")
			list := mustRun(t, dir, "session", "list")
			if strings.Contains(list, "src") || !strings.Contains(list, "copy") {
				t.Errorf("list after clear:\n%s", list)
			}
		})
	}
}

func TestSessionImportInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.json")
	os.WriteFile(file, []byte(`{"oldDocText":"only"}`), 0o644)

	_, err := runCLI(t, dir, "session", "import", file)
	if err == nil || !strings.Contains(err.Error(), "Invalid session file format") {
		t.Errorf("err = %v", err)
	}
}

func TestMissingSession(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"session", "show", "absent"},
		{"report", "--session", "absent"},
		{"session", "export", "absent", "--out=-"},
	} {
		_, err := runCLI(t, dir, args...)
		if !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("%v: err = %v, want not found", args, err)
		}
	}
}

func TestReadCommandsDoNotCreateDatabase(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"list", []string{"session", "list"}, "no saved sessions"},
		{"show", []string{"session", "show"}, ""},
		{"report", []string{"report"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			out, err := runCLI(t, dir, tt.args...)
			if tt.want != "" {
				if err != nil {
					t.Fatalf("run: %v", err)
				}
				if !strings.Contains(out, tt.want) {
					t.Errorf("output = %q, want %q", out, tt.want)
				}
			} else if !errors.Is(err, errors.ErrNotFound) {
				t.Errorf("err = %v, want not found", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "sessions.db")); !os.IsNotExist(err) {
				t.Errorf("database created by a read command: %v", err)
			}
		})
	}
}

func TestServeConfig(t *testing.T) {
	cmd := ServeCmd{
		Port:      9000,
		APIKey:    "0123456789abcdef",
		RateLimit: 30,
		RateBurst: 5,
		Origins:   []string{"https://review.example"},
		TLSCert:   "cert.pem",
		TLSKey:    "key.pem",
	}
	cfg := cmd.config()
	if cfg.Port != 9000 || cfg.RateLimitRequests != 30 || cfg.RateLimitBurst != 5 {
		t.Errorf("config = %+v", cfg)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "0123456789abcdef" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.TLS.Enabled || cfg.TLS.CertFile != "cert.pem" {
		t.Errorf("tls = %+v", cfg.TLS)
	}

	if (&ServeCmd{}).config().Auth.Enabled {
		t.Error("auth enabled without a key")
	}
}

func TestVersion(t *testing.T) {
	out := mustRun(t, t.TempDir(), "version")
	if !strings.HasPrefix(out, "docdiff "+version) {
		t.Errorf("version output: %q", out)
	}
}

func TestInvalidFlags(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, dir, "extract", "x.docx", "--format", "yaml"); err == nil {
		t.Error("expected enum error")
	}
	if _, err := runCLI(t, dir, "frobnicate"); err == nil {
		t.Error("expected unknown command error")
	}
}
