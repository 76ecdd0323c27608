package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"testing"
)

const wNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// buildPackage zips the given members in name order.
func buildPackage(t *testing.T, members map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(members[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// body wraps paragraphs in a document part.
func body(paras ...string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wNS + `><w:body>` + strings.Join(paras, "") + `</w:body></w:document>`
}

// commentTable builds a comments part from id/text pairs.
func commentTable(pairs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:comments ` + wNS + `>`)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, `<w:comment w:id="%s" w:author="Reviewer"><w:p><w:r><w:t>%s</w:t></w:r></w:p></w:comment>`, pairs[i], pairs[i+1])
	}
	b.WriteString(`</w:comments>`)
	return b.String()
}

func p(inner ...string) string {
	return `<w:p>` + strings.Join(inner, "") + `</w:p>`
}

func styled(style string, inner ...string) string {
	return `<w:p><w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>` + strings.Join(inner, "") + `</w:p>`
}

func run(text string) string {
	return `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r>`
}

func ins(author, date, text string) string {
	attrs := ""
	if author != "" {
		attrs += ` w:author="` + author + `"`
	}
	if date != "" {
		attrs += ` w:date="` + date + `"`
	}
	return `<w:ins w:id="1"` + attrs + `>` + run(text) + `</w:ins>`
}

func del(author, text string) string {
	return `<w:del w:id="2" w:author="` + author + `"><w:r><w:delText xml:space="preserve">` + text + `</w:delText></w:r></w:del>`
}

func commentRef(id string) string {
	return `<w:r><w:commentReference w:id="` + id + `"/></w:r>`
}

// docxBytes builds a minimal package with a body and optional comments.
func docxBytes(t *testing.T, bodyXML, commentsXML string) []byte {
	t.Helper()
	members := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		BodyMember:            bodyXML,
	}
	if commentsXML != "" {
		members[CommentsMember] = commentsXML
	}
	return buildPackage(t, members)
}
