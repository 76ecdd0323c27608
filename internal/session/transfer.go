package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
)

// MaxImportSize bounds the decoded size of an imported session.
const MaxImportSize = 256 << 20

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// invalidFormat is the message reported for files that are not sessions.
const invalidFormat = "Invalid session file format"

// ExportFileName returns the download name for a session exported at t.
func ExportFileName(t time.Time, compress bool) string {
	name := "docdiff-session-" + t.UTC().Format("2006-01-02") + ".json"
	if compress {
		name += ".xz"
	}
	return name
}

// Export writes st as indented JSON, xz-compressed when compress is set.
// Nil collections are written as empty arrays so the file can be imported.
func Export(w io.Writer, st *State, compress bool) error {
	out := *st
	if out.ExtractedItems == nil {
		out.ExtractedItems = []docx.Item{}
	}
	if out.AnalysisResults == nil {
		out.AnalysisResults = Results{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}

	if !compress {
		_, err = w.Write(data)
		return err
	}

	xw, err := xz.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "xz writer")
	}
	if _, err := xw.Write(data); err != nil {
		xw.Close()
		return errors.Wrap(err, "compress session")
	}
	return xw.Close()
}

// Import reads a session written by Export, detecting compression from
// the stream itself. Files lacking extractedItems or analysisResults are
// rejected.
func Import(r io.Reader) (*State, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(xzMagic)); bytes.Equal(head, xzMagic) {
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, errors.NewParse("session", "", "xz: "+err.Error())
		}
		src = xr
	}

	data, err := io.ReadAll(io.LimitReader(src, MaxImportSize+1))
	if err != nil {
		return nil, errors.NewParse("session", "", err.Error())
	}
	if len(data) > MaxImportSize {
		return nil, errors.NewParse("session", "", "session file too large")
	}
	return Decode(data)
}

// Decode parses and validates a JSON session.
func Decode(data []byte) (*State, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.NewParse("session", "", invalidFormat)
	}
	for _, field := range []string{"extractedItems", "analysisResults"} {
		raw, ok := fields[field]
		if !ok || string(raw) == "null" {
			return nil, errors.NewParse("session", "", invalidFormat)
		}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.NewParse("session", "", invalidFormat+": "+err.Error())
	}
	return &st, nil
}
