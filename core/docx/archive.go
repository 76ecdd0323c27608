package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/xml"
)

// Well-known part names of a WordprocessingML package.
const (
	BodyMember     = "word/document.xml"
	CommentsMember = "word/comments.xml"
	rootRels       = "_rels/.rels"
)

// Relationship type suffixes shared by transitional and strict OOXML.
const (
	officeDocumentRel = "/officeDocument"
	commentsRel       = "/comments"
)

// Member is a named payload inside the package.
type Member struct {
	Name string
	Data []byte
}

// Package holds the parts of a package the extractor needs.
type Package struct {
	Name     string  // display name of the source file
	Body     Member  // required body markup
	Comments *Member // optional comment table
}

// LoadPackage opens data as a zip package and reads the body and comment
// table. Only the body is required; comment table failures leave
// Comments nil.
func LoadPackage(data []byte, name string, opts Options) (*Package, error) {
	opts = opts.withDefaults()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewArchiveFormat(name, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := files[f.Name]; !dup {
			files[f.Name] = f
		}
	}

	bodyName := BodyMember
	if _, ok := files[bodyName]; !ok {
		bodyName = resolveRel(files, rootRels, "", officeDocumentRel, opts)
	}
	bodyFile, ok := files[bodyName]
	if !ok {
		return nil, errors.NewMissingMember(name, BodyMember)
	}

	body, err := readMember(bodyFile, opts.MaxMemberSize)
	if err != nil {
		return nil, errors.NewArchiveFormat(name, err)
	}

	pkg := &Package{
		Name: name,
		Body: Member{Name: bodyName, Data: body},
	}

	commentsName := CommentsMember
	if _, ok := files[commentsName]; !ok {
		commentsName = resolveRel(files, partRels(bodyName), path.Dir(bodyName), commentsRel, opts)
	}
	if f, ok := files[commentsName]; ok {
		data, err := readMember(f, opts.MaxMemberSize)
		if err != nil {
			opts.Logger.Warn("comment table unreadable, ignoring comments",
				"file", name, "member", commentsName, "error", err)
		} else {
			pkg.Comments = &Member{Name: commentsName, Data: data}
		}
	}

	return pkg, nil
}

func readMember(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("read %s: member exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

// partRels returns the relationships part name for a package part,
// e.g. word/document.xml -> word/_rels/document.xml.rels.
func partRels(part string) string {
	return path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
}

// resolveRel finds the target of the first internal relationship whose
// type ends in typeSuffix. Targets are resolved against baseDir unless
// absolute. It returns "" when nothing matches.
func resolveRel(files map[string]*zip.File, relsName, baseDir, typeSuffix string, opts Options) string {
	f, ok := files[relsName]
	if !ok {
		return ""
	}
	data, err := readMember(f, opts.MaxMemberSize)
	if err != nil {
		return ""
	}
	tree, err := xml.Parse(data)
	if err != nil {
		opts.Logger.Debug("relationships part unparsable", "member", relsName, "error", err)
		return ""
	}

	for _, rel := range tree.Descendants("Relationship") {
		if strings.EqualFold(rel.Attr("TargetMode"), "External") {
			continue
		}
		if !strings.HasSuffix(rel.Attr("Type"), typeSuffix) {
			continue
		}
		target := rel.Attr("Target")
		if target == "" {
			continue
		}
		if strings.HasPrefix(target, "/") {
			return strings.TrimPrefix(path.Clean(target), "/")
		}
		return strings.TrimPrefix(path.Join(baseDir, target), "/")
	}
	return ""
}
