// Package compare extracts the documents of a comparison concurrently.
//
// A comparison has an old and a new version of a document and, optionally,
// a stakeholder priorities document and a commentary (comment response)
// document. Items always come from the old version: they are the changes
// and comments whose fate in the new version is being assessed.
package compare

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/fingerprint"
	"github.com/FocuswithJustin/docdiff/internal/validation"
)

// Source is a named document payload.
type Source struct {
	Name string
	Data []byte
}

// Inputs names the documents of a comparison. Old and New are required.
type Inputs struct {
	Old         *Source
	New         *Source
	Stakeholder *Source
	Commentary  *Source
}

// Comparison is the extracted content of every input.
type Comparison struct {
	OldName         string      `json:"oldName"`
	NewName         string      `json:"newName"`
	OldText         string      `json:"oldDocText"`
	NewText         string      `json:"newDocText"`
	StakeholderText string      `json:"stakeholderDocText,omitempty"`
	CommentaryText  string      `json:"commentaryDocText,omitempty"`
	Items           []docx.Item `json:"extractedItems"`
	OldFingerprint  string      `json:"oldFingerprint"`
	NewFingerprint  string      `json:"newFingerprint"`
}

// Empty reports whether the old document has no tracked changes or
// comments, meaning there is nothing to analyze. This is not an error.
func (c *Comparison) Empty() bool {
	return len(c.Items) == 0
}

// Parser extracts one document. The default is docx.Parse; the API
// substitutes a caching parser.
type Parser func(ctx context.Context, src *Source) (*docx.Document, error)

// Options configures Run.
type Options struct {
	Logger *slog.Logger
	Parse  Parser
}

// DefaultParser parses src with the docx engine.
func DefaultParser(logger *slog.Logger) Parser {
	return func(_ context.Context, src *Source) (*docx.Document, error) {
		return docx.Parse(src.Data, src.Name, docx.WithLogger(logger))
	}
}

// Run validates inputs and parses every supplied document concurrently.
// The first structural error cancels the rest and is returned as is.
func Run(ctx context.Context, in Inputs, opts Options) (*Comparison, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Parse == nil {
		opts.Parse = DefaultParser(opts.Logger)
	}

	if err := in.validate(); err != nil {
		return nil, err
	}

	var oldDoc, newDoc, stakeholder, commentary *docx.Document

	g, gctx := errgroup.WithContext(ctx)
	parse := func(src *Source, dst **docx.Document) {
		if src == nil {
			return
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := opts.Parse(gctx, src)
			if err != nil {
				return err
			}
			*dst = doc
			return nil
		})
	}
	parse(in.Old, &oldDoc)
	parse(in.New, &newDoc)
	parse(in.Stakeholder, &stakeholder)
	parse(in.Commentary, &commentary)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Comparison{
		OldName:        in.Old.Name,
		NewName:        in.New.Name,
		OldText:        oldDoc.FullText,
		NewText:        newDoc.FullText,
		Items:          oldDoc.Items,
		OldFingerprint: fingerprint.Of(in.Old.Data),
		NewFingerprint: fingerprint.Of(in.New.Data),
	}
	if stakeholder != nil {
		c.StakeholderText = stakeholder.FullText
	}
	if commentary != nil {
		c.CommentaryText = commentary.FullText
	}

	opts.Logger.Debug("comparison extracted",
		"old", c.OldName,
		"new", c.NewName,
		"items", len(c.Items))
	return c, nil
}

func (in Inputs) validate() error {
	if in.Old == nil {
		return errors.NewValidation("old", "the old document is required")
	}
	if in.New == nil {
		return errors.NewValidation("new", "the new document is required")
	}
	for _, src := range []*Source{in.Old, in.New, in.Stakeholder, in.Commentary} {
		if src == nil {
			continue
		}
		if !src.LooksLikeDOCX() {
			return errors.NewUnsupported("format",
				src.Name+": only .docx documents can be extracted")
		}
	}
	return nil
}

// IsDOCX reports whether name carries the .docx extension.
func IsDOCX(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".docx")
}

// LooksLikeDOCX reports whether src is named .docx or starts with a zip
// signature. Whether a zip is really a Word package is left to the
// extractor, which reports a missing body part with the file name.
func (src *Source) LooksLikeDOCX() bool {
	return IsDOCX(src.Name) || validation.DetectFromMagic(src.Data) == validation.FileTypeZip
}
