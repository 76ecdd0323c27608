// Package report renders a finished analysis as a standalone HTML page
// or as its JSON data payload.
package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"slices"
	"time"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
	"github.com/FocuswithJustin/docdiff/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html"))

// Report is everything a rendered report shows.
type Report struct {
	OldName         string
	NewName         string
	OldText         string
	NewText         string
	Items           []docx.Item
	Results         map[string]prompt.AnalysisResult
	Commentary      *prompt.CommentaryAnalysis
	IntelligentDiff *prompt.IntelligentDiff
	Generated       time.Time
}

// FromSession builds a report from a saved session.
func FromSession(st *session.State) Report {
	return Report{
		OldName:         st.OldName,
		NewName:         st.NewName,
		OldText:         st.OldDocText,
		NewText:         st.NewDocText,
		Items:           st.ExtractedItems,
		Results:         st.AnalysisResults.Map(),
		Commentary:      st.CommentaryAnalysis,
		IntelligentDiff: st.IntelligentDiff,
	}
}

// Card is one item with its analysis, as listed in the report grid.
type Card struct {
	docx.Item
	Result *prompt.AnalysisResult `json:"result,omitempty"`
}

// Status returns the item's status, UNKNOWN when unanalyzed.
func (c Card) Status() prompt.Status {
	if c.Result == nil {
		return prompt.StatusUnknown
	}
	return c.Result.Status
}

// Data is the machine-readable payload of a report.
type Data struct {
	Items           []Card                     `json:"items"`
	OldText         string                     `json:"oldText"`
	NewText         string                     `json:"newText"`
	Commentary      *prompt.CommentaryAnalysis `json:"commentary"`
	IntelligentDiff *prompt.IntelligentDiff    `json:"intelligentDiff"`
}

// Data returns the payload with items in document order.
func (r Report) Data() Data {
	cards := make([]Card, len(r.Items))
	for i, it := range r.Items {
		cards[i] = Card{Item: it}
		if res, ok := r.Results[it.ID]; ok {
			cards[i].Result = &res
		}
	}
	return Data{
		Items:           cards,
		OldText:         r.OldText,
		NewText:         r.NewText,
		Commentary:      r.Commentary,
		IntelligentDiff: r.IntelligentDiff,
	}
}

// Prioritized returns the cards ordered by implication, most significant
// first. Items of equal weight keep document order.
func (r Report) Prioritized() []Card {
	cards := r.Data().Items
	slices.SortStableFunc(cards, func(a, b Card) int {
		return weight(b) - weight(a)
	})
	return cards
}

func weight(c Card) int {
	if c.Result == nil || c.Result.Scoring == nil {
		return 0
	}
	switch c.Result.Scoring.Implication {
	case prompt.ImplicationSignificantChange:
		return 4
	case prompt.ImplicationChange:
		return 3
	case prompt.ImplicationEditorial:
		return 2
	case prompt.ImplicationClarification:
		return 1
	}
	return 0
}

// JSON writes the report payload.
func JSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Data())
}

// HTML renders the report as a self-contained page. The page carries
// no scripts; the payload is embedded as an inert JSON data block.
func HTML(w io.Writer, r Report) error {
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	view := struct {
		Report
		Cards []Card
		Data  Data
	}{r, r.Prioritized(), r.Data()}

	if err := templates.ExecuteTemplate(w, "report.html", view); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"statusClass": func(s prompt.Status) string {
		switch s {
		case prompt.StatusAccepted:
			return "st-accepted"
		case prompt.StatusAddressed:
			return "st-addressed"
		case prompt.StatusNotActioned:
			return "st-not-actioned"
		}
		return "st-other"
	},
	"severityClass": func(s prompt.Severity) string {
		switch s {
		case prompt.SeverityHigh:
			return "sev-high"
		case prompt.SeverityMedium:
			return "sev-medium"
		}
		return "sev-low"
	},
	"scoreClass": func(n int) string {
		switch {
		case n >= 4:
			return "bar-high"
		case n >= 3:
			return "bar-mid"
		}
		return "bar-low"
	},
	"percent": func(n int) int {
		return min(max(n, 0), 5) * 20
	},
	"score": func(label string, value int) scoreView {
		return scoreView{Label: label, Value: value}
	},
	"isDeletion": func(k docx.Kind) bool {
		return k == docx.Deletion
	},
}

type scoreView struct {
	Label string
	Value int
}
