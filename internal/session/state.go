// Package session persists and exchanges analysis sessions: the texts
// of the compared documents, the items extracted from the old version
// and whatever analysis has been produced for them.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
)

// DefaultKey is the slot used for autosaves.
const DefaultKey = "docdiff_autosave_v1"

// State is one saved session.
type State struct {
	OldDocText         string                     `json:"oldDocText"`
	NewDocText         string                     `json:"newDocText"`
	StakeholderDocText string                     `json:"stakeholderDocText,omitempty"`
	ExtractedItems     []docx.Item                `json:"extractedItems"`
	AnalysisResults    Results                    `json:"analysisResults"`
	CommentaryAnalysis *prompt.CommentaryAnalysis `json:"commentaryAnalysis"`
	IntelligentDiff    *prompt.IntelligentDiff    `json:"intelligentDiff"`
	LastUpdated        int64                      `json:"lastUpdated"`
	Context            *prompt.Context            `json:"context,omitempty"`
	OldName            string                     `json:"oldName,omitempty"`
	NewName            string                     `json:"newName,omitempty"`
	OldFingerprint     string                     `json:"oldFingerprint,omitempty"`
	NewFingerprint     string                     `json:"newFingerprint,omitempty"`
}

// Entry is one analysis result keyed by item id. It encodes as a
// two-element array so files stay compatible with the browser tool.
type Entry struct {
	ID     string
	Result prompt.AnalysisResult
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ID, e.Result})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("result entry has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return fmt.Errorf("result entry id: %w", err)
	}
	return json.Unmarshal(pair[1], &e.Result)
}

// Results is an ordered list of analysis results.
type Results []Entry

// Get returns the result for an item id.
func (rs Results) Get(id string) (prompt.AnalysisResult, bool) {
	for _, e := range rs {
		if e.ID == id {
			return e.Result, true
		}
	}
	return prompt.AnalysisResult{}, false
}

// Map returns the results keyed by item id.
func (rs Results) Map() map[string]prompt.AnalysisResult {
	m := make(map[string]prompt.AnalysisResult, len(rs))
	for _, e := range rs {
		m[e.ID] = e.Result
	}
	return m
}

// Set stores r under its item id, replacing an existing entry in place.
func (s *State) Set(r prompt.AnalysisResult) {
	for i := range s.AnalysisResults {
		if s.AnalysisResults[i].ID == r.ItemID {
			s.AnalysisResults[i].Result = r
			return
		}
	}
	s.AnalysisResults = append(s.AnalysisResults, Entry{ID: r.ItemID, Result: r})
}

// SetNotes attaches user notes to an existing result.
func (s *State) SetNotes(id, notes string) bool {
	for i := range s.AnalysisResults {
		if s.AnalysisResults[i].ID == id {
			s.AnalysisResults[i].Result.UserNotes = notes
			return true
		}
	}
	return false
}

// ReattachResults replaces the extracted items and keeps only results
// whose item still exists. It returns the number of results dropped.
func (s *State) ReattachResults(items []docx.Item) int {
	ids := make(map[string]struct{}, len(items))
	for _, it := range items {
		ids[it.ID] = struct{}{}
	}

	kept := s.AnalysisResults[:0]
	for _, e := range s.AnalysisResults {
		if _, ok := ids[e.ID]; ok {
			kept = append(kept, e)
		}
	}
	dropped := len(s.AnalysisResults) - len(kept)
	s.AnalysisResults = kept
	s.ExtractedItems = items
	return dropped
}
