package session

import (
	"github.com/FocuswithJustin/docdiff/internal/compare"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
)

// FromComparison starts a session for a fresh comparison. Every item
// begins without a result.
func FromComparison(c *compare.Comparison, ctx *prompt.Context) *State {
	return &State{
		OldDocText:         c.OldText,
		NewDocText:         c.NewText,
		StakeholderDocText: c.StakeholderText,
		ExtractedItems:     c.Items,
		AnalysisResults:    Results{},
		Context:            ctx,
		OldName:            c.OldName,
		NewName:            c.NewName,
		OldFingerprint:     c.OldFingerprint,
		NewFingerprint:     c.NewFingerprint,
	}
}

// Matches reports whether the session was built from the same old and
// new documents as c.
func (s *State) Matches(c *compare.Comparison) bool {
	return s.OldFingerprint != "" &&
		s.OldFingerprint == c.OldFingerprint &&
		s.NewFingerprint == c.NewFingerprint
}
