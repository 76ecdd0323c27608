package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the fate of an old-version item in the new version.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusAccepted         Status = "ACCEPTED"
	StatusAddressed        Status = "ADDRESSED"
	StatusNotActioned      Status = "NOT_ACTIONED"
	StatusNoLongerRelevant Status = "NO_LONGER_RELEVANT"
	StatusUnknown          Status = "UNKNOWN"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusAddressed, StatusNotActioned, StatusNoLongerRelevant, StatusUnknown:
		return true
	}
	return false
}

// Label returns the status in human-readable form, e.g. "NOT ACTIONED".
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Implication grades how much an item changes the document.
type Implication string

const (
	ImplicationClarification     Implication = "Clarification"
	ImplicationEditorial         Implication = "Editorial"
	ImplicationChange            Implication = "Change"
	ImplicationSignificantChange Implication = "Significant Change"
)

var implications = []Implication{
	ImplicationClarification,
	ImplicationEditorial,
	ImplicationChange,
	ImplicationSignificantChange,
}

// Scoring rates an item on a 1 to 5 scale per dimension.
type Scoring struct {
	Implication         Implication `json:"implication"`
	Alignment           int         `json:"alignment"`
	Feasibility         int         `json:"feasibility"`
	FutureAcceptance    int         `json:"futureAcceptance"`
	AuthorAcceptability int         `json:"authorAcceptability"`
}

// AnalysisResult is the assessment of one item.
type AnalysisResult struct {
	ItemID      string   `json:"itemId"`
	Status      Status   `json:"status"`
	Explanation string   `json:"explanation"`
	Confidence  float64  `json:"confidence"`
	Scoring     *Scoring `json:"scoring,omitempty"`
	UserNotes   string   `json:"userNotes,omitempty"`
}

// CommentaryAnalysis summarizes a comment response document.
type CommentaryAnalysis struct {
	SuccessPatterns     string `json:"successPatterns"`
	ToneAnalysis        string `json:"toneAnalysis"`
	ContributorInsights string `json:"contributorInsights"`
	OtherInsights       string `json:"otherInsights"`
}

// KeyChange is one of the most important differences between versions.
type KeyChange struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// Severity ranks an outstanding issue.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// OutstandingIssue is an unresolved concern.
type OutstandingIssue struct {
	Issue       string   `json:"issue"`
	Severity    Severity `json:"severity"`
	Remediation string   `json:"remediation"`
}

// StakeholderPriority describes what one reviewer cared about.
type StakeholderPriority struct {
	Stakeholder     string `json:"stakeholder"`
	PrimaryConcerns string `json:"primaryConcerns"`
	OutcomeSummary  string `json:"outcomeSummary"`
	ProjectedWants  string `json:"projectedWants"`
}

// IntelligentDiff is the holistic comparison of two versions.
type IntelligentDiff struct {
	Summary               string                `json:"summary"`
	KeyChanges            []KeyChange           `json:"keyChanges"`
	StrategicShifts       string                `json:"strategicShifts"`
	RiskProfile           string                `json:"riskProfile"`
	OutstandingIssues     []OutstandingIssue    `json:"outstandingIssues"`
	StakeholderPriorities []StakeholderPriority `json:"stakeholderPriorities"`
}

// ReportStyle controls the depth of the generated analysis.
type ReportStyle string

const (
	StyleHighLevel ReportStyle = "High Level"
	StyleTechnical ReportStyle = "Technical"
	StyleBalanced  ReportStyle = "Balanced"
)

// Context steers the holistic analysis toward a reader and purpose.
type Context struct {
	DocumentPerspective   string      `json:"documentPerspective"`
	IntendedRecipient     string      `json:"intendedRecipient"`
	ReportStyle           ReportStyle `json:"reportStyle"`
	FocusArea             string      `json:"focusArea"`
	GeneralContext        string      `json:"generalContext"`
	StakeholderPriorities string      `json:"stakeholderPriorities,omitempty"`
}

// Part is one block of prompt content.
type Part struct {
	Text string `json:"text"`
}

// Request is a model-agnostic description of one generation call. The
// caller is responsible for sending it; this package never does I/O.
type Request struct {
	Model            string          `json:"model"`
	Parts            []Part          `json:"parts"`
	ResponseMIMEType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

// Text joins all parts with blank lines, for models that take a single
// prompt string.
func (r *Request) Text() string {
	texts := make([]string, len(r.Parts))
	for i, p := range r.Parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

func (r *Request) String() string {
	return fmt.Sprintf("%s request (%d parts, %d bytes)", r.Model, len(r.Parts), len(r.Text()))
}
