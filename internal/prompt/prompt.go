// Package prompt builds structured generation requests for change
// analysis and decodes the model's JSON answers.
//
// Three analyses exist: per-item status and scoring against the new
// version, a review of a comment response document, and a holistic
// comparison of the two versions. Requests carry a response schema so
// the answers can be decoded strictly.
package prompt

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
)

// DefaultModel is the model named in generated requests.
const DefaultModel = "gemini-2.5-flash"

// MaxStakeholderChars bounds the stakeholder priorities text embedded
// in the holistic analysis request.
const MaxStakeholderChars = 15000

// ErrNothingToAnalyze is returned when there are no items to assess.
var ErrNothingToAnalyze = stderrors.New("nothing to analyze: the old document has no tracked changes or comments")

// MimeJSON is the response type requested for every analysis.
const MimeJSON = "application/json"

const changeInstructions = `You are reviewing how a document evolved between two versions.
You will receive the full text of the NEW version and a JSON list of tracked changes and comments taken from the PREVIOUS version.

For every item:
1. Decide its status in the NEW version: ACCEPTED, ADDRESSED, NOT_ACTIONED or NO_LONGER_RELEVANT.
2. Score it on each dimension below, 1 meaning low or poor and 5 meaning high or good:
   - implication: one of Clarification, Editorial, Change, Significant Change.
   - alignment: fit with the goals of the document.
   - feasibility: how practical the change or suggestion is.
   - futureAcceptance: likelihood of acceptance in a later revision.
   - authorAcceptability: likelihood the original author would accept it.

Status definitions:
- ACCEPTED: an insertion is present or a deletion is absent.
- ADDRESSED: the feedback in a comment was implemented.
- NOT_ACTIONED: an insertion is missing, a deletion is still present, or a comment was ignored.
- NO_LONGER_RELEVANT: the surrounding text no longer exists.

Answer with a JSON array.`

const commentaryInstructions = `The following is a comment response document: reviewer comments, proposed changes and the author's replies.

Analyze it under four headings:
1. successPatterns: which kinds of comments or changes tend to be accepted (formatting, grammar, structure, concepts).
2. toneAnalysis: the tone of reviewers compared with authors.
3. contributorInsights: patterns tied to particular contributors, where names are present.
4. otherInsights: anything else about how the collaboration works.

Answer with a JSON object.`

const diffInstructions = `You are a senior analyst comparing two versions of a document, such as counsel reviewing a contract or an editor reviewing a policy.
You will receive the OLD version, the NEW version and the tracked changes and comments from the OLD version, with any scores already assigned to them.
%s
Use the scores to concentrate on the items that matter most, for example a Significant Change with low alignment.
Ignore copy edits, typos and formatting. Report substantive, semantic and strategic change only.

Produce:
1. summary: a short executive summary of what changed.
2. keyChanges: the three to five most important changed provisions, each with what changed and its practical impact.
3. strategicShifts: how the purpose, tone or direction of the document moved.
4. riskProfile: how risk or liability allocation changed.
5. outstandingIssues: concerns from the comments and changes that remain open, each with a severity of High, Medium or Low and a suggested remediation.
6. stakeholderPriorities: for up to five stakeholders named in the author field, their primary concerns with quoted evidence, the outcome of their proposals and what they are likely to ask for next. Where the author is Unknown, describe the group by the content of its comments instead of using the word Unknown.

Answer with a JSON object.`

const contextTemplate = `
Analysis context:
- Document perspective: %s
- Intended recipient: %s
- Report style: %s
- Focus areas: %s
- Background: %s
%s
Match the language and depth of summary, keyChanges and riskProfile to the recipient and report style, and address the focus areas explicitly.
`

const stakeholderTemplate = `- Stakeholder priorities reference (treat as authoritative; compare every change against it and reflect deviations in outstandingIssues and stakeholderPriorities):
"""
%s
"""
`

// itemPayload is the reduced form of an item sent for status analysis.
type itemPayload struct {
	ID             string    `json:"id"`
	Type           docx.Kind `json:"type"`
	Text           string    `json:"text"`
	Context        string    `json:"context"`
	CommentContent *string   `json:"commentContent,omitempty"`
}

// scoredPayload is the form of an item sent for the holistic analysis.
type scoredPayload struct {
	Type    docx.Kind `json:"type"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Context string    `json:"context"`
	Scores  *Scoring  `json:"scores,omitempty"`
}

// BuildChangeAnalysis builds the per-item status and scoring request.
func BuildChangeAnalysis(newText string, items []docx.Item) (*Request, error) {
	if len(items) == 0 {
		return nil, ErrNothingToAnalyze
	}

	payload := make([]itemPayload, len(items))
	for i, it := range items {
		payload[i] = itemPayload{
			ID:             it.ID,
			Type:           it.Kind,
			Text:           it.Text,
			Context:        it.Context,
			CommentContent: it.CommentContent,
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode items")
	}

	return &Request{
		Model: DefaultModel,
		Parts: []Part{
			{Text: changeInstructions},
			{Text: "--- NEW DOCUMENT TEXT START ---\n" + newText + "\n--- NEW DOCUMENT TEXT END ---"},
			{Text: "--- ITEMS TO CHECK START ---\n" + string(encoded) + "\n--- ITEMS TO CHECK END ---"},
		},
		ResponseMIMEType: MimeJSON,
		ResponseSchema:   json.RawMessage(changeSchema),
	}, nil
}

// BuildCommentaryAnalysis builds the comment response review request.
func BuildCommentaryAnalysis(docText string) *Request {
	return &Request{
		Model: DefaultModel,
		Parts: []Part{
			{Text: commentaryInstructions},
			{Text: docText},
		},
		ResponseMIMEType: MimeJSON,
		ResponseSchema:   json.RawMessage(commentarySchema),
	}
}

// BuildIntelligentDiff builds the holistic comparison request. results
// may be nil; ctx may be nil when no steering context was given.
func BuildIntelligentDiff(oldText, newText string, items []docx.Item, results map[string]AnalysisResult, ctx *Context) (*Request, error) {
	payload := make([]scoredPayload, 0, len(items))
	for _, it := range items {
		p := scoredPayload{
			Type:    it.Kind,
			Author:  it.AuthorOr(docx.UnknownAuthor),
			Content: it.Content(),
			Context: it.Context,
		}
		if r, ok := results[it.ID]; ok {
			p.Scores = r.Scoring
		}
		payload = append(payload, p)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode items")
	}

	return &Request{
		Model: DefaultModel,
		Parts: []Part{
			{Text: fmt.Sprintf(diffInstructions, renderContext(ctx))},
			{Text: "--- OLD DOCUMENT VERSION ---\n" + oldText},
			{Text: "--- NEW DOCUMENT VERSION ---\n" + newText},
			{Text: "--- RELEVANT COMMENTS/CHANGES WITH SCORES ---\n" + string(encoded)},
		},
		ResponseMIMEType: MimeJSON,
		ResponseSchema:   json.RawMessage(diffSchema),
	}, nil
}

func renderContext(ctx *Context) string {
	if ctx == nil {
		return ""
	}
	stakeholder := ""
	if strings.TrimSpace(ctx.StakeholderPriorities) != "" {
		stakeholder = fmt.Sprintf(stakeholderTemplate, truncateRunes(ctx.StakeholderPriorities, MaxStakeholderChars))
	}
	return fmt.Sprintf(contextTemplate,
		ctx.DocumentPerspective,
		ctx.IntendedRecipient,
		ctx.ReportStyle,
		ctx.FocusArea,
		ctx.GeneralContext,
		stakeholder)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ParseChangeAnalysis decodes the per-item answer. Unknown statuses are
// rejected, scores are clamped to 1..5 and every result gets full
// confidence.
func ParseChangeAnalysis(data []byte) ([]AnalysisResult, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var results []AnalysisResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, errors.NewParse("change analysis", "", err.Error())
	}

	for i := range results {
		r := &results[i]
		if r.ItemID == "" {
			return nil, errors.NewValidation("itemId", fmt.Sprintf("result %d has no item id", i))
		}
		if !r.Status.Valid() {
			return nil, errors.NewValidation("status", fmt.Sprintf("result %s has unknown status %q", r.ItemID, r.Status))
		}
		if r.Scoring != nil {
			r.Scoring.clamp()
		}
		r.Confidence = 1.0
	}
	return results, nil
}

// ParseCommentaryAnalysis decodes the comment response review.
func ParseCommentaryAnalysis(data []byte) (*CommentaryAnalysis, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.NewParse("commentary analysis", "", "empty response")
	}
	var out CommentaryAnalysis
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewParse("commentary analysis", "", err.Error())
	}
	return &out, nil
}

// ParseIntelligentDiff decodes the holistic comparison. Severities
// outside High, Medium and Low are normalized to Medium.
func ParseIntelligentDiff(data []byte) (*IntelligentDiff, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.NewParse("intelligent diff", "", "empty response")
	}
	var out IntelligentDiff
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.NewParse("intelligent diff", "", err.Error())
	}
	for i := range out.OutstandingIssues {
		switch out.OutstandingIssues[i].Severity {
		case SeverityHigh, SeverityMedium, SeverityLow:
		default:
			out.OutstandingIssues[i].Severity = SeverityMedium
		}
	}
	return &out, nil
}

func (s *Scoring) clamp() {
	s.Alignment = clampScore(s.Alignment)
	s.Feasibility = clampScore(s.Feasibility)
	s.FutureAcceptance = clampScore(s.FutureAcceptance)
	s.AuthorAcceptability = clampScore(s.AuthorAcceptability)

	known := false
	for _, imp := range implications {
		if s.Implication == imp {
			known = true
			break
		}
	}
	if !known {
		s.Implication = ImplicationChange
	}
}

func clampScore(n int) int {
	return min(max(n, 1), 5)
}
