package docx

import (
	"github.com/FocuswithJustin/docdiff/core/xml"
)

// CommentIndex maps comment ids to their text.
type CommentIndex map[string]string

// BuildCommentIndex reads every top-level comment entry of a comment table.
// A nil tree yields an empty index; comments are optional content.
func BuildCommentIndex(tree *xml.Document) CommentIndex {
	index := CommentIndex{}
	root := tree.Root()
	if root == nil {
		return index
	}
	for _, c := range root.Children("comment") {
		id, ok := c.LookupAttr("id")
		if !ok || id == "" {
			continue
		}
		index[id] = c.CollectText("t")
	}
	return index
}

// Lookup returns the comment text for id.
func (ci CommentIndex) Lookup(id string) (string, bool) {
	text, ok := ci[id]
	return text, ok
}
