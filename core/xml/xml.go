// Package xml provides a queryable XML tree for package parts.
//
// Elements are matched by local name so callers can ask for "p" and get
// w:p, or any other prefix bound to the same vocabulary. Parsing is done
// by xmlquery, which uses Go's encoding/xml internally and inherits its
// security properties (no external entity fetching).
package xml

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// ErrNoRoot is returned when a payload parses but contains no element.
var ErrNoRoot = errors.New("no root element")

// ErrTrailingContent is returned when an element or text follows the
// root element, or text precedes it.
var ErrTrailingContent = errors.New("content outside the root element")

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element.
type Node struct {
	node *xmlquery.Node
}

// exprCache holds compiled descendant/child queries keyed by expression.
var exprCache sync.Map

// Parse parses XML data and returns a Document.
// Payloads without a root element are rejected.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	doc := &Document{root: root}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parsing XML: %w", ErrNoRoot)
	}
	if err := checkTopLevel(root); err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return doc, nil
}

// checkTopLevel enforces a single root element with nothing but markup
// and whitespace around it. xmlquery keeps reading after the root closes
// and attaches whatever follows as its siblings; text before the first
// element lands beside the document node itself.
func checkTopLevel(doc *xmlquery.Node) error {
	seen := false
	check := func(n *xmlquery.Node) error {
		switch n.Type {
		case xmlquery.ElementNode:
			if seen {
				return fmt.Errorf("%w: element <%s> after the root element", ErrTrailingContent, n.Data)
			}
			seen = true
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if text := strings.TrimSpace(n.Data); text != "" {
				return fmt.Errorf("%w: text %q", ErrTrailingContent, truncate(text, 20))
			}
		}
		return nil
	}

	for top := doc; top != nil; top = top.NextSibling {
		if top.Type != xmlquery.DocumentNode {
			if err := check(top); err != nil {
				return err
			}
			continue
		}
		for n := top.FirstChild; n != nil; n = n.NextSibling {
			if err := check(n); err != nil {
				return err
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d == nil || d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// Descendants returns every element below the document root (root included)
// whose local name is local, in document order.
func (d *Document) Descendants(local string) []*Node {
	if d == nil || d.root == nil {
		return nil
	}
	return selectAll(d.root, descendantExpr(local))
}

// LocalName returns the element name without its namespace prefix.
func (n *Node) LocalName() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// InnerText returns all text content of the node and its descendants.
func (n *Node) InnerText() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// Descendants returns every element below n whose local name is local,
// in document order. n itself is never included.
func (n *Node) Descendants(local string) []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	return selectAll(n.node, descendantExpr(local))
}

// Children returns the direct child elements of n. When local is non-empty
// only children with that local name are returned.
func (n *Node) Children(local string) []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if local != "" && child.Data != local {
			continue
		}
		children = append(children, &Node{node: child})
	}
	return children
}

// CollectText concatenates the inner text of every descendant whose local
// name is one of locals, in document order.
func (n *Node) CollectText(locals ...string) string {
	if n == nil || n.node == nil || len(locals) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range selectAll(n.node, anyOfExpr(locals)) {
		b.WriteString(m.InnerText())
	}
	return b.String()
}

// LookupAttr returns the value of the first attribute whose local name
// matches, ignoring any prefix.
func (n *Node) LookupAttr(local string) (string, bool) {
	if n == nil || n.node == nil {
		return "", false
	}
	for _, attr := range n.node.Attr {
		if attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns") {
			continue
		}
		if attr.Name.Local == local {
			return attr.Value, true
		}
	}
	return "", false
}

// Attr returns the value of an attribute by local name, or "" if absent.
func (n *Node) Attr(local string) string {
	v, _ := n.LookupAttr(local)
	return v
}

func selectAll(top *xmlquery.Node, expr *xpath.Expr) []*Node {
	found := xmlquery.QuerySelectorAll(top, expr)
	result := make([]*Node, len(found))
	for i, f := range found {
		result[i] = &Node{node: f}
	}
	return result
}

func descendantExpr(local string) *xpath.Expr {
	return mustCompile(fmt.Sprintf(".//*[local-name()='%s']", local))
}

func anyOfExpr(locals []string) *xpath.Expr {
	conds := make([]string, len(locals))
	for i, l := range locals {
		conds[i] = fmt.Sprintf("local-name()='%s'", l)
	}
	return mustCompile(".//*[" + strings.Join(conds, " or ") + "]")
}

// mustCompile compiles and caches expressions built from local names
// chosen by this module, never from user input.
func mustCompile(expr string) *xpath.Expr {
	if cached, ok := exprCache.Load(expr); ok {
		return cached.(*xpath.Expr)
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		panic(fmt.Sprintf("invalid xpath %q: %v", expr, err))
	}
	exprCache.Store(expr, compiled)
	return compiled
}
