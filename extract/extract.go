// Package extract reduces a rendered HTML document to the comparable text of
// its primary content region.
//
// The region is every <main> element when the page has one, else <body>,
// else the whole document. Text inside script, style, noscript, svg,
// template, iframe and nav elements never contributes. Outside <main>, page
// chrome (header, footer, aside and the matching ARIA landmarks) is dropped
// as well. Text nodes are
// concatenated in document order and every whitespace run collapses to a
// single space.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Region names which part of the document the text came from.
type Region string

const (
	RegionMain     Region = "main"
	RegionBody     Region = "body"
	RegionDocument Region = "document"
)

// Result is the normalized view of one document.
type Result struct {
	Text     string // collapsed text of the region, possibly empty
	MainHTML string // serialized HTML of the region nodes
	Region   Region
}

// Normalize parses rawHTML and returns its normalized text. Malformed markup
// is repaired by the HTML5 parser; an empty document yields empty text.
func Normalize(rawHTML string) (*Result, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extract: parse: %w", err)
	}
	return NormalizeNode(doc), nil
}

// NormalizeNode is Normalize over an already parsed document.
func NormalizeNode(doc *html.Node) *Result {
	nodes, region := contentRegion(doc)
	skip := skipped
	if region != RegionMain {
		skip = skippedChrome
	}

	var raw strings.Builder
	var buf bytes.Buffer
	for _, n := range nodes {
		collectText(n, &raw, skip)
		html.Render(&buf, n)
	}
	return &Result{
		Text:     CollapseSpace(raw.String()),
		MainHTML: buf.String(),
		Region:   region,
	}
}

// CollapseSpace replaces every run of whitespace with one space and trims
// both ends. Non-breaking and zero-width no-break spaces count as whitespace.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// contentRegion returns the <main> elements, else <body>, else doc.
func contentRegion(doc *html.Node) ([]*html.Node, Region) {
	if mains := findAll(doc, atom.Main); len(mains) > 0 {
		return mains, RegionMain
	}
	if body := findFirst(doc, atom.Body); body != nil {
		return []*html.Node{body}, RegionBody
	}
	return []*html.Node{doc}, RegionDocument
}

// skipped reports elements whose subtree is never page content.
func skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template, atom.Iframe, atom.Nav:
		return true
	}
	// Foreign-content elements parse with a zero atom.
	return n.Data == "svg"
}

// skippedChrome extends skipped with the page chrome surrounding the
// content of pages that have no <main>.
func skippedChrome(n *html.Node) bool {
	if skipped(n) {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Header, atom.Footer, atom.Aside:
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "role" {
			switch strings.ToLower(strings.TrimSpace(a.Val)) {
			case "navigation", "banner", "contentinfo", "complementary":
				return true
			}
		}
	}
	return false
}

// collectText appends raw text node data without adding separators; block
// boundaries are whatever whitespace the markup already carries.
func collectText(n *html.Node, sb *strings.Builder, skip func(*html.Node) bool) {
	if skip(n) {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, skip)
	}
}

// findAll returns the outermost elements with atom a, skipping excluded
// subtrees. A <main> nested inside another <main> is covered by its parent.
func findAll(root *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipped(n) {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	if all := findAll(root, a); len(all) > 0 {
		return all[0]
	}
	return nil
}
