package artifact

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// DefaultSnapshotLength bounds the text kept in a DOM snapshot.
const DefaultSnapshotLength = 200_000

// Snapshot is a page's DOM reduced to its semantic structure.
type Snapshot struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

// Document renders the snapshot as a standalone HTML document suitable for
// attaching next to a failure screenshot.
func (s *Snapshot) Document(source string) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(s.Title))
	if source != "" {
		fmt.Fprintf(&b, "<meta name=\"source\" content=\"%s\">\n", html.EscapeString(source))
	}
	if s.Description != "" {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(s.Description))
	}
	b.WriteString("</head>\n")
	b.WriteString(s.HTML)
	if s.Truncated {
		b.WriteString("\n<!-- snapshot truncated -->")
	}
	b.WriteString("\n</html>\n")
	return []byte(b.String())
}

// CleanHTML parses raw page content and keeps the elements and attributes
// useful for debugging selectors, dropping scripts, styles and embedded
// objects. Text beyond maxLength is truncated.
func CleanHTML(raw string, maxLength int) (*Snapshot, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if maxLength <= 0 {
		maxLength = DefaultSnapshotLength
	}

	w := &domWriter{max: maxLength}
	snap := &Snapshot{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}
	if body := findElement(doc, "body"); body != nil {
		snap.Truncated = w.node(body, 0)
	} else {
		snap.Truncated = w.children(doc, 0)
	}
	snap.HTML = w.b.String()
	return snap, nil
}

type domWriter struct {
	b   strings.Builder
	n   int
	max int
}

// node writes n and its subtree, reporting whether output was truncated.
func (w *domWriter) node(n *html.Node, depth int) bool {
	if w.n >= w.max {
		return true
	}

	switch n.Type {
	case html.TextNode:
		return w.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if droppedElements[tag] {
			return false
		}
		return w.element(n, tag, depth)
	case html.CommentNode, html.DoctypeNode:
		return false
	default:
		return w.children(n, depth)
	}
}

func (w *domWriter) text(data string) bool {
	text := strings.TrimSpace(data)
	if text == "" {
		return false
	}

	if w.n+len(text) > w.max {
		text = text[:w.max-w.n] + "..."
		w.b.WriteString(html.EscapeString(text))
		w.n = w.max
		return true
	}

	w.b.WriteString(html.EscapeString(text))
	w.n += len(text)
	return false
}

func (w *domWriter) element(n *html.Node, tag string, depth int) bool {
	block := blockElements[tag]
	if block && depth > 0 {
		w.indent(depth)
	}

	w.b.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, strings.ToLower(attr.Key)) {
			fmt.Fprintf(&w.b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
	}
	w.b.WriteString(">")
	w.n += len(tag) + 2

	truncated := w.children(n, depth+1)

	if !voidElements[tag] {
		if block {
			w.indent(depth)
		}
		w.b.WriteString("</" + tag + ">")
		w.n += len(tag) + 3
	}
	return truncated
}

func (w *domWriter) children(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if w.node(c, depth) {
			return true
		}
	}
	return false
}

func (w *domWriter) indent(depth int) {
	w.b.WriteString("\n")
	w.b.WriteString(strings.Repeat("  ", depth))
}

var droppedElements = setOf("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")

var blockElements = setOf(
	"body", "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
	"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
	"form", "fieldset", "dialog", "blockquote", "pre",
)

var voidElements = setOf(
	"area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta",
	"param", "source", "track", "wbr",
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// keepAttribute reports whether an attribute helps locate the element from a test.
func keepAttribute(tag, attr string) bool {
	switch attr {
	case "id", "class", "role", "name", "aria-label", "aria-hidden", "disabled", "hidden":
		return true
	}
	if strings.HasPrefix(attr, "data-") {
		return true
	}

	switch tag {
	case "a":
		return attr == "href"
	case "img":
		return attr == "alt"
	case "input", "textarea", "select":
		return attr == "type" || attr == "placeholder" || attr == "value"
	case "button":
		return attr == "type"
	case "form":
		return attr == "action" || attr == "method"
	case "label":
		return attr == "for"
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	title := findElement(doc, "title")
	if title == nil || title.FirstChild == nil || title.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(title.FirstChild.Data)
}

func findMetaDescription(doc *html.Node) string {
	var description string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if strings.EqualFold(name, "description") && content != "" {
				description = strings.TrimSpace(content)
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return description
}
