package doctree

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Meta is the frontmatter of a content file.
type Meta struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Date        time.Time `yaml:"date"`
	Published   bool      `yaml:"published"`
	Featured    bool      `yaml:"featured"`
	Categories  []string  `yaml:"categories"`
	URL         string    `yaml:"url"`
	Repository  string    `yaml:"repository"`
}

// HasDate reports whether the document carries a publication date.
func (m Meta) HasDate() bool { return !m.Date.IsZero() }

// Document is one parsed content file.
type Document struct {
	Slug      string
	Meta      Meta
	Root      *html.Node // Document node; children are the body fragment.
	TOC       []*Heading
	Diagrams  []string // Diagram sources in document order.
	WordCount int
}

// Heading is an entry in the table of contents.
type Heading struct {
	ID       string
	Text     string
	Level    int
	Children []*Heading
}

// NewRoot returns an empty document root.
func NewRoot() *html.Node {
	return &html.Node{Type: html.DocumentNode}
}

// TextContent concatenates all descendant text of n.
func TextContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Classes splits the class attribute of n into its tokens.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether the class list of n contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// FirstElementChild returns the first child of n that is an element.
func FirstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// WordCount counts whitespace separated words across all text nodes of n.
func WordCount(n *html.Node) int {
	if n.Type == html.TextNode {
		return len(strings.Fields(n.Data))
	}
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += WordCount(c)
	}
	return count
}
