package transform

import (
	"strings"

	"github.com/dgallion1/folio/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DiagramLanguage is the fence language tag of diagram blocks.
	DiagramLanguage = "mermaid"
	// MarkerClass marks a diagram placeholder element.
	MarkerClass = "mermaid-diagram"
	// SourceAttr holds the diagram source on a placeholder element.
	SourceAttr = "data-mermaid"
)

// Mermaid rewrites ```mermaid code fences into placeholder elements:
//
//	<pre><code class="language-mermaid">graph TD; A-->B</code></pre>
//
// becomes
//
//	<div class="mermaid-diagram" data-mermaid="graph TD; A-->B"></div>
//
// It must run before Highlight so diagram source is never tokenized.
type Mermaid struct{}

func (Mermaid) Name() string { return "mermaid" }

func (Mermaid) Transform(root *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode {
				if src, ok := diagramSource(c); ok {
					placeholder := newPlaceholder(src)
					n.InsertBefore(placeholder, c)
					n.RemoveChild(c)
				} else {
					walk(c)
				}
			}
			c = next
		}
	}
	walk(root)
}

// diagramSource reports the trimmed diagram text of a matching <pre>.
// Blocks with an empty body do not match.
func diagramSource(pre *html.Node) (string, bool) {
	if pre.DataAtom != atom.Pre {
		return "", false
	}
	code := pre.FirstChild
	if code == nil || code.Type != html.ElementNode || code.DataAtom != atom.Code {
		return "", false
	}
	if !isDiagramCode(code) {
		return "", false
	}

	var buf strings.Builder
	for c := code.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
	}
	src := strings.TrimSpace(buf.String())
	if src == "" {
		return "", false
	}
	return src, true
}

func isDiagramCode(code *html.Node) bool {
	for _, cls := range doctree.Classes(code) {
		if cls == "language-"+DiagramLanguage || cls == DiagramLanguage {
			return true
		}
	}
	return false
}

func newPlaceholder(src string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: MarkerClass},
			{Key: SourceAttr, Val: src},
		},
	}
}

// Extract lists the sources of all diagram placeholders under root in
// document order.
func Extract(root *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && doctree.HasClass(n, MarkerClass) {
			if src, ok := doctree.Attr(n, SourceAttr); ok && src != "" {
				out = append(out, src)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
