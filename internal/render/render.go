// Package render turns a transformed document tree into styled HTML by
// dispatching each element to a renderer registered for its tag.
package render

import (
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DiagramRenderer renders one diagram from its source text.
type DiagramRenderer interface {
	RenderDiagram(ctx context.Context, w io.Writer, source string) error
}

// RenderFunc renders element n, including its children.
type RenderFunc func(ctx context.Context, r *Renderer, w io.Writer, n *html.Node) error

// Renderer maps tags to render functions. Unmapped tags are emitted as is.
type Renderer struct {
	funcs    map[atom.Atom]RenderFunc
	diagrams DiagramRenderer
}

// New returns a renderer with the default article styling. diagrams may be
// nil, in which case diagram placeholders render as plain containers.
func New(diagrams DiagramRenderer) *Renderer {
	r := &Renderer{
		funcs:    make(map[atom.Atom]RenderFunc),
		diagrams: diagrams,
	}
	for a, classes := range defaultClasses {
		r.funcs[a] = Styled(classes)
	}
	r.funcs[atom.Table] = renderTable
	r.funcs[atom.Div] = renderDiv
	return r
}

// Register installs fn for tag a, replacing any previous mapping.
func (r *Renderer) Register(a atom.Atom, fn RenderFunc) {
	r.funcs[a] = fn
}

// Lookup returns the render function for a, or Identity when unmapped.
func (r *Renderer) Lookup(a atom.Atom) RenderFunc {
	if fn, ok := r.funcs[a]; ok {
		return fn
	}
	return Identity
}

// Render writes the HTML for the tree rooted at root. Only write errors
// are returned.
func (r *Renderer) Render(ctx context.Context, w io.Writer, root *html.Node) error {
	sw := &stickyWriter{w: w}
	if err := r.renderNode(ctx, sw, root); err != nil {
		return err
	}
	return sw.err
}

// RenderChildren renders the children of n in order.
func (r *Renderer) RenderChildren(ctx context.Context, w io.Writer, n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := r.renderNode(ctx, w, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderNode(ctx context.Context, w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.DocumentNode:
		return r.RenderChildren(ctx, w, n)
	case html.TextNode:
		if n.Parent != nil && isRawText(n.Parent.Data) {
			_, err := io.WriteString(w, n.Data)
			return err
		}
		_, err := io.WriteString(w, html.EscapeString(n.Data))
		return err
	case html.ElementNode:
		return r.Lookup(n.DataAtom)(ctx, r, w, n)
	}
	// Comments, doctypes and raw nodes are dropped.
	return nil
}

// Identity emits an element unchanged.
func Identity(ctx context.Context, r *Renderer, w io.Writer, n *html.Node) error {
	return r.WriteElement(ctx, w, n, n.Attr)
}

// Styled returns a render function that prepends defaults to the class
// list of the element and forwards every other attribute.
func Styled(defaults string) RenderFunc {
	return func(ctx context.Context, r *Renderer, w io.Writer, n *html.Node) error {
		return r.WriteElement(ctx, w, n, withClasses(n.Attr, defaults))
	}
}

// WriteElement writes n with the given attributes and renders its
// children through the dispatch table.
func (r *Renderer) WriteElement(ctx context.Context, w io.Writer, n *html.Node, attrs []html.Attribute) error {
	if err := writeStartTag(w, n.Data, attrs); err != nil {
		return err
	}
	if isVoid(n.Data) {
		return nil
	}
	if err := r.RenderChildren(ctx, w, n); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</"+n.Data+">")
	return err
}

func renderTable(ctx context.Context, r *Renderer, w io.Writer, n *html.Node) error {
	if _, err := io.WriteString(w, `<div class="`+tableWrapperClasses+`">`); err != nil {
		return err
	}
	if err := r.WriteElement(ctx, w, n, withClasses(n.Attr, tableClasses)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</div>")
	return err
}

func renderDiv(ctx context.Context, r *Renderer, w io.Writer, n *html.Node) error {
	if r.diagrams != nil && hasClass(n, DiagramMarkerClass) {
		if src := DiagramSource(n); src != "" {
			return r.diagrams.RenderDiagram(ctx, w, src)
		}
	}
	return Identity(ctx, r, w, n)
}

// DiagramSource returns the diagram source carried by a placeholder. The
// hyphenated and camel-cased attribute spellings are equivalent; an empty
// value under one falls through to the other.
func DiagramSource(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Val == "" {
			continue
		}
		if strings.EqualFold(a.Key, "data-mermaid") || strings.EqualFold(a.Key, "dataMermaid") {
			return a.Val
		}
	}
	return ""
}

func withClasses(attrs []html.Attribute, defaults string) []html.Attribute {
	out := make([]html.Attribute, 0, len(attrs)+1)
	caller := ""
	for _, a := range attrs {
		if a.Namespace == "" && a.Key == "class" {
			caller = a.Val
			continue
		}
		out = append(out, a)
	}
	merged := Classes(defaults, caller)
	if merged == "" {
		return out
	}
	return append([]html.Attribute{{Key: "class", Val: merged}}, out...)
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func writeStartTag(w io.Writer, tag string, attrs []html.Attribute) error {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)
	for _, a := range attrs {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace)
			b.WriteByte(':')
		}
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	_, err := io.WriteString(w, b.String())
	return err
}

func isVoid(tag string) bool {
	switch tag {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}

func isRawText(tag string) bool {
	return tag == "script" || tag == "style"
}

// stickyWriter remembers the first write error so deep recursion does not
// have to check every short write.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.w.Write(p)
	s.err = err
	return n, err
}
