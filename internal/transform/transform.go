// Package transform rewrites parsed document trees before rendering.
package transform

import "golang.org/x/net/html"

// Transformer mutates a document tree in place.
type Transformer interface {
	Name() string
	Transform(root *html.Node)
}

// Chain runs transformers in order.
type Chain []Transformer

// Default is the standard content chain. Diagram extraction comes first so
// the highlighter never sees diagram source.
func Default() Chain {
	return Chain{Mermaid{}, Highlight{}, HeadingIDs{}}
}

func (c Chain) Apply(root *html.Node) {
	for _, t := range c {
		t.Transform(root)
	}
}
