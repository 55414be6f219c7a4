package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/folio/internal/doctree"
	"github.com/dgallion1/folio/internal/frontmatter"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser handles HTML content files. Frontmatter is honored the same
// way as for Markdown.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	fm, body, _, err := frontmatter.Split(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	meta, err := frontmatter.Decode(fm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	root, err := parseFragment(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	// Extract title from <h1> if frontmatter did not set one.
	if meta.Title == "" {
		if h1 := findFirst(root, atom.H1); h1 != nil {
			meta.Title = doctree.TextContent(h1)
		} else {
			meta.Title = SlugFor(filename)
		}
	}

	return &doctree.Document{
		Slug:      SlugFor(filename),
		Meta:      meta,
		Root:      root,
		WordCount: doctree.WordCount(root),
	}, nil
}

// parseFragment parses HTML as the content of a <body> element and hangs
// the resulting nodes off a fresh document root.
func parseFragment(r io.Reader) (*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := doctree.NewRoot()
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirst(c, a); f != nil {
			return f
		}
	}
	return nil
}
