package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dgallion1/folio/internal/doctree"
	"github.com/dgallion1/folio/internal/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MarkdownParser handles Markdown and MDX files using goldmark.
//
// MDX files are treated as Markdown with raw HTML enabled; embedded JSX is
// passed through as HTML.
type MarkdownParser struct {
	md goldmark.Markdown
}

func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
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

	var out bytes.Buffer
	if err := p.md.Convert(body, &out); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	root, err := parseFragment(&out)
	if err != nil {
		return nil, err
	}

	if meta.Title == "" {
		meta.Title = SlugFor(filename)
	}

	return &doctree.Document{
		Slug:      SlugFor(filename),
		Meta:      meta,
		Root:      root,
		WordCount: doctree.WordCount(root),
	}, nil
}
