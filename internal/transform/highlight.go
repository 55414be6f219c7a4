package transform

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/dgallion1/folio/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HighlightClass is added to every <pre> the highlighter has tokenized.
const HighlightClass = "chroma"

// Highlight tokenizes fenced code blocks with a known language into chroma
// class spans. Blocks of unknown languages are left untouched.
type Highlight struct{}

func (Highlight) Name() string { return "highlight" }

func (Highlight) Transform(root *html.Node) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Pre {
			highlightBlock(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

func highlightBlock(pre *html.Node) {
	if doctree.HasClass(pre, HighlightClass) {
		return
	}
	code := pre.FirstChild
	if code == nil || code.Type != html.ElementNode || code.DataAtom != atom.Code {
		return
	}
	lang := codeLanguage(code)
	if lang == "" || lang == DiagramLanguage {
		return
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return
	}

	var src strings.Builder
	for c := code.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			return // already structured
		}
		src.WriteString(c.Data)
	}

	it, err := chroma.Coalesce(lexer).Tokenise(nil, src.String())
	if err != nil {
		return
	}

	for c := code.FirstChild; c != nil; {
		next := c.NextSibling
		code.RemoveChild(c)
		c = next
	}
	for _, tok := range it.Tokens() {
		text := &html.Node{Type: html.TextNode, Data: tok.Value}
		cls := chroma.StandardTypes[tok.Type]
		if cls == "" {
			code.AppendChild(text)
			continue
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr:     []html.Attribute{{Key: "class", Val: cls}},
		}
		span.AppendChild(text)
		code.AppendChild(span)
	}

	classes := append(doctree.Classes(pre), HighlightClass)
	doctree.SetAttr(pre, "class", strings.Join(classes, " "))
	doctree.SetAttr(pre, "data-language", lang)
}

func codeLanguage(code *html.Node) string {
	for _, cls := range doctree.Classes(code) {
		if lang, ok := strings.CutPrefix(cls, "language-"); ok {
			return strings.ToLower(lang)
		}
	}
	return ""
}
