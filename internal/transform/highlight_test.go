package transform

import (
	"testing"

	"github.com/dgallion1/folio/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighlight_TokenizesKnownLanguage(t *testing.T) {
	root := parse(t, `<pre><code class="language-go">package main</code></pre>`)

	Highlight{}.Transform(root)

	pre := root.FirstChild
	require.NotNil(t, pre)
	assert.True(t, doctree.HasClass(pre, HighlightClass))
	lang, _ := doctree.Attr(pre, "data-language")
	assert.Equal(t, "go", lang)
	code := pre.FirstChild
	assert.Equal(t, "package main", doctree.TextContent(code))
	assert.Contains(t, renderTree(t, root), `<span class="kn">package</span>`)
}

func TestHighlight_UnknownLanguageUntouched(t *testing.T) {
	in := `<pre><code class="language-nosuchlang">x := 1</code></pre>`
	root := parse(t, in)
	before := renderTree(t, root)
	Highlight{}.Transform(root)
	assert.Equal(t, before, renderTree(t, root))
}

func TestHighlight_SkipsDiagramLanguage(t *testing.T) {
	in := `<pre><code class="language-mermaid">graph TD</code></pre>`
	root := parse(t, in)
	before := renderTree(t, root)
	Highlight{}.Transform(root)
	assert.Equal(t, before, renderTree(t, root))
}

func TestHighlight_Idempotent(t *testing.T) {
	root := parse(t, `<pre><code class="language-python">print(1)</code></pre>`)
	Highlight{}.Transform(root)
	once := renderTree(t, root)
	Highlight{}.Transform(root)
	assert.Equal(t, once, renderTree(t, root))
}
