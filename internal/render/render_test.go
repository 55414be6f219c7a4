package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dgallion1/folio/internal/doctree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type fakeDiagrams struct {
	sources []string
}

func (f *fakeDiagrams) RenderDiagram(ctx context.Context, w io.Writer, source string) error {
	f.sources = append(f.sources, source)
	_, err := io.WriteString(w, "<figure>diagram</figure>")
	return err
}

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	require.NoError(t, err)
	root := doctree.NewRoot()
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root
}

func renderString(t *testing.T, r *Renderer, src string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Render(context.Background(), &buf, parse(t, src)))
	return buf.String()
}

func TestClasses_DefaultsAlwaysPresent(t *testing.T) {
	assert.Equal(t, "mt-2", Classes("mt-2"))
	assert.Equal(t, "mt-2", Classes("mt-2", ""))
	assert.Equal(t, "mt-2", Classes("mt-2", "   "))
	assert.Equal(t, "mt-2 custom", Classes("mt-2", "custom"))
	assert.Equal(t, "custom", Classes("", "custom"))
}

func TestRender_MergesDefaultAndCallerClasses(t *testing.T) {
	r := New(nil)
	out := renderString(t, r, `<p class="lead" data-x="1">hi</p>`)
	assert.Equal(t, `<p class="`+html.EscapeString(DefaultClasses(atom.P)+" lead")+`" data-x="1">hi</p>`, out)
}

func TestRender_EmptyCallerClassKeepsDefaults(t *testing.T) {
	r := New(nil)
	out := renderString(t, r, `<li class="">x</li>`)
	assert.Equal(t, `<li class="mt-2">x</li>`, out)
}

func TestRender_EveryMappedTagCarriesDefaults(t *testing.T) {
	r := New(nil)
	for _, tag := range []string{"h1", "h2", "h3", "h4", "h5", "h6", "a", "p", "ul", "ol", "blockquote", "pre", "code"} {
		out := renderString(t, r, "<"+tag+">x</"+tag+">")
		a := atom.Lookup([]byte(tag))
		assert.Contains(t, out, `class="`+html.EscapeString(DefaultClasses(a))+`"`, tag)
	}
}

func TestRender_VoidElements(t *testing.T) {
	r := New(nil)
	out := renderString(t, r, `<img src="/a.png" alt="A"><hr>`)
	assert.Equal(t, `<img class="`+html.EscapeString(DefaultClasses(atom.Img))+`" src="/a.png" alt="A"><hr class="`+html.EscapeString(DefaultClasses(atom.Hr))+`">`, out)
}

func TestRender_TableIsWrapped(t *testing.T) {
	r := New(nil)
	out := renderString(t, r, `<table><tbody><tr><td>1</td></tr></tbody></table>`)
	assert.True(t, strings.HasPrefix(out, `<div class="w-full my-6 overflow-y-auto"><table class="w-full">`), out)
	assert.True(t, strings.HasSuffix(out, `</table></div>`), out)
	assert.Contains(t, out, `<tbody><tr class="`)
}

func TestRender_UnmappedTagIsIdentity(t *testing.T) {
	r := New(nil)
	out := renderString(t, r, `<section id="s"><em>a &amp; b</em></section>`)
	assert.Equal(t, `<section id="s"><em>a &amp; b</em></section>`, out)
}

func TestRender_DiagramPlaceholderDelegates(t *testing.T) {
	d := &fakeDiagrams{}
	r := New(d)
	out := renderString(t, r, `<div class="mermaid-diagram" data-mermaid="graph TD"></div>`)
	assert.Equal(t, "<figure>diagram</figure>", out)
	assert.Equal(t, []string{"graph TD"}, d.sources)
}

func TestRender_DiagramCamelCaseAttribute(t *testing.T) {
	d := &fakeDiagrams{}
	r := New(d)
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "mermaid-diagram"},
			{Key: "dataMermaid", Val: "flowchart LR"},
		},
	}
	root := doctree.NewRoot()
	root.AppendChild(n)

	var buf bytes.Buffer
	require.NoError(t, r.Render(context.Background(), &buf, root))
	assert.Equal(t, []string{"flowchart LR"}, d.sources)
}

func TestRender_DiagramEmptyAttributeFallsThrough(t *testing.T) {
	d := &fakeDiagrams{}
	r := New(d)
	out := renderString(t, r, `<div class="mermaid-diagram" data-mermaid="" dataMermaid="graph TD; A-->B"></div>`)
	assert.Equal(t, "<figure>diagram</figure>", out)
	assert.Equal(t, []string{"graph TD; A-->B"}, d.sources)
}

func TestRender_DiagramWithoutSourceFallsBack(t *testing.T) {
	d := &fakeDiagrams{}
	r := New(d)
	out := renderString(t, r, `<div class="mermaid-diagram" data-mermaid="" data-k="v"></div>`)
	assert.Equal(t, `<div class="mermaid-diagram" data-mermaid="" data-k="v"></div>`, out)
	assert.Empty(t, d.sources)
}

func TestRender_PlainDivPassesAttributes(t *testing.T) {
	d := &fakeDiagrams{}
	r := New(d)
	out := renderString(t, r, `<div class="note" id="n1">x</div>`)
	assert.Equal(t, `<div class="note" id="n1">x</div>`, out)
	assert.Empty(t, d.sources)
}

func TestRender_RegisterOverrides(t *testing.T) {
	r := New(nil)
	r.Register(atom.Em, Styled("italic"))
	out := renderString(t, r, `<em>x</em>`)
	assert.Equal(t, `<em class="italic">x</em>`, out)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("closed") }

func TestRender_WriteErrorPropagates(t *testing.T) {
	r := New(nil)
	err := r.Render(context.Background(), failingWriter{}, parse(t, "<p>x</p>"))
	assert.Error(t, err)
}
