package transform

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/dgallion1/folio/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// HeadingIDs gives every h2 and h3 an anchor id derived from its text.
// Existing ids are kept; collisions get a numeric suffix.
type HeadingIDs struct{}

func (HeadingIDs) Name() string { return "heading-ids" }

func (HeadingIDs) Transform(root *html.Node) {
	seen := make(map[string]int)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id, ok := doctree.Attr(n, "id"); ok && id != "" {
				seen[id]++
			}
			if n.DataAtom == atom.H2 || n.DataAtom == atom.H3 {
				if _, ok := doctree.Attr(n, "id"); !ok {
					id := Slugify(doctree.TextContent(n))
					if id != "" {
						if count := seen[id]; count > 0 {
							seen[id]++
							id = id + "-" + strconv.Itoa(count)
						}
						seen[id]++
						doctree.SetAttr(n, "id", id)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}

// Slugify turns heading text into an anchor id: lower case, diacritics
// removed, whitespace runs collapsed to a single hyphen.
func Slugify(s string) string {
	t := xtransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := xtransform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(folded)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case unicode.IsSpace(r) || r == '-':
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
