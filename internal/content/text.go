package content

import (
	"strings"

	"github.com/dgallion1/folio/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WordsPerMinute is the reading speed used for reading time estimates.
const WordsPerMinute = 200

// ReadingMinutes estimates reading time from a word count, at least one
// minute for any non-empty text.
func ReadingMinutes(words int) int {
	if words <= 0 {
		return 0
	}
	m := (words + WordsPerMinute - 1) / WordsPerMinute
	if m < 1 {
		m = 1
	}
	return m
}

// Excerpt returns whole sentences from the first paragraph of root, up to
// maxWords words. A single sentence longer than the limit is cut at a word
// boundary and ends with an ellipsis.
func Excerpt(root *html.Node, maxWords int) string {
	p := firstParagraph(root)
	if p == nil {
		return ""
	}
	text := strings.Join(strings.Fields(doctree.TextContent(p)), " ")
	if text == "" {
		return ""
	}

	var b strings.Builder
	words := 0
	for _, sent := range splitSentences(text) {
		n := len(strings.Fields(sent))
		if words+n > maxWords {
			if words == 0 {
				return truncateWords(sent, maxWords)
			}
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sent)
		words += n
	}
	return b.String()
}

func firstParagraph(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.P {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p := firstParagraph(c); p != nil {
			return p
		}
	}
	return nil
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}
