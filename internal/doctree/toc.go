package doctree

import (
	"golang.org/x/net/html"
)

// BuildTOC collects h2 and h3 headings of root into a nested table of
// contents. Headings without an id are skipped.
func BuildTOC(root *html.Node) []*Heading {
	type stackEntry struct {
		heading *Heading
		level   int
	}
	top := &Heading{}
	stack := []stackEntry{{heading: top, level: 0}}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			level := tocLevel(n.Data)
			if level > 0 {
				id, _ := Attr(n, "id")
				if id == "" {
					return
				}
				h := &Heading{ID: id, Text: TextContent(n), Level: level}
				for len(stack) > 1 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				parent := stack[len(stack)-1].heading
				parent.Children = append(parent.Children, h)
				stack = append(stack, stackEntry{heading: h, level: level})
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return top.Children
}

// Flatten returns the headings in document order.
func Flatten(toc []*Heading) []*Heading {
	var out []*Heading
	var walk func([]*Heading)
	walk = func(hs []*Heading) {
		for _, h := range hs {
			out = append(out, h)
			walk(h.Children)
		}
	}
	walk(toc)
	return out
}

func tocLevel(tag string) int {
	switch tag {
	case "h2":
		return 2
	case "h3":
		return 3
	}
	return 0
}
