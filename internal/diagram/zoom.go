package diagram

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultViewportWidth is assumed when the viewer size is unknown.
	DefaultViewportWidth = 1280
	defaultSVGWidth      = 800
	viewportFill         = 0.95
	viewportPadding      = 64
)

// FitZoom returns the initial zoom for the expanded viewer: the diagram is
// scaled so it fills the viewport, never below natural size, then doubled.
func FitZoom(markup string, viewportWidth float64) float64 {
	if viewportWidth <= 0 {
		viewportWidth = DefaultViewportWidth
	}
	width := svgWidth(markup)
	available := viewportWidth*viewportFill - viewportPadding
	return math.Max(1, available/width) * 2
}

// svgWidth reads the intrinsic width of the first svg element, preferring
// the viewBox width over the width attribute.
func svgWidth(markup string) float64 {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return defaultSVGWidth
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Svg {
				continue
			}
			width := float64(defaultSVGWidth)
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "width":
					if v, ok := parseLength(a.Val); ok {
						width = v
					}
				case "viewbox":
					fields := strings.Fields(strings.ReplaceAll(a.Val, ",", " "))
					if len(fields) == 4 {
						if v, err := strconv.ParseFloat(fields[2], 64); err == nil && v > 0 {
							return v
						}
					}
				}
			}
			return width
		}
	}
}

func parseLength(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
