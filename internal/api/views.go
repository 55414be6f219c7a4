package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/dgallion1/folio/internal/content"
	"github.com/dgallion1/folio/internal/doctree"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("Jan 2, 2006") },
	"isoDate":    func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"compact":    compact,
}

var pages = map[string]*template.Template{
	"home":      parsePage("home.html"),
	"education": parsePage("education.html"),
	"projects":  parsePage("projects.html"),
	"project":   parsePage("project.html"),
	"diagram":   parsePage("diagram.html"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).Funcs(pageFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

// layout is the data every page shares.
type layout struct {
	SiteName    string
	Title       string
	Description string
	Home        bool
	BodyClass   string
	Nav         []content.NavItem
}

type card struct {
	Project *content.Project
	Views   int64
}

type homePage struct {
	layout
	Profile content.Profile
	Skills  []content.SkillGroup
}

type educationPage struct {
	layout
	Degrees      []content.Degree
	Certificates []content.Certificate
}

type projectsPage struct {
	layout
	Lead      *card
	Secondary []card
	Columns   [][]card
}

type projectPage struct {
	layout
	Project *content.Project
	Views   int64
	Body    template.HTML
	TOC     []*doctree.Heading
}

type diagramPage struct {
	layout
	Project  *content.Project
	Viewer   template.HTML
	Expanded bool
}

// renderPage executes the named page into a buffer first so template
// errors never produce a half-written response.
func renderPage(w io.Writer, name string, data any) error {
	t, ok := pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// columns deals cards round-robin into n columns. Empty columns are dropped.
func columns(cards []card, n int) [][]card {
	cols := make([][]card, n)
	for i, c := range cards {
		cols[i%n] = append(cols[i%n], c)
	}
	out := cols[:0]
	for _, c := range cols {
		if len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// compact formats a count the way short English number notation does:
// 950, 1.2K, 12K, 3.4M.
func compact(n int64) string {
	type unit struct {
		size   int64
		suffix string
	}
	for _, u := range []unit{{1_000_000_000, "B"}, {1_000_000, "M"}, {1_000, "K"}} {
		if n < u.size {
			continue
		}
		v := float64(n) / float64(u.size)
		if v < 10 {
			s := strconv.FormatFloat(float64(int64(v*10))/10, 'f', -1, 64)
			return s + u.suffix
		}
		return strconv.FormatInt(int64(v), 10) + u.suffix
	}
	return strconv.FormatInt(n, 10)
}
