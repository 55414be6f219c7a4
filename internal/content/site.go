// Package content holds the built site: projects parsed from the content
// directory plus hand-maintained site data.
package content

import (
	"errors"
	"sort"
	"time"

	"github.com/dgallion1/folio/internal/doctree"
)

// FeaturedCount is the number of projects shown above the list.
const FeaturedCount = 3

const excerptWords = 40

// ErrNotFound is returned for unknown or unpublished projects.
var ErrNotFound = errors.New("project not found")

// Project is a parsed project article.
type Project struct {
	*doctree.Document
	ReadingMinutes int
	Excerpt        string
}

// Summary is the description, or an excerpt when none was written.
func (p *Project) Summary() string {
	if p.Meta.Description != "" {
		return p.Meta.Description
	}
	return p.Excerpt
}

// NewProject wraps a parsed document.
func NewProject(doc *doctree.Document) *Project {
	return &Project{
		Document:       doc,
		ReadingMinutes: ReadingMinutes(doc.WordCount),
		Excerpt:        Excerpt(doc.Root, excerptWords),
	}
}

// Site is an immutable snapshot of the built site.
type Site struct {
	Data     SiteData
	BuiltAt  time.Time
	projects []*Project
	bySlug   map[string]*Project
}

func NewSite(data SiteData, projects []*Project) *Site {
	s := &Site{
		Data:     data,
		BuiltAt:  time.Now(),
		projects: projects,
		bySlug:   make(map[string]*Project, len(projects)),
	}
	for _, p := range projects {
		s.bySlug[p.Slug] = p
	}
	return s
}

// Project returns a published project by slug.
func (s *Site) Project(slug string) (*Project, error) {
	p, ok := s.bySlug[slug]
	if !ok || !p.Meta.Published {
		return nil, ErrNotFound
	}
	return p, nil
}

// Published returns published projects, newest first.
func (s *Site) Published() []*Project {
	var out []*Project
	for _, p := range s.projects {
		if p.Meta.Published {
			out = append(out, p)
		}
	}
	sortByDate(out)
	return out
}

// Slugs returns the slugs of published projects.
func (s *Site) Slugs() []string {
	pub := s.Published()
	out := make([]string, len(pub))
	for i, p := range pub {
		out[i] = p.Slug
	}
	return out
}

// Len returns the number of projects, published or not.
func (s *Site) Len() int { return len(s.projects) }

// Featured returns the projects highlighted on the projects page.
func (s *Site) Featured() []*Project {
	return SelectFeatured(s.Published(), s.Data.TopProjects, FeaturedCount)
}

// Rest returns published projects that are not featured, newest first.
func (s *Site) Rest() []*Project {
	featured := make(map[string]bool)
	for _, p := range s.Featured() {
		featured[p.Slug] = true
	}
	var out []*Project
	for _, p := range s.Published() {
		if !featured[p.Slug] {
			out = append(out, p)
		}
	}
	return out
}

// SelectFeatured picks up to n projects: first those whose titles appear in
// order, then projects marked featured, then any others. Within the last
// two groups newer projects come first.
func SelectFeatured(published []*Project, order []string, n int) []*Project {
	var out []*Project
	taken := make(map[string]bool)
	take := func(p *Project) {
		if len(out) < n && !taken[p.Slug] {
			out = append(out, p)
			taken[p.Slug] = true
		}
	}

	for _, title := range order {
		for _, p := range published {
			if p.Meta.Title == title {
				take(p)
				break
			}
		}
	}

	byDate := append([]*Project(nil), published...)
	sortByDate(byDate)
	for _, p := range byDate {
		if p.Meta.Featured {
			take(p)
		}
	}
	for _, p := range byDate {
		take(p)
	}
	return out
}

// sortByDate orders newest first with undated projects last. Ties keep
// slug order.
func sortByDate(ps []*Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Meta.HasDate() != b.Meta.HasDate() {
			return a.Meta.HasDate()
		}
		if !a.Meta.Date.Equal(b.Meta.Date) {
			return a.Meta.Date.After(b.Meta.Date)
		}
		return a.Slug < b.Slug
	})
}
