package api

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/dgallion1/folio/internal/content"
	"github.com/dgallion1/folio/internal/doctree"
	"github.com/dgallion1/folio/internal/render"
	"github.com/go-chi/chi/v5"
)

const siteNameFallback = "Portfolio"

// site returns the published site or writes 503 while the first build is
// still running.
func (s *Server) site(w http.ResponseWriter) *content.Site {
	site := s.orchestrator.Site()
	if site == nil {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "site is being built", http.StatusServiceUnavailable)
	}
	return site
}

func (s *Server) layout(site *content.Site, title string) layout {
	name := site.Data.Profile.Name
	if name == "" {
		name = siteNameFallback
	}
	return layout{SiteName: name, Title: title, Nav: site.Data.Navigation}
}

func (s *Server) writePage(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderPage(w, name, data); err != nil {
		s.log.Error("page render failed", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	site := s.site(w)
	if site == nil {
		return
	}
	l := s.layout(site, "")
	l.Home = true
	l.Description = site.Data.Profile.Tagline
	s.writePage(w, "home", homePage{
		layout:  l,
		Profile: site.Data.Profile,
		Skills:  site.Data.Skills,
	})
}

func (s *Server) handleEducation(w http.ResponseWriter, r *http.Request) {
	site := s.site(w)
	if site == nil {
		return
	}
	s.writePage(w, "education", educationPage{
		layout:       s.layout(site, "Education"),
		Degrees:      site.Data.Degrees,
		Certificates: site.Data.Certificates,
	})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	site := s.site(w)
	if site == nil {
		return
	}
	views := s.tracker.ViewsFor(r.Context(), site.Slugs())
	toCards := func(ps []*content.Project) []card {
		out := make([]card, len(ps))
		for i, p := range ps {
			out[i] = card{Project: p, Views: views[p.Slug]}
		}
		return out
	}

	page := projectsPage{layout: s.layout(site, "Projects")}
	if featured := toCards(site.Featured()); len(featured) > 0 {
		page.Lead = &featured[0]
		page.Secondary = featured[1:]
	}
	page.Columns = columns(toCards(site.Rest()), 3)
	s.writePage(w, "projects", page)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	site := s.site(w)
	if site == nil {
		return
	}
	slug := chi.URLParam(r, "slug")
	p, err := site.Project(slug)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			s.log.Warn("project lookup failed", "slug", slug, "error", err)
		}
		http.NotFound(w, r)
		return
	}

	body, err := s.renderBody(r.Context(), p)
	if err != nil {
		s.log.Error("article render failed", "slug", slug, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	l := s.layout(site, p.Meta.Title)
	l.Description = p.Summary()
	s.writePage(w, "project", projectPage{
		layout:  l,
		Project: p,
		Views:   s.tracker.Views(r.Context(), slug),
		Body:    body,
		TOC:     doctree.Flatten(p.TOC),
	})
}

// renderBody renders the article tree. Diagrams still rendering when the
// wait budget runs out are written in their loading state.
func (s *Server) renderBody(ctx context.Context, p *content.Project) (template.HTML, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DiagramWait)
	defer cancel()

	var buf bytes.Buffer
	if err := render.New(s.diagrams).Render(ctx, &buf, p.Root); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
