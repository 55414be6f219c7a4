package api

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"strconv"

	"github.com/dgallion1/folio/internal/content"
	"github.com/dgallion1/folio/internal/diagram"
	"github.com/go-chi/chi/v5"
)

// DiagramViewer mounts diagrams for the full-screen viewer.
type DiagramViewer interface {
	Open(ctx context.Context, source string, page diagram.Page) *diagram.Diagram
}

// viewerPage is the page hosting an expanded diagram. Locking scroll shows
// up as the body class.
type viewerPage struct {
	locked bool
}

func (p *viewerPage) LockScroll()   { p.locked = true }
func (p *viewerPage) UnlockScroll() { p.locked = false }

// handleDiagram serves one project diagram in the expanded viewer. The
// viewer keeps no server state: zoom is replayed from the query on every
// request.
//
//	width   viewport width used to fit the diagram
//	op      in, out or reset, applied in order
//	wheel   wheel deltas, applied after ops
//	key     a key press; Escape closes the viewer
//	outside a click on the backdrop; closes the viewer
func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	if s.viewer == nil {
		http.NotFound(w, r)
		return
	}
	site := s.site(w)
	if site == nil {
		return
	}
	slug := chi.URLParam(r, "slug")
	p, err := site.Project(slug)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	source, ok := diagramByKey(p, chi.URLParam(r, "key"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.DiagramWait)
	defer cancel()

	page := &viewerPage{}
	d := s.viewer.Open(ctx, source, page)
	defer d.Unmount()

	width, _ := strconv.ParseFloat(q.Get("width"), 64)
	if d.Expand(width) {
		for _, op := range q["op"] {
			switch op {
			case "in":
				d.ZoomIn()
			case "out":
				d.ZoomOut()
			case "reset":
				d.ResetZoom()
			}
		}
		for _, v := range q["wheel"] {
			if dy, err := strconv.ParseFloat(v, 64); err == nil {
				d.Wheel(dy)
			}
		}
		closed := false
		if key := q.Get("key"); key != "" {
			closed = d.HandleKey(key)
		}
		if q.Get("outside") != "" {
			closed = d.ClickOutside() || closed
		}
		if closed {
			http.Redirect(w, r, "/projects/"+slug, http.StatusSeeOther)
			return
		}
	}

	var buf bytes.Buffer
	if err := d.WriteHTML(&buf); err != nil {
		s.log.Error("diagram view failed", "slug", slug, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	l := s.layout(site, p.Meta.Title)
	if page.locked {
		l.BodyClass = "overflow-hidden"
	}
	s.writePage(w, "diagram", diagramPage{
		layout:   l,
		Project:  p,
		Viewer:   template.HTML(buf.String()),
		Expanded: d.State().Phase == diagram.PhaseExpanded,
	})
}

func diagramByKey(p *content.Project, key string) (string, bool) {
	for _, src := range p.Diagrams {
		if diagram.Key(src) == key {
			return src, true
		}
	}
	return "", false
}
