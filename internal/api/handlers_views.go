package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/dgallion1/folio/internal/content"
	"github.com/dgallion1/folio/internal/pageview"
)

const maxIncrBody = 4 << 10

type incrRequest struct {
	Slug string `json:"slug"`
}

// handleIncr counts a page view. Repeat views from the same address within
// the dedup window are accepted but not counted.
func (s *Server) handleIncr(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIncrBody)
	var req incrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Slug == "" {
		jsonError(w, pageview.ErrNoSlug.Error(), http.StatusBadRequest)
		return
	}

	site := s.orchestrator.Site()
	if site == nil {
		jsonError(w, "site is being built", http.StatusServiceUnavailable)
		return
	}
	if _, err := site.Project(req.Slug); errors.Is(err, content.ErrNotFound) {
		jsonError(w, "unknown project", http.StatusNotFound)
		return
	}

	counted, err := s.tracker.Record(r.Context(), req.Slug, clientIP(r))
	if err != nil {
		s.log.Error("pageview increment failed", "slug", req.Slug, "error", err)
		jsonError(w, "failed to record view", http.StatusBadGateway)
		return
	}
	s.log.Debug("pageview", "slug", req.Slug, "counted", counted)
	w.WriteHeader(http.StatusNoContent)
}

// handleViews returns counts for the requested slugs, or for every
// published project when none are given.
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	slugs := r.URL.Query()["slug"]
	if len(slugs) == 0 {
		site := s.orchestrator.Site()
		if site == nil {
			jsonError(w, "site is being built", http.StatusServiceUnavailable)
			return
		}
		slugs = site.Slugs()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"views": s.tracker.ViewsFor(r.Context(), slugs),
	})
}

// clientIP is the request's remote host. RealIP has already applied any
// forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
