package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const recentBuilds = 10

// handleReload queues a rebuild of the content directory. force=true
// rebuilds even when the content hash is unchanged.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	b, err := s.orchestrator.Submit("api", force)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"build_id": b.ID,
		"status":   b.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/build/%s", b.ID),
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	b := s.orchestrator.GetBuild(chi.URLParam(r, "buildID"))
	if b == nil {
		jsonError(w, "build not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b.Snapshot())
}

// handleBuildStatus reports the published site and recent builds.
func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"queue_depth": s.orchestrator.QueueDepth(),
	}
	if site := s.orchestrator.Site(); site != nil {
		resp["site"] = map[string]any{
			"built_at":  site.BuiltAt,
			"projects":  site.Len(),
			"published": len(site.Published()),
		}
	}
	if last := s.orchestrator.LastBuild(); last != nil {
		resp["last_build"] = last.Snapshot()
	}
	recent := s.orchestrator.RecentBuilds(recentBuilds)
	snaps := make([]pipeline.BuildSnapshot, len(recent))
	for i, b := range recent {
		snaps[i] = b.Snapshot()
	}
	resp["builds"] = snaps

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
