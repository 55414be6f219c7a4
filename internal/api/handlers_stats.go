package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleDiagramStats(w http.ResponseWriter, r *http.Request) {
	if s.diagramStats == nil {
		jsonError(w, "diagram stats unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := map[string]any{
		"engine": s.cfg.DiagramEngine,
		"stats":  s.diagramStats.Snapshot(),
	}
	if s.diagramCache != nil {
		resp["cache"] = s.diagramCache.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
