package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/folio/internal/config"
	"github.com/dgallion1/folio/internal/diagram"
	"github.com/dgallion1/folio/internal/pageview"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/render"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators the server reads from. Viewer, DiagramStats,
// DiagramCache and Metrics may be nil.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Tracker      *pageview.Tracker
	Diagrams     render.DiagramRenderer
	Viewer       DiagramViewer
	DiagramStats *diagram.Stats
	DiagramCache *diagram.Cache
	Metrics      http.Handler
}

// Server is the HTTP server for the site and its API.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	tracker      *pageview.Tracker
	diagrams     render.DiagramRenderer
	viewer       DiagramViewer
	diagramStats *diagram.Stats
	diagramCache *diagram.Cache
	metrics      http.Handler
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: deps.Orchestrator,
		tracker:      deps.Tracker,
		diagrams:     deps.Diagrams,
		viewer:       deps.Viewer,
		diagramStats: deps.DiagramStats,
		diagramCache: deps.DiagramCache,
		metrics:      deps.Metrics,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// Pages.
	r.Group(func(r chi.Router) {
		r.Use(Compress)

		r.Get("/", s.handleHome)
		r.Get("/education", s.handleEducation)
		r.Get("/projects", s.handleProjects)
		r.Get("/projects/{slug}", s.handleProject)
		r.Get("/projects/{slug}/diagrams/{key}", s.handleDiagram)
	})

	// Public API.
	r.Post("/api/incr", s.handleIncr)
	r.Get("/api/views", s.handleViews)
	r.Get("/api/stats/diagrams", s.handleDiagramStats)

	// Admin API.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AdminAPIKey, s.log))

		r.Post("/api/reload", s.handleReload)
		r.Get("/api/build/status", s.handleBuildStatus)
		r.Get("/api/build/{buildID}", s.handleBuild)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.orchestrator.Site() == nil {
		status = "building"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"` + status + `"}`))
}
