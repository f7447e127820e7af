package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docparse/internal/config"
	"github.com/dgallion1/docparse/internal/pipeline"
	"github.com/dgallion1/docparse/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for docparse.
type Server struct {
	router       chi.Router
	parser       *pipeline.Parser
	orchestrator *pipeline.Orchestrator
	stats        *stats.Engines
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(parser *pipeline.Parser, orch *pipeline.Orchestrator, st *stats.Engines, log *slog.Logger, cfg config.Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		parser:       parser,
		orchestrator: orch,
		stats:        st,
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
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/engines", s.handleEngines)
		r.Post("/api/parse", s.handleParse)
		r.Post("/api/chunks", s.handleChunks)

		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)

		r.Get("/api/documents", s.handleListDocuments)
		r.Delete("/api/documents/{docID}", s.handleDeleteDocument)

		r.Get("/api/stats/engines", s.handleEngineStats)
		r.Get("/api/stats/jobs", s.handleJobStats)
	})

	s.router = r
}

// handleHealth reports liveness plus how many engines can run on this host.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	available := 0
	for _, st := range s.parser.Registry().List() {
		if st.Available {
			available++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"engines_available": available,
		"queue_depth":       s.orchestrator.QueueDepth(),
	})
}
