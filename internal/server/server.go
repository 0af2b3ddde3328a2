// Package server exposes a lab session over HTTP.
package server

import (
	"context"
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"

	"github.com/buckleypaul/benchlab/internal/examples"
	"github.com/buckleypaul/benchlab/internal/lab"
	"github.com/buckleypaul/benchlab/internal/logging"
	"github.com/buckleypaul/benchlab/internal/metrics"
)

// maxSketchBytes bounds compile request bodies.
const maxSketchBytes = 1 << 20

// Suggester reviews a sketch through the external suggestion service.
type Suggester interface {
	Suggest(ctx context.Context, code string) (string, error)
}

// Config configures the HTTP layer.
type Config struct {
	// Prefix is /<server_name>/<lab_name>; empty mounts the API at the root.
	Prefix     string
	UserEmail  string
	EndTime    string
	CamURL     string
	CookieName string

	BaudRate       int
	MonitorDefault time.Duration
	MonitorMax     time.Duration

	// Suggester serves /suggest; nil disables it.
	Suggester Suggester

	// Now defaults to time.Now.
	Now func() time.Time
}

// Server handles the lab API.
type Server struct {
	cfg     Config
	lab     *lab.Service
	catalog *examples.Catalog
	metrics *metrics.Metrics
	logger  *logging.Logger
	cookies *securecookie.SecureCookie
}

// New creates a Server.
func New(cfg Config, svc *lab.Service, catalog *examples.Catalog, m *metrics.Metrics, logger *logging.Logger) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = "benchlab_session"
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 9600
	}
	if cfg.MonitorDefault <= 0 {
		cfg.MonitorDefault = 10 * time.Second
	}
	if cfg.MonitorMax <= 0 {
		cfg.MonitorMax = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// The cookie keys derive from the session identity, so a cookie is only
	// valid for the booking it was issued in.
	secret := cfg.UserEmail + cfg.EndTime
	hashKey := sha256.Sum256([]byte("hash:" + secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))
	sc := securecookie.New(hashKey[:], blockKey[:])

	return &Server{
		cfg:     cfg,
		lab:     svc,
		catalog: catalog,
		metrics: m,
		logger:  logging.OrNop(logger).WithComponent("http"),
		cookies: sc,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	routes := func(pr chi.Router) {
		pr.Post("/api/login", s.handleLogin)
		pr.Post("/api/logout", s.handleLogout)

		pr.Group(func(ar chi.Router) {
			ar.Use(s.requireUser)
			ar.Get("/api/session", s.handleSession)
			ar.Get("/api/boards", s.handleBoards)
			ar.Route("/api/boards/{id}", func(br chi.Router) {
				br.Get("/examples", s.handleExamples)
				br.Get("/examples/{file}", s.handleExample)
				br.Post("/compile", s.handleCompile)
				br.Post("/suggest", s.handleSuggest)
				br.Post("/execute", s.handleExecute)
				br.Get("/monitor", s.handleMonitor)
			})
			ar.Post("/api/reset", s.handleReset)
			ar.Get("/api/history", s.handleHistory)
		})
	}
	if s.cfg.Prefix == "" {
		r.Group(routes)
	} else {
		r.Route(s.cfg.Prefix, routes)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
