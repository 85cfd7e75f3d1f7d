package api

import (
	"context"
	"net/http"
	"time"

	"lyricbox/cfg"
	"lyricbox/svc/auth"
	"lyricbox/svc/db"
	"lyricbox/svc/lim"
	"lyricbox/svc/svc"
	"lyricbox/svc/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
)

const BoxPath = "/api/box"

type Server struct {
	router     *chi.Mux
	board      *svc.Board
	lim        *lim.Limiter
	cfg        *cfg.Cfg
	store      db.Store
	httpServer *http.Server
}

// NewServer wires the HTTP surface. store is only used for readiness and
// may be nil when the board runs unconfigured.
func NewServer(c *cfg.Cfg, b *svc.Board, l *lim.Limiter, admin *auth.Admin, store db.Store) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, b, c)
	s := &Server{
		router: r,
		board:  b,
		lim:    l,
		cfg:    c,
		store:  store,
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})
	if c.Environment == "development" {
		r.Mount("/debug", middleware.Profiler())
	}

	hdl := &Hdl{board: b, admin: admin, cfg: c}
	r.Route(BoxPath, func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		r.Use(mw.ContextTimeout)
		r.Use(mw.SecurityHeaders)
		r.Use(mw.NoStore)
		r.Use(mw.CORS)
		r.Use(mw.JSONContentType)
		r.Use(mw.Observe)
		r.Use(mw.RequireStore)
		r.Use(mw.RateLimit)
		r.MethodNotAllowed(hdl.MethodNotAllowed)
		r.Get("/", hdl.List)
		r.Post("/", hdl.Create)
		r.Put("/", hdl.Update)
		r.Delete("/", hdl.Delete)
	})
	s.httpServer = &http.Server{
		Addr:           ":" + c.Port,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 64 * 1024,
	}
	return s
}
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
