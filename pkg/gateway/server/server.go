package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vai-duet/pkg/core/dispatch"
	"github.com/vango-go/vai-duet/pkg/gateway/config"
	"github.com/vango-go/vai-duet/pkg/gateway/handlers"
	"github.com/vango-go/vai-duet/pkg/gateway/journal"
	"github.com/vango-go/vai-duet/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-duet/pkg/gateway/live/session"
	"github.com/vango-go/vai-duet/pkg/gateway/live/sessions"
	"github.com/vango-go/vai-duet/pkg/gateway/mediastore"
	"github.com/vango-go/vai-duet/pkg/gateway/mw"
)

// JournalStore is the optional request journal.
type JournalStore interface {
	journal.Recorder
	handlers.Pinger
}

type Deps struct {
	NewTransport session.TransportFactory
	Media        dispatch.MediaClient
	Store        *mediastore.Store
	Journal      JournalStore
	Now          func() time.Time
}

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	deps      Deps
	lifecycle *lifecycle.State
	sessions  *sessions.Registry
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Store == nil {
		deps.Store = mediastore.New(nil, cfg.MediaMaxBytes, logger)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		deps:      deps,
		lifecycle: lifecycle.New(deps.Now()),
		sessions:  sessions.NewRegistry(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	ready := handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Now:       s.deps.Now,
	}
	studio := handlers.StudioHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		Sessions:     s.sessions,
		NewTransport: s.deps.NewTransport,
		Media:        s.deps.Media,
		Materializer: s.deps.Store,
	}
	if s.deps.Journal != nil {
		ready.Journal = s.deps.Journal
		studio.Journal = s.deps.Journal
	}

	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", ready)
	s.mux.Handle("/v1/tools", handlers.ToolsHandler{})
	s.mux.Handle("/v1/studio", studio)
	s.mux.Handle(mediastore.PathPrefix, s.deps.Store)
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) Sessions() *sessions.Registry { return s.sessions }

// Drain stops accepting studio sessions, warns the open ones, and waits for
// them to finish until ctx is done. Sessions still open then are canceled.
// It reports whether every session ended on its own.
func (s *Server) Drain(ctx context.Context) bool {
	if !s.lifecycle.BeginDrain(s.deps.Now()) {
		return s.sessions.Wait(ctx)
	}
	n := s.sessions.NoticeAll("server_draining", "server is shutting down")
	s.logger.Info("draining studio sessions", "sessions", s.sessions.Count(), "notified", n)
	if s.sessions.Wait(ctx) {
		return true
	}
	canceled := s.sessions.CancelAll()
	s.logger.Warn("canceled studio sessions after drain timeout", "sessions", canceled)
	return false
}
