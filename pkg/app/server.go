package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loom-ui/loom/pkg/live/wsbridge"
)

// Shell is the thin HTTP surface around a runtime: an SSR page, the live
// websocket endpoint and the metrics endpoint. Routing stays deliberately
// flat — it is a collaborator of the engine, not part of it.
type Shell struct {
	runtime  *Runtime
	title    string
	logger   *slog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithTitle sets the SSR page title.
func WithTitle(title string) ShellOption {
	return func(s *Shell) { s.title = title }
}

// WithShellLogger sets the shell logger.
func WithShellLogger(l *slog.Logger) ShellOption {
	return func(s *Shell) { s.logger = l }
}

// NewShell creates the HTTP shell for a mounted runtime.
func NewShell(rt *Runtime, opts ...ShellOption) *Shell {
	s := &Shell{
		runtime: rt,
		title:   "loom app",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/live", s.handleLive)
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Shell) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleIndex serves the server-rendered page.
func (s *Shell) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body>%s</body></html>",
		s.title, s.runtime.HTML())
}

// handleLive upgrades to a websocket and bridges the live tree.
func (s *Shell) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	tree := s.runtime.Tree()
	if tree == nil {
		s.logger.Warn("live connection before mount")
		return
	}
	bridge := wsbridge.New(conn, tree, s.logger)
	if err := bridge.Run(r.Context()); err != nil {
		s.logger.Warn("live connection closed", "error", err)
	}
}
