// Package web provides the HTTP status page, JSON status, Prometheus
// metrics and remote control endpoints of the washer daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/input"
	"github.com/atharvap8/intelliverter/internal/status"
)

// StatusSource provides snapshots, e.g. a *status.Tracker.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Controls executes remote commands, e.g. an *input.Dispatcher.
type Controls interface {
	Execute(name string) error
	Commands() []input.Command
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	source     StatusSource
	controls   Controls
	log        *zap.SugaredLogger
}

// New creates a Server. controls and metrics may be nil to disable the
// control API and the /metrics endpoint.
func New(addr string, source StatusSource, controls Controls, metrics http.Handler, log *zap.SugaredLogger) *Server {
	s := &Server{source: source, controls: controls, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	if controls != nil {
		api := r.PathPrefix("/api").Subrouter()
		api.HandleFunc("/commands", s.handleCommands).Methods(http.MethodGet)
		api.HandleFunc("/command/{name}", s.handleCommand).Methods(http.MethodPost)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.controls != nil); err != nil {
		s.log.Warnw("render status page", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// CommandJSON describes one remote command.
type CommandJSON struct {
	Name string `json:"name"`
	Help string `json:"help"`
}

// ResultJSON is the reply to a command.
type ResultJSON struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	var out []CommandJSON
	for _, c := range s.controls.Commands() {
		out = append(out, CommandJSON{Name: c.Name, Help: c.Help})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := s.controls.Execute(name)
	if err != nil {
		s.log.Infow("http command rejected", "command", name, "err", err)
	} else {
		s.log.Infow("http command", "command", name)
	}

	// the status page posts a form and expects to land back on it
	if r.FormValue("redirect") != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	res := ResultJSON{Command: name, OK: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	writeJSON(w, commandStatus(err), res)
}

func commandStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case errors.Is(err, input.ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, input.ErrBusy), errors.Is(err, input.ErrNotAwaiting):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
