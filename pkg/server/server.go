// Package server exposes the task board over HTTP and pushes list changes to
// websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/session"
	"github.com/harrisonrobin/taskboard/pkg/view"
)

type Options struct {
	Addr    string
	Session *session.Controller
	// SignIn authenticates the user and returns the store to use for
	// them. A nil store keeps the one the session already has. Without
	// SignIn the login endpoint reports remote storage as unavailable.
	SignIn func(ctx context.Context) (auth.Identity, session.RemoteStore, error)
	// SignOut forgets stored credentials on logout. Optional.
	SignOut func() error
	// AllowedOrigins are extra websocket origin patterns besides the
	// server's own host.
	AllowedOrigins []string
	Now            func() time.Time
	Logger         *slog.Logger
}

// Server is the taskboard HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *Hub
	ctl        *session.Controller
	signIn     func(ctx context.Context) (auth.Identity, session.RemoteStore, error)
	signOut    func() error
	now        func() time.Time
	log        *slog.Logger
}

func New(opts Options) *Server {
	s := &Server{
		ctl:     opts.Session,
		signIn:  opts.SignIn,
		signOut: opts.SignOut,
		now:     opts.Now,
		log:     opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.hub = NewHub(opts.Session, opts.AllowedOrigins, s.log)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the router; used directly by tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)

	r.Get("/api/session", s.handleSession)
	r.Post("/api/session/login", s.handleLogin)
	r.Post("/api/session/logout", s.handleLogout)

	r.Route("/api/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
	})

	r.Get("/api/calendar", s.handleCalendar)
	return r
}

// Start listens on the configured address and blocks until the server is
// shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("taskboard listening", "addr", ln.Addr().String(), "mode", s.ctl.Mode())
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes websocket clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) today() civil.Date {
	return civil.DateOf(s.now())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to status codes: invalid input 400,
// failed sign-in 401, unknown task 404, failed remote write 502, remote
// storage not configured 503.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidTask), errors.Is(err, view.ErrInvalidFilter), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrAuthFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrRemoteWrite):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
