package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harrisonrobin/taskboard/pkg/calendar"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/session"
	"github.com/harrisonrobin/taskboard/pkg/view"
)

var errBadRequest = errors.New("bad request")

// maxBody bounds task payloads.
const maxBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": string(s.ctl.Mode())})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.State())
}

// loginWait bounds how long login waits for the first remote snapshot
// before answering.
const loginWait = 10 * time.Second

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.ctl.RemoteEnabled() || s.signIn == nil {
		s.writeError(w, r, session.ErrRemoteUnavailable)
		return
	}
	ident, store, err := s.signIn(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if store != nil {
		s.ctl.SetRemote(store)
	}
	if err := s.ctl.SignIn(r.Context(), ident); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), loginWait)
	defer cancel()
	if err := s.ctl.WaitSnapshot(ctx); err != nil {
		// the list follows over the websocket once it arrives
		s.log.Warn("first task snapshot not received", "error", err)
	}
	s.hub.broadcastSession(s.ctl.State())
	writeJSON(w, http.StatusOK, s.ctl.State())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.signOut != nil {
		if err := s.signOut(); err != nil {
			s.log.Warn("could not forget credentials", "error", err)
		}
	}
	s.hub.broadcastSession(s.ctl.State())
	writeJSON(w, http.StatusOK, s.ctl.State())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f, err := view.ParseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Derive(s.ctl.Tasks(), f))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.ctl.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// taskInput is the task form. Deadline is a YYYY-MM-DD string, empty for
// none.
type taskInput struct {
	Category   model.Category `json:"category"`
	Name       string         `json:"name"`
	Priority   model.Priority `json:"priority"`
	Deadline   string         `json:"deadline"`
	Progress   int            `json:"progress"`
	Memo       string         `json:"memo"`
	InProgress bool           `json:"inProgress"`
}

func (in taskInput) task(id string) (model.Task, error) {
	deadline, err := model.ParseDeadline(in.Deadline)
	if err != nil {
		return model.Task{}, err
	}
	return model.Task{
		ID:         id,
		Category:   in.Category,
		Name:       in.Name,
		Priority:   in.Priority,
		Deadline:   deadline,
		Progress:   in.Progress,
		Memo:       in.Memo,
		InProgress: in.InProgress,
	}, nil
}

func decodeTask(w http.ResponseWriter, r *http.Request, id string) (model.Task, error) {
	var in taskInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&in); err != nil {
		return model.Task{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return in.task(id)
}

type savedBody struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTask(w, r, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.ctl.Save(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, savedBody{ID: id})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.ctl.Get(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := decodeTask(w, r, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.ctl.Save(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, savedBody{ID: saved})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.ctl.Get(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ctl.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type calendarBody struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Prev  string          `json:"prev"`
	Next  string          `json:"next"`
	Cells []calendar.Cell `json:"cells"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	m, err := monthParam(r, calendar.MonthOf(s.today()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	grid := calendar.Project(m, s.ctl.Tasks(), s.today())
	writeJSON(w, http.StatusOK, calendarBody{
		Year:  m.Year,
		Month: int(m.Month),
		Prev:  m.Prev().String(),
		Next:  m.Next().String(),
		Cells: grid.Cells,
	})
}

// monthParam reads ?year=&month=; either may be omitted.
func monthParam(r *http.Request, def calendar.Month) (calendar.Month, error) {
	q := r.URL.Query()
	m := def
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 || y > 9999 {
			return m, fmt.Errorf("%w: year %q", errBadRequest, s)
		}
		m.Year = y
	}
	if s := q.Get("month"); s != "" {
		mo, err := strconv.Atoi(s)
		if err != nil || mo < 1 || mo > 12 {
			return m, fmt.Errorf("%w: month %q", errBadRequest, s)
		}
		m.Month = time.Month(mo)
	}
	return m, nil
}
