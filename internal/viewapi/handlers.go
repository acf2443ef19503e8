package viewapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/liars-table/internal/codec"
	"github.com/DoyleJ11/liars-table/internal/hub"
	"github.com/DoyleJ11/liars-table/internal/session"
	"github.com/DoyleJ11/liars-table/internal/table"
)

type API struct {
	hub *hub.Hub
	log *zap.Logger
}

type moveRequest struct {
	Actual string `json:"actual"`
	Fake   string `json:"fake"`
}

type selectRequest struct {
	Card string `json:"card"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// session looks up the table's session and writes a 404 if there is none.
func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	name := chi.URLParam(r, "table")
	s, err := a.hub.Get(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "table not found")
		return nil, false
	}
	return s, true
}

func (a *API) View(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.respondView(w, r, s)
}

func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	a.intent(w, r, func(s *session.Session) error { return s.Start(r.Context()) })
}

func (a *API) Bluff(w http.ResponseWriter, r *http.Request) {
	a.intent(w, r, func(s *session.Session) error { return s.CallBluff(r.Context()) })
}

func (a *API) Play(w http.ResponseWriter, r *http.Request) {
	a.intent(w, r, func(s *session.Session) error { return s.PlayCard(r.Context()) })
}

func (a *API) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	a.intent(w, r, func(s *session.Session) error { return s.SubmitMove(r.Context(), req.Actual, req.Fake) })
}

func (a *API) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	a.intent(w, r, func(s *session.Session) error { return s.SelectCard(r.Context(), req.Card) })
}

// intent runs one player action and answers with the resulting view.
func (a *API) intent(w http.ResponseWriter, r *http.Request, do func(*session.Session) error) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if err := do(s); err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			a.log.Warn("intent failed", zap.String("table", s.Name()), zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}
	a.respondView(w, r, s)
}

func classify(err error) (int, string) {
	var verr *codec.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Message
	case errors.Is(err, table.ErrCardNotInHand):
		return http.StatusUnprocessableEntity, "That card is not in your hand"
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, "table closed"
	default:
		return http.StatusBadGateway, err.Error()
	}
}

func (a *API) respondView(w http.ResponseWriter, r *http.Request, s *session.Session) {
	snap, err := s.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", fmt.Sprintf(`"%d"`, snap.Version))
	_ = json.NewEncoder(w).Encode(snap.View)
}

// Events streams every view change as a server-sent event until the client
// goes away or the session drops it.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	out := make(chan session.Snapshot, 8)
	clientID := uuid.NewString()
	if err := s.Subscribe(r.Context(), clientID, out); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer s.Unsubscribe(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-out:
			if !ok {
				return
			}
			payload, err := json.Marshal(snap.View)
			if err != nil {
				a.log.Error("encode view", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", snap.Version, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
