package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/actionlog"
	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/hub"
	"github.com/DoyleJ11/tablesync/internal/session"
	"github.com/DoyleJ11/tablesync/internal/turn"
	"github.com/DoyleJ11/tablesync/internal/types"
)

const defaultRecent = 50

type actionBody struct {
	Action string `json:"action"`
	Amount int64  `json:"amount,omitempty"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func lookup(h *hub.Hub, gameID string) *session.Session {
	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.GetSession{GameID: gameID, Reply: reply}
	return <-reply
}

// Follow starts following a game, or returns the existing session's view.
func Follow(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		existing := lookup(h, gameID)
		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.CreateSession{GameID: gameID, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "failed to follow game", http.StatusInternalServerError)
			return
		}

		status := http.StatusCreated
		if existing != nil {
			status = http.StatusOK
		}
		writeJSON(w, status, struct {
			GameID string `json:"gameId"`
		}{GameID: gameID})
	}
}

func Unfollow(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if lookup(h, gameID) == nil {
			http.Error(w, "game not followed", http.StatusNotFound)
			return
		}
		h.Inbox() <- hub.RemoveSession{GameID: gameID}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetView(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, chi.URLParam(r, "gameID"))
		if s == nil {
			http.Error(w, "game not followed", http.StatusNotFound)
			return
		}
		v, err := s.View(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func SubmitAction(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, chi.URLParam(r, "gameID"))
		if s == nil {
			http.Error(w, "game not followed", http.StatusNotFound)
			return
		}

		var body actionBody
		data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil || types.Unmarshal(data, &body) != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		action, ok := engine.ParseAction(body.Action)
		if !ok {
			http.Error(w, engine.ErrUnknownAction.Error(), http.StatusUnprocessableEntity)
			return
		}

		err = s.Submit(r.Context(), engine.ActionRequest{Type: action, Amount: body.Amount})
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				log.Warn("submit action", zap.Error(err))
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, turn.ErrActionInProgress), errors.Is(err, turn.ErrBotsProcessing),
		errors.Is(err, engine.ErrNoSnapshot), errors.Is(err, turn.ErrNoGame):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotYourTurn), errors.Is(err, engine.ErrIllegalAction),
		errors.Is(err, engine.ErrInvalidAmount), errors.Is(err, engine.ErrUnknownAction),
		errors.Is(err, engine.ErrGameFinished):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func ForceReconnect(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := lookup(h, chi.URLParam(r, "gameID"))
		if s == nil {
			http.Error(w, "game not followed", http.StatusNotFound)
			return
		}
		if err := s.Send(r.Context(), session.ForceReconnect{}); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// RecentActions lists the newest ?limit records, oldest first.
func RecentActions(alog actionlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := defaultRecent
		if v := r.URL.Query().Get("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			n = parsed
		}
		recs, err := alog.Recent(r.Context(), chi.URLParam(r, "gameID"), n)
		if err != nil {
			http.Error(w, "action log unavailable", http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []engine.ActionRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := types.Marshal(v)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
