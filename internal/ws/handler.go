// Package ws streams a session's derived view to browser clients and accepts
// their actions over the same socket.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/hub"
	"github.com/DoyleJ11/tablesync/internal/session"
	"github.com/DoyleJ11/tablesync/internal/store"
	"github.com/DoyleJ11/tablesync/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	readIdle     = 60 * time.Second
)

// Handler expects a chi route with a {gameID} parameter.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Session, 1)
		h.Inbox() <- hub.GetSession{GameID: gameID, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "game not followed", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan store.View, 8)
		if err := s.Send(r.Context(), session.Watch{ClientID: clientID, Outbox: out}); err != nil {
			c.Close(websocket.StatusGoingAway, "session closed")
			return
		}
		defer func() { _ = s.Send(context.Background(), session.Unwatch{ClientID: clientID}) }()

		clog := log.With(zap.String("game_id", gameID), zap.String("client_id", clientID))
		clog.Info("client attached")

		// Writer: the store closes out when it drops this client or shuts down.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for v := range out {
				if err := write(writeCtx, c, types.ServerMessage{Type: "View", View: &v}); err != nil {
					clog.Debug("write view", zap.Error(err))
				}
			}
			c.Close(websocket.StatusGoingAway, "view stream ended")
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), readIdle)
			_, data, err := c.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read", zap.Error(err))
				}
				clog.Info("client detached")
				return
			}

			var cm types.ClientMessage
			if err := types.Unmarshal(data, &cm); err != nil {
				_ = write(r.Context(), c, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			if err := dispatch(r.Context(), s, cm); err != nil {
				_ = write(r.Context(), c, types.ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

type unknownType string

func (u unknownType) Error() string { return "unknown type " + string(u) }

type unknownAction string

func (u unknownAction) Error() string { return "unknown action " + string(u) }

func dispatch(ctx context.Context, s *session.Session, cm types.ClientMessage) error {
	switch cm.Type {
	case "Action":
		action, ok := engine.ParseAction(cm.Action)
		if !ok {
			return unknownAction(cm.Action)
		}
		return s.Submit(ctx, engine.ActionRequest{Type: action, Amount: cm.Amount})
	case "ForceReconnect":
		return s.Send(ctx, session.ForceReconnect{})
	default:
		return unknownType(cm.Type)
	}
}

func write(ctx context.Context, c *websocket.Conn, msg types.ServerMessage) error {
	payload, err := types.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, payload)
}
