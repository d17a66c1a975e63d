package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/session"
)

// Factory builds a session for one game. The hub joins and connects it.
type Factory func(ctx context.Context, gameID string) *session.Session

type HubMsg interface{ isHubMsg() }

// CreateSession returns the session for GameID, creating it if needed.
type CreateSession struct {
	GameID string
	Reply  chan *session.Session
}

type GetSession struct {
	GameID string
	Reply  chan *session.Session // nil when not following the game
}

type ListSessions struct {
	Reply chan []string
}

type RemoveSession struct {
	GameID string
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (ListSessions) isHubMsg()  {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	factory  Factory
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		factory:  factory,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once every session has stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if s := h.sessions[msg.GameID]; s != nil {
					msg.Reply <- s
					break
				}
				s := h.factory(h.ctx, msg.GameID)
				h.sessions[msg.GameID] = s
				_ = s.Send(h.ctx, session.JoinGame{GameID: msg.GameID})
				_ = s.Send(h.ctx, session.Connect{})
				h.log.Info("following game", zap.String("game_id", msg.GameID))
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.GameID] // May be nil

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case RemoveSession:
				if s := h.sessions[msg.GameID]; s != nil {
					_ = s.Send(h.ctx, session.LeaveGame{})
					_ = s.Send(h.ctx, session.Shutdown{})
					delete(h.sessions, msg.GameID)
					h.log.Info("stopped following game", zap.String("game_id", msg.GameID))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, s := range h.sessions {
		_ = s.Send(context.Background(), session.Shutdown{})
		<-s.Done()
		delete(h.sessions, id)
	}
	h.cancel()
}
