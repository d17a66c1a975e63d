// Package session runs one game subscription as an actor. Everything the
// core components own is touched only on the session's loop goroutine;
// network work and timers report back through the inbox.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/actionlog"
	"github.com/DoyleJ11/tablesync/internal/backoff"
	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/eventloop"
	"github.com/DoyleJ11/tablesync/internal/recovery"
	"github.com/DoyleJ11/tablesync/internal/sequencer"
	"github.com/DoyleJ11/tablesync/internal/store"
	"github.com/DoyleJ11/tablesync/internal/turn"
	"github.com/DoyleJ11/tablesync/internal/types"
)

const maxHeld = 512

const (
	ChannelREST = "rest"
	ChannelBus  = "bus"
)

type Config struct {
	PlayerID   string
	PlayerName string

	Policy              backoff.Policy
	ForceReconnectDelay time.Duration
	BotPacing           time.Duration
	RecoveryTimeout     time.Duration
	RequestTimeout      time.Duration

	// ActionChannel is ChannelREST (default) or ChannelBus.
	ActionChannel string
}

type Deps struct {
	Transport conn.Transport
	Creds     conn.Credentials
	API       turn.Actions
	Log       actionlog.Log // optional
}

type Session struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	cfg  Config
	api  turn.Actions
	alog actionlog.Log
	log  *zap.Logger
	now  func() time.Time

	conn     *conn.Manager
	seq      sequencer.Sequencer
	store    *store.Store
	recovery *recovery.Coordinator
	orch     *turn.Orchestrator

	gameID      string
	playerName  string
	joinPending bool
	held        []engine.GameEvent
}

var _ eventloop.Executor = (*Session)(nil)

func New(parent context.Context, cfg Config, deps Deps, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:      make(chan Msg, 64),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cfg:        cfg,
		api:        deps.API,
		alog:       deps.Log,
		log:        log,
		now:        time.Now,
		playerName: cfg.PlayerName,
	}

	s.store = store.New(cfg.PlayerID, log.Named("store"))
	s.conn = conn.NewManager(s, deps.Transport, deps.Creds, conn.Options{
		Policy:              cfg.Policy,
		ForceReconnectDelay: cfg.ForceReconnectDelay,
		OnState:             s.onState,
		OnConnected:         s.onConnected,
		OnDisconnected:      s.onDisconnected,
	}, log.Named("conn"))
	s.recovery = recovery.New(s, s.conn, &s.seq, recoveryTarget{s}, recovery.Options{
		Timeout:   cfg.RecoveryTimeout,
		Refetch:   deps.API.Status,
		OnSettled: s.flushHeld,
	}, log.Named("recovery"))

	actions := deps.API
	if cfg.ActionChannel == ChannelBus {
		actions = busActions{Actions: deps.API, transport: deps.Transport, now: s.now}
	}
	var rec turn.Recorder
	if deps.Log != nil {
		rec = deps.Log
	}
	s.orch = turn.New(s, actions, s.store, rec, turn.Options{
		BotPacing:      cfg.BotPacing,
		RequestTimeout: cfg.RequestTimeout,
		AwaitSnapshot:  cfg.ActionChannel == ChannelBus,
	}, log.Named("turn"))
	s.store.OnSnapshot(s.orch.Observe)

	// Personal queues are declared once and follow every reconnect.
	_ = s.conn.Subscribe(types.PersonalQueue, s.onPersonal)
	_ = s.conn.Subscribe(types.ReconnectQueue, s.onRecoveryReply)

	go s.loop()
	return s
}

// Expose the inbox so the hub and the HTTP layer can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Post implements eventloop.Executor. Work posted after shutdown is dropped.
func (s *Session) Post(fn func()) {
	select {
	case s.inbox <- invoke{fn}:
	case <-s.ctx.Done():
	}
}

func (s *Session) Go(work func()) { go work() }

func (s *Session) AfterFunc(d time.Duration, fn func()) eventloop.Timer {
	return eventloop.NewTimer(s.Post, d, fn)
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case invoke:
				msg.fn()

			case Connect:
				s.conn.Connect()

			case Disconnect:
				if err := s.conn.Disconnect(); err != nil {
					s.log.Warn("disconnect", zap.Error(err))
				}

			case ForceReconnect:
				s.conn.ForceReconnect()

			case JoinGame:
				s.join(msg.GameID, msg.PlayerName)

			case LeaveGame:
				s.leave()

			case SubmitAction:
				msg.Reply <- s.submit(msg.Req)

			case Watch:
				s.store.Watch(msg.ClientID, msg.Outbox)

			case Unwatch:
				s.store.Unwatch(msg.ClientID)

			case GetView:
				msg.Reply <- s.store.View()

			case GetState:
				msg.Reply <- State{
					GameID:           s.gameID,
					View:             s.store.View(),
					Connection:       s.conn.State(),
					Attempts:         s.conn.Attempts(),
					LastSequence:     s.seq.Last(),
					Recovering:       s.recovery.Pending(),
					Held:             len(s.held),
					ActionInProgress: s.orch.ActionInProgress(),
					ProcessingBots:   s.orch.ProcessingBots(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) shutdown() {
	s.recovery.Cancel()
	s.orch.Reset()
	if err := s.conn.Disconnect(); err != nil {
		s.log.Debug("disconnect on shutdown", zap.Error(err))
	}
	s.store.Close() // Tell watchers no more views
	s.cancel()
}

func (s *Session) onState(st conn.State, err error) {
	s.store.SetConnection(st)
	if st == conn.StateError && err != nil {
		s.store.SetError(err.Error())
	}
}

func (s *Session) onConnected(recovering bool) {
	if s.gameID == "" {
		return
	}
	if recovering {
		s.startRecovery()
	} else {
		s.refresh()
	}
	if s.joinPending {
		s.joinPending = false
		s.announce(types.JoinDest(s.gameID))
	}
}

func (s *Session) onDisconnected() {
	s.recovery.Cancel()
	s.held = nil
	s.seq.Reset()
}

func (s *Session) startRecovery() {
	snap, _ := s.store.Snapshot()
	req := types.ReconnectRequest{
		GameID:         s.gameID,
		LastSequence:   s.seq.Last(),
		LastPhase:      snap.Phase,
		DisconnectedAt: s.conn.DisconnectedAt(),
	}
	if err := s.recovery.Start(req); err != nil {
		s.log.Warn("recovery not started", zap.String("game_id", s.gameID), zap.Error(err))
	}
}

func (s *Session) join(gameID, name string) {
	if gameID == "" || gameID == s.gameID {
		return
	}
	if s.gameID != "" {
		s.leave()
	}
	if name != "" {
		s.playerName = name
	}

	s.gameID = gameID
	s.seq.Reset()
	s.held = nil
	s.store.Reset(gameID)
	s.orch.SetGame(gameID)

	if err := s.conn.Subscribe(types.GameTopic(gameID), s.onGameFrame(gameID)); err != nil {
		s.log.Warn("subscribe game topic", zap.String("game_id", gameID), zap.Error(err))
	}
	if s.conn.State() == conn.StateConnected {
		s.announce(types.JoinDest(gameID))
		s.refresh()
	} else {
		s.joinPending = true
	}
	s.log.Info("joined game", zap.String("game_id", gameID), zap.String("player", s.playerName))
}

func (s *Session) leave() {
	if s.gameID == "" {
		return
	}
	gameID := s.gameID
	if !s.joinPending {
		s.announce(types.LeaveDest(gameID))
	}
	s.joinPending = false

	if err := s.conn.Unsubscribe(types.GameTopic(gameID)); err != nil {
		s.log.Debug("unsubscribe game topic", zap.String("game_id", gameID), zap.Error(err))
	}
	s.recovery.Cancel()
	s.held = nil
	s.orch.Reset()
	s.seq.Reset()
	s.gameID = ""
	s.store.Reset("")
	s.log.Info("left game", zap.String("game_id", gameID))
}

func (s *Session) announce(dest string) {
	body, err := types.Marshal(types.PresenceMessage{PlayerID: s.cfg.PlayerID, PlayerName: s.playerName})
	if err != nil {
		s.log.Error("encode presence", zap.Error(err))
		return
	}
	err = s.conn.Send(dest, body, func(err error) {
		if err != nil {
			s.log.Warn("presence not delivered", zap.String("destination", dest), zap.Error(err))
		}
	})
	if err != nil {
		s.log.Debug("presence skipped", zap.String("destination", dest), zap.Error(err))
	}
}

// refresh loads the full game state over REST. The result is dropped if a
// newer snapshot arrived while the request was out.
func (s *Session) refresh() {
	gameID, version := s.gameID, s.store.Version()
	timeout := s.cfg.RequestTimeout
	s.Go(func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		snap, err := s.api.Status(ctx, gameID)
		s.Post(func() {
			if s.gameID != gameID {
				return
			}
			if err != nil {
				s.log.Warn("load game", zap.String("game_id", gameID), zap.Error(err))
				s.store.SetError("load game: " + err.Error())
				return
			}
			if snap != nil && s.store.Version() == version {
				s.store.SetSnapshot(*snap)
			}
		})
	})
}

func (s *Session) submit(req engine.ActionRequest) error {
	if req.PlayerID == "" {
		req.PlayerID = s.localPlayerID()
	}
	if req.PlayerName == "" {
		req.PlayerName = s.playerName
	}
	err := s.orch.Submit(req)
	if err != nil && !errors.Is(err, turn.ErrActionInProgress) {
		s.log.Info("action refused", zap.String("action", string(req.Type)), zap.Error(err))
	}
	return err
}

// localPlayerID is the configured player, or the first human seat of the
// current snapshot when none is configured.
func (s *Session) localPlayerID() string {
	if s.cfg.PlayerID != "" {
		return s.cfg.PlayerID
	}
	snap, _ := s.store.Snapshot()
	if human, ok := snap.Human(""); ok {
		return human.ID
	}
	return ""
}
