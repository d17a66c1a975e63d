// Package store holds the canonical game snapshot for one session and fans
// derived views out to watchers.
//
// A Store is owned by the session loop. It is not safe for concurrent use.
package store

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
)

type Store struct {
	localID string
	log     *zap.Logger

	gameID     string
	snap       engine.Snapshot
	has        bool
	version    int
	err        string
	connection conn.State

	watchers  map[string]chan View
	observers []func(engine.Snapshot)
}

func New(localID string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		localID:    localID,
		log:        log,
		connection: conn.StateDisconnected,
		watchers:   make(map[string]chan View),
	}
}

// SetSnapshot replaces the snapshot wholesale and clears any stored error.
// Watchers see the update before observers run.
func (s *Store) SetSnapshot(snap engine.Snapshot) {
	s.snap = snap.Clone()
	s.has = true
	if s.gameID == "" {
		s.gameID = snap.GameID
	}
	s.err = ""
	s.version++
	s.broadcast()

	for _, fn := range s.observers {
		fn(s.snap.Clone())
	}
}

// SetError records a human-readable error. The snapshot is left as is.
func (s *Store) SetError(msg string) {
	s.err = msg
	s.broadcast()
}

func (s *Store) SetConnection(st conn.State) {
	if s.connection == st {
		return
	}
	s.connection = st
	s.broadcast()
}

// Reset drops the snapshot and binds the store to gameID.
func (s *Store) Reset(gameID string) {
	s.gameID = gameID
	s.snap = engine.Snapshot{}
	s.has = false
	s.err = ""
	s.version++
	s.broadcast()
}

func (s *Store) Snapshot() (engine.Snapshot, bool) {
	if !s.has {
		return engine.Snapshot{}, false
	}
	return s.snap.Clone(), true
}

func (s *Store) Version() int { return s.version }

func (s *Store) View() View {
	var v View
	if s.has {
		v = Derive(s.snap, s.localID)
	} else {
		v.Phase = (engine.Snapshot{}).PhaseName()
	}
	v.GameID = s.gameID
	v.Version = s.version
	v.Connection = s.connection
	v.Error = s.err
	return v
}

// OnSnapshot registers fn to run after every SetSnapshot.
func (s *Store) OnSnapshot(fn func(engine.Snapshot)) {
	s.observers = append(s.observers, fn)
}

// Watch registers outbox and sends it the current view right away.
func (s *Store) Watch(id string, outbox chan View) {
	if old, ok := s.watchers[id]; ok && old != outbox {
		close(old)
	}
	s.watchers[id] = outbox
	s.send(id, outbox, s.View())
}

func (s *Store) Unwatch(id string) {
	if ch, ok := s.watchers[id]; ok {
		close(ch)
		delete(s.watchers, id)
	}
}

func (s *Store) Watchers() int { return len(s.watchers) }

// Close closes every watcher outbox.
func (s *Store) Close() {
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
}

func (s *Store) broadcast() {
	if len(s.watchers) == 0 {
		return
	}
	v := s.View()
	for id, ch := range s.watchers {
		s.send(id, ch, v)
	}
}

func (s *Store) send(id string, ch chan View, v View) {
	select {
	case ch <- v:
	default:
		// Slow watcher: drop it rather than stall the loop.
		s.log.Warn("dropping slow watcher", zap.String("watcher", id), zap.String("game_id", s.gameID))
		close(ch)
		delete(s.watchers, id)
	}
}
