package session

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/recovery"
	"github.com/DoyleJ11/tablesync/internal/types"
)

// onGameFrame handles the game topic for gameID. Frames that arrive while
// a recovery is pending are held until the replay has run.
func (s *Session) onGameFrame(gameID string) func([]byte) {
	return func(body []byte) {
		if gameID != s.gameID {
			return
		}
		ev, err := types.DecodeEvent(body)
		if err != nil {
			s.log.Warn("bad game frame", zap.String("game_id", gameID), zap.Error(err))
			s.store.SetError("received a malformed game update")
			return
		}
		if s.recovery.Pending() {
			if len(s.held) >= maxHeld {
				s.log.Warn("hold buffer full, dropping live event", zap.String("game_id", gameID))
				return
			}
			s.held = append(s.held, ev)
			return
		}
		s.merge(ev)
	}
}

// merge runs one event through the sequencer into the store.
func (s *Session) merge(ev engine.GameEvent) bool {
	if !s.seq.Accept(ev.Sequence) {
		s.log.Debug("stale event dropped",
			zap.Int64("seq", *ev.Sequence),
			zap.Int64("last", s.seq.Last()),
		)
		return false
	}
	// The local player's actions are recorded by the orchestrator.
	if ev.Action != nil && ev.Action.PlayerID != s.localPlayerID() {
		s.recordRemote(ev)
	}
	if ev.Message != "" {
		s.log.Info("game message", zap.String("game_id", s.gameID), zap.String("type", string(ev.Type)), zap.String("message", ev.Message))
	}

	cur, _ := s.store.Snapshot()
	if next, ok := engine.Apply(cur, ev); ok {
		s.store.SetSnapshot(next)
	}
	return true
}

func (s *Session) flushHeld() {
	held := s.held
	s.held = nil
	for _, ev := range held {
		s.merge(ev)
	}
}

func (s *Session) onRecoveryReply(body []byte) {
	reply, err := types.DecodeReply(body)
	if err != nil {
		s.log.Warn("bad recovery reply", zap.Error(err))
		s.store.SetError("received a malformed recovery reply")
		return
	}
	if err := s.recovery.HandleReply(reply); err != nil && !errors.Is(err, recovery.ErrNotPending) {
		s.log.Warn("recovery", zap.String("game_id", s.gameID), zap.Error(err))
	}
}

// Personal messages are informational only.
func (s *Session) onPersonal(body []byte) {
	s.log.Info("personal message", zap.ByteString("body", body))
}

func (s *Session) recordRemote(ev engine.GameEvent) {
	if s.alog == nil {
		return
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	rec := engine.ActionRecord{
		ID:         newRecordID(),
		GameID:     s.gameID,
		Type:       ev.Action.Type,
		PlayerID:   ev.Action.PlayerID,
		PlayerName: ev.Action.PlayerName,
		Amount:     ev.Action.Amount,
		At:         at,
	}
	alog, log := s.alog, s.log
	s.Go(func() {
		if err := alog.Append(s.ctx, rec); err != nil {
			log.Warn("action log append", zap.String("record_id", rec.ID), zap.Error(err))
		}
	})
}

type recoveryTarget struct{ s *Session }

func (t recoveryTarget) Merge(ev engine.GameEvent) bool   { return t.s.merge(ev) }
func (t recoveryTarget) SetSnapshot(snap engine.Snapshot) { t.s.store.SetSnapshot(snap) }
func (t recoveryTarget) SetError(msg string)             { t.s.store.SetError(msg) }
