package store

import (
	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
)

// View is what presentation consumes. Every field except the envelope
// (GameID, Version, Connection, Error) is derived from the snapshot.
type View struct {
	GameID     string     `json:"gameId,omitempty"`
	Version    int        `json:"version"`
	Connection conn.State `json:"connection"`
	Error      string     `json:"error,omitempty"`

	HasSnapshot    bool            `json:"hasSnapshot"`
	Players        []engine.Player `json:"players"`
	CurrentActor   *engine.Player  `json:"currentActor,omitempty"`
	Human          *engine.Player  `json:"human,omitempty"`
	IsHumanTurn    bool            `json:"isHumanTurn"`
	Pot            int64           `json:"pot"`
	Phase          string          `json:"phase"`
	CommunityCards []engine.Card   `json:"communityCards,omitempty"`
	CanCheck       bool            `json:"canCheck"`
	CanCall        bool            `json:"canCall"`
	MinRaise       int64           `json:"minRaise"`
	MaxRaise       int64           `json:"maxRaise"`
	ActivePlayers  []engine.Player `json:"activePlayers"`
	Finished       bool            `json:"finished"`
	Winner         *engine.Winner  `json:"winner,omitempty"`
}

// Derive computes the snapshot-dependent part of a View. Legal-action flags
// and raise bounds are for the local human; they stay zero when there is none.
func Derive(s engine.Snapshot, localID string) View {
	s = s.Clone()
	v := View{
		HasSnapshot:    true,
		Players:        s.Players,
		IsHumanTurn:    s.IsHumanTurn(localID),
		Pot:            s.Pot,
		Phase:          s.PhaseName(),
		CommunityCards: s.CommunityCards,
		MinRaise:       s.MinRaise(),
		ActivePlayers:  s.ActivePlayers(),
		Finished:       s.IsFinished(),
		Winner:         s.Winner,
	}
	if actor, ok := s.CurrentActor(); ok {
		v.CurrentActor = &actor
	}
	if human, ok := s.Human(localID); ok {
		v.Human = &human
		v.CanCheck = s.CanCheck(human)
		v.CanCall = s.CanCall(human)
		v.MaxRaise = s.MaxRaise(human)
	}
	return v
}
