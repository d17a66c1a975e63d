package engine

import "strings"

// Derived views. All of these are pure functions of the snapshot.

func (s Snapshot) CurrentActor() (Player, bool) {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentPlayerIndex], true
}

func (s Snapshot) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Human returns the local player: the seat with localID when one is known,
// otherwise the first non-bot seat.
func (s Snapshot) Human(localID string) (Player, bool) {
	if localID != "" {
		return s.Player(localID)
	}
	for _, p := range s.Players {
		if !p.IsBot {
			return p, true
		}
	}
	return Player{}, false
}

func (s Snapshot) IsHumanTurn(localID string) bool {
	actor, ok := s.CurrentActor()
	if !ok {
		return false
	}
	human, ok := s.Human(localID)
	return ok && human.ID == actor.ID
}

func (s Snapshot) ActivePlayers() []Player {
	out := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		if !p.Folded {
			out = append(out, p)
		}
	}
	return out
}

func (s Snapshot) HighestBet() int64 {
	var hb int64
	for _, p := range s.Players {
		if p.BetAmount > hb {
			hb = p.BetAmount
		}
	}
	return hb
}

func (s Snapshot) CanCheck(p Player) bool {
	return p.BetAmount >= s.HighestBet()
}

func (s Snapshot) CanCall(p Player) bool {
	return s.HighestBet() > p.BetAmount && p.Chips > 0
}

// MinRaise is the smallest total bet a raise may reach.
func (s Snapshot) MinRaise() int64 {
	hb := s.HighestBet()
	step := s.BigBlind
	if hb > step {
		step = hb
	}
	if step == 0 {
		step = 1
	}
	return hb + step
}

func (s Snapshot) MaxRaise(p Player) int64 {
	return p.Chips + p.BetAmount
}

func (s Snapshot) IsFinished() bool {
	return s.Finished || s.Phase == PhaseShowdown
}

func (s Snapshot) PhaseName() string {
	switch s.Phase {
	case PhasePreFlop:
		return "Pre-Flop"
	case "":
		return "Waiting"
	}
	p := strings.ToLower(string(s.Phase))
	return strings.ToUpper(p[:1]) + p[1:]
}
