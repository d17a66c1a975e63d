package engine

import (
	"errors"
	"time"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrIllegalAction = errors.New("illegal action")
var ErrInvalidAmount = errors.New("invalid amount")
var ErrUnknownAction = errors.New("unknown action")
var ErrGameFinished = errors.New("game already finished")
var ErrNoSnapshot = errors.New("no snapshot yet")

type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhasePreFlop  Phase = "PRE_FLOP"
	PhaseFlop     Phase = "FLOP"
	PhaseTurn     Phase = "TURN"
	PhaseRiver    Phase = "RIVER"
	PhaseShowdown Phase = "SHOWDOWN" // terminal for a hand
)

type ActionType string

const (
	ActionFold  ActionType = "FOLD"
	ActionCheck ActionType = "CHECK"
	ActionCall  ActionType = "CALL"
	ActionBet   ActionType = "BET"
	ActionRaise ActionType = "RAISE"
	ActionAllIn ActionType = "ALL_IN"
)

type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Chips        int64  `json:"chips"`
	BetAmount    int64  `json:"betAmount"`
	Folded       bool   `json:"folded"`
	AllIn        bool   `json:"allIn"`
	IsBot        bool   `json:"isBot"`
	SeatPosition int    `json:"seatPosition"`
}

type Winner struct {
	PlayerID        string `json:"playerId"`
	PlayerName      string `json:"playerName"`
	Amount          int64  `json:"amount"`
	HandDescription string `json:"handDescription,omitempty"`
}

// Snapshot is the authoritative game state as last reported by the server.
// It is replaced wholesale on every update; callers get copies.
type Snapshot struct {
	GameID             string   `json:"id"`
	Pot                int64    `json:"pot"`
	Phase              Phase    `json:"phase"`
	CurrentPlayerIndex int      `json:"currentPlayerIndex"`
	Players            []Player `json:"players"`
	CommunityCards     []Card   `json:"communityCards"`
	DealerPosition     int      `json:"dealerPosition"`
	Finished           bool     `json:"finished"`
	Winner             *Winner  `json:"winner,omitempty"`
	BigBlind           int64    `json:"bigBlind,omitempty"`
}

func (s Snapshot) Clone() Snapshot {
	c := s
	c.Players = append([]Player(nil), s.Players...)
	c.CommunityCards = append([]Card(nil), s.CommunityCards...)
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	return c
}

type EventType string

const (
	EvtGameUpdate   EventType = "GAME_UPDATE"
	EvtPlayerAction EventType = "PLAYER_ACTION"
	EvtPlayerJoined EventType = "PLAYER_JOINED"
	EvtPlayerLeft   EventType = "PLAYER_LEFT"
	EvtGameStarted  EventType = "GAME_STARTED"
	EvtGameEnded    EventType = "GAME_ENDED"
)

type ActionPayload struct {
	PlayerID   string     `json:"playerId"`
	PlayerName string     `json:"playerName,omitempty"`
	Type       ActionType `json:"action"`
	Amount     *int64     `json:"amount,omitempty"`
}

// GameEvent is one push on the game topic. Sequence is optional; events
// without one bypass ordering checks.
type GameEvent struct {
	Type      EventType      `json:"type"`
	Snapshot  *Snapshot      `json:"gameState,omitempty"`
	Action    *ActionPayload `json:"action,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  *int64         `json:"sequenceNumber,omitempty"`
}

type ActionRequest struct {
	PlayerID   string     `json:"playerId"`
	PlayerName string     `json:"playerName,omitempty"`
	Type       ActionType `json:"action"`
	Amount     int64      `json:"amount"`
}

// ActionRecord is an audit entry. It is never replayed.
type ActionRecord struct {
	ID         string     `json:"id"`
	GameID     string     `json:"gameId"`
	Type       ActionType `json:"type"`
	PlayerID   string     `json:"playerId"`
	PlayerName string     `json:"playerName"`
	Amount     *int64     `json:"amount,omitempty"`
	At         time.Time  `json:"at"`
}

/*
	GAME_UPDATE    -> carries gameState, replaces the snapshot
	PLAYER_ACTION  -> carries action (+ usually gameState), action goes to the audit log
	PLAYER_JOINED  -> gameState with the new seat
	PLAYER_LEFT    -> gameState without the seat
	GAME_STARTED / GAME_ENDED -> gameState, message for the UI
*/

// Apply merges ev into s. Events that carry no snapshot leave s unchanged.
func Apply(s Snapshot, ev GameEvent) (Snapshot, bool) {
	if ev.Snapshot == nil {
		return s, false
	}
	return ev.Snapshot.Clone(), true
}

func ParseAction(v string) (ActionType, bool) {
	switch ActionType(v) {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn:
		return ActionType(v), true
	case "ALLIN":
		return ActionAllIn, true
	default:
		return "", false
	}
}

func Seq(n int64) *int64 { return &n }
