package types

import (
	"time"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/store"
)

// Bus destinations. Game-scoped ones are built with the helpers below.
const (
	PersonalQueue  = "/user/queue/messages"
	ReconnectQueue = "/user/queue/reconnect"
	ReconnectDest  = "/app/reconnect"
)

func GameTopic(gameID string) string  { return "/topic/game/" + gameID }
func ActionDest(gameID string) string { return "/app/game/" + gameID + "/action" }
func JoinDest(gameID string) string   { return "/app/game/" + gameID + "/join" }
func LeaveDest(gameID string) string  { return "/app/game/" + gameID + "/leave" }

// ReconnectRequest is sent once per recovering connection.
type ReconnectRequest struct {
	GameID         string       `json:"gameId"`
	LastSequence   int64        `json:"lastSequenceNumber"`
	LastPhase      engine.Phase `json:"lastKnownPhase,omitempty"`
	DisconnectedAt time.Time    `json:"disconnectedAt"`
}

// RecoveryReply answers a ReconnectRequest on the reconnect queue.
type RecoveryReply struct {
	Success           bool               `json:"success"`
	Error             string             `json:"error,omitempty"`
	GameID            string             `json:"gameId,omitempty"`
	Snapshot          *engine.Snapshot   `json:"gameState,omitempty"`
	MissedEvents      []engine.GameEvent `json:"missedEvents,omitempty"`
	LastEventSequence int64              `json:"lastEventSequence"`
}

// ActionMessage is a player action published on the bus.
type ActionMessage struct {
	PlayerID   string            `json:"playerId"`
	PlayerName string            `json:"playerName,omitempty"`
	Action     engine.ActionType `json:"action"`
	Amount     int64             `json:"amount"`
	Timestamp  time.Time         `json:"timestamp"`
}

type PresenceMessage struct {
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName"`
}

// Local UI socket.

type ClientMessage struct {
	Type   string `json:"type"` // "Action" | "ForceReconnect"
	Action string `json:"action,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

type ServerMessage struct {
	Type  string      `json:"type"` // "View" | "Error"
	View  *store.View `json:"view,omitempty"`
	Error string      `json:"error,omitempty"`
}
