package session

import (
	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/store"
)

type Msg interface{ isSessionMsg() }

type Connect struct{}

func (Connect) isSessionMsg() {}

type Disconnect struct{}

func (Disconnect) isSessionMsg() {}

type ForceReconnect struct{}

func (ForceReconnect) isSessionMsg() {}

type JoinGame struct {
	GameID     string
	PlayerName string
}

func (JoinGame) isSessionMsg() {}

type LeaveGame struct{}

func (LeaveGame) isSessionMsg() {}

// SubmitAction hands the human's action to the orchestrator. Reply gets nil
// once the request is sent, or the reason it was refused.
type SubmitAction struct {
	Req   engine.ActionRequest
	Reply chan error
}

func (SubmitAction) isSessionMsg() {}

type Watch struct {
	ClientID string
	Outbox   chan store.View // where this client wants to receive views
}

func (Watch) isSessionMsg() {}

type Unwatch struct{ ClientID string }

func (Unwatch) isSessionMsg() {}

type GetView struct {
	Reply chan store.View
}

func (GetView) isSessionMsg() {}

// GetState reflects loop-owned state without data races.
type GetState struct {
	Reply chan State
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type invoke struct{ fn func() }

func (invoke) isSessionMsg() {}

type State struct {
	GameID           string
	View             store.View
	Connection       conn.State
	Attempts         int
	LastSequence     int64
	Recovering       bool
	Held             int
	ActionInProgress bool
	ProcessingBots   bool
}
