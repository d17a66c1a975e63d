package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/turn"
	"github.com/DoyleJ11/tablesync/internal/types"
)

// busActions publishes human actions on the game's action destination and
// lets the resulting snapshot arrive on the topic. Bot actions and status
// still go through the REST API.
type busActions struct {
	turn.Actions
	transport conn.Transport
	now       func() time.Time
}

func (b busActions) Act(ctx context.Context, gameID string, req engine.ActionRequest) (*engine.Snapshot, error) {
	body, err := types.Marshal(types.ActionMessage{
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		Action:     req.Type,
		Amount:     req.Amount,
		Timestamp:  b.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := b.transport.Send(ctx, types.ActionDest(gameID), body); err != nil {
		return nil, err
	}
	return nil, nil
}

func newRecordID() string { return uuid.NewString() }
