package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tablesync/internal/engine"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{
		"type":"PLAYER_ACTION",
		"gameState":{"id":"G1","pot":60,"phase":"FLOP","currentPlayerIndex":1,
			"players":[{"id":"p1","name":"Ana","chips":900,"betAmount":20}]},
		"action":{"playerId":"p1","action":"CALL","amount":20},
		"sequenceNumber":42
	}`))
	require.NoError(t, err)

	assert.Equal(t, engine.EvtPlayerAction, ev.Type)
	require.NotNil(t, ev.Sequence)
	assert.Equal(t, int64(42), *ev.Sequence)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "G1", ev.Snapshot.GameID)
	require.NotNil(t, ev.Action)
	assert.Equal(t, engine.ActionCall, ev.Action.Type)
}

func TestDecodeEvent_WithoutSequence(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"GAME_STARTED","message":"shuffle up"}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Sequence)
	assert.Nil(t, ev.Snapshot)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, in := range []string{`{"type":`, `{"message":"no type"}`, `not json`} {
		_, err := DecodeEvent([]byte(in))
		assert.ErrorIs(t, err, ErrMalformed, in)
	}
}

func TestDecodeReply(t *testing.T) {
	r, err := DecodeReply([]byte(`{"success":true,"gameId":"G1","lastEventSequence":12,
		"missedEvents":[{"type":"GAME_UPDATE","sequenceNumber":11},{"type":"GAME_UPDATE","sequenceNumber":12}]}`))
	require.NoError(t, err)
	assert.Len(t, r.MissedEvents, 2)
	assert.Equal(t, int64(12), r.LastEventSequence)

	r, err = DecodeReply([]byte(`{"success":false,"error":"game not found"}`))
	require.NoError(t, err)
	assert.False(t, r.Success)

	// Neither gameId nor gameState: only the replay and the new baseline.
	r, err = DecodeReply([]byte(`{"success":true,"lastEventSequence":12,
		"missedEvents":[{"type":"PLAYER_ACTION","sequenceNumber":11},{"type":"GAME_UPDATE","sequenceNumber":12}]}`))
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Empty(t, r.GameID)
	assert.Nil(t, r.Snapshot)
	assert.Len(t, r.MissedEvents, 2)

	_, err = DecodeReply([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDestinations(t *testing.T) {
	assert.Equal(t, "/topic/game/G1", GameTopic("G1"))
	assert.Equal(t, "/app/game/G1/action", ActionDest("G1"))
	assert.Equal(t, "/app/game/G1/join", JoinDest("G1"))
	assert.Equal(t, "/app/game/G1/leave", LeaveDest("G1"))
}
