package types

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/DoyleJ11/tablesync/internal/engine"
)

var ErrMalformed = errors.New("malformed frame")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// DecodeEvent parses one game topic frame.
func DecodeEvent(data []byte) (engine.GameEvent, error) {
	var ev engine.GameEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return engine.GameEvent{}, fmt.Errorf("%w: game event: %v", ErrMalformed, err)
	}
	if ev.Type == "" {
		return engine.GameEvent{}, fmt.Errorf("%w: game event without type", ErrMalformed)
	}
	return ev, nil
}

// DecodeReply parses a recovery reply. The game id and snapshot are both
// optional; a reply without a game id answers the pending request.
func DecodeReply(data []byte) (RecoveryReply, error) {
	var r RecoveryReply
	if err := json.Unmarshal(data, &r); err != nil {
		return RecoveryReply{}, fmt.Errorf("%w: recovery reply: %v", ErrMalformed, err)
	}
	return r, nil
}
