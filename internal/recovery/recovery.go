// Package recovery replays the events a client missed while its connection
// was down.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/eventloop"
	"github.com/DoyleJ11/tablesync/internal/sequencer"
	"github.com/DoyleJ11/tablesync/internal/types"
)

var ErrRecoveryFailed = errors.New("state recovery failed")
var ErrNotPending = errors.New("no recovery pending")

// Link is the slice of the connection manager recovery needs.
type Link interface {
	Send(dest string, body []byte, done func(error)) error
	ClearDisconnectedAt()
}

// Target receives recovered state. Merge must apply the same sequencing as
// live events do.
type Target interface {
	Merge(ev engine.GameEvent) bool
	SetSnapshot(s engine.Snapshot)
	SetError(msg string)
}

type Options struct {
	Timeout time.Duration

	// Refetch, when set, loads the full game state after a reply timeout.
	Refetch func(ctx context.Context, gameID string) (*engine.Snapshot, error)

	// OnSettled runs on the loop once a recovery has finished either way.
	OnSettled func()
}

type Coordinator struct {
	exec   eventloop.Executor
	link   Link
	seq    *sequencer.Sequencer
	target Target
	opts   Options
	log    *zap.Logger

	gen     int
	pending bool
	gameID  string
	timer   eventloop.Timer
}

func New(exec eventloop.Executor, link Link, seq *sequencer.Sequencer, target Target, opts Options, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Coordinator{exec: exec, link: link, seq: seq, target: target, opts: opts, log: log}
}

func (c *Coordinator) Pending() bool { return c.pending }

// Start sends req and waits for a reply on the reconnect queue. A recovery
// already in progress is abandoned.
func (c *Coordinator) Start(req types.ReconnectRequest) error {
	c.Cancel()

	body, err := types.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode reconnect request: %w", err)
	}

	c.gen++
	gen := c.gen
	c.pending = true
	c.gameID = req.GameID

	c.log.Info("recovery requested",
		zap.String("game_id", req.GameID),
		zap.Int64("last_seq", req.LastSequence),
		zap.Time("disconnected_at", req.DisconnectedAt),
	)

	err = c.link.Send(types.ReconnectDest, body, func(err error) {
		if err != nil && gen == c.gen && c.pending {
			c.log.Warn("reconnect request not delivered", zap.Error(err))
			c.giveUp(gen)
		}
	})
	if err != nil {
		c.pending = false
		return fmt.Errorf("send reconnect request: %w", err)
	}

	c.timer = c.exec.AfterFunc(c.opts.Timeout, func() {
		if gen != c.gen || !c.pending {
			return
		}
		c.log.Info("recovery reply timed out", zap.String("game_id", c.gameID), zap.Duration("timeout", c.opts.Timeout))
		c.giveUp(gen)
	})
	return nil
}

// HandleReply applies a reply. It runs to completion before any other loop
// work, so replayed events land before later live ones.
func (c *Coordinator) HandleReply(reply types.RecoveryReply) error {
	if !c.pending {
		c.log.Debug("unsolicited recovery reply", zap.String("game_id", reply.GameID))
		return ErrNotPending
	}
	if reply.GameID != "" && reply.GameID != c.gameID {
		c.log.Debug("recovery reply for another game", zap.String("game_id", reply.GameID))
		return ErrNotPending
	}
	c.finish()

	if !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "server reported failure"
		}
		c.log.Warn("recovery failed", zap.String("game_id", c.gameID), zap.String("error", msg))
		c.target.SetError("recovery failed: " + msg)
		c.settled()
		return fmt.Errorf("%w: %s", ErrRecoveryFailed, msg)
	}

	applied := 0
	for _, ev := range reply.MissedEvents {
		if c.target.Merge(ev) {
			applied++
		}
	}
	if reply.Snapshot != nil {
		c.target.SetSnapshot(*reply.Snapshot)
	}
	// After the replay: adopting the baseline first would drop every replayed event.
	c.seq.Advance(reply.LastEventSequence)
	c.link.ClearDisconnectedAt()

	c.log.Info("recovered",
		zap.String("game_id", c.gameID),
		zap.Int("missed", len(reply.MissedEvents)),
		zap.Int("applied", applied),
		zap.Int64("last_seq", c.seq.Last()),
	)
	c.settled()
	return nil
}

// Cancel abandons any pending recovery without settling it.
func (c *Coordinator) Cancel() {
	c.gen++
	c.finish()
}

func (c *Coordinator) finish() {
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) settled() {
	if c.opts.OnSettled != nil {
		c.opts.OnSettled()
	}
}

// giveUp treats a missing reply as a silent no-op, with an optional full
// status refetch.
func (c *Coordinator) giveUp(gen int) {
	c.finish()
	c.link.ClearDisconnectedAt()

	if c.opts.Refetch == nil {
		c.settled()
		return
	}

	gameID := c.gameID
	refetch := c.opts.Refetch
	timeout := c.opts.Timeout
	c.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := refetch(ctx, gameID)
		c.exec.Post(func() {
			if gen != c.gen {
				return
			}
			switch {
			case err != nil:
				c.log.Warn("status refetch after recovery timeout", zap.String("game_id", gameID), zap.Error(err))
			case snap != nil:
				c.target.SetSnapshot(*snap)
			}
			c.settled()
		})
	})
}
