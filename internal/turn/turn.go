// Package turn decides when the local player may act and drives bot turns.
//
// Two paths share the orchestrator: the human action path, which allows one
// request in flight, and the bot path, which paces one bot action at a time.
// They exclude each other. All methods run on the session loop.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/eventloop"
)

var ErrActionInProgress = errors.New("an action is already in progress")
var ErrBotsProcessing = errors.New("bot turns are being processed")
var ErrNoGame = errors.New("no game joined")

// Actions is the game API. Each call returns the authoritative snapshot, or
// nil when the snapshot will arrive some other way.
type Actions interface {
	Act(ctx context.Context, gameID string, req engine.ActionRequest) (*engine.Snapshot, error)
	BotAction(ctx context.Context, gameID, botID string) (*engine.Snapshot, error)
	Status(ctx context.Context, gameID string) (*engine.Snapshot, error)
}

type Publisher interface {
	SetSnapshot(s engine.Snapshot)
	SetError(msg string)
}

type Recorder interface {
	Append(ctx context.Context, rec engine.ActionRecord) error
}

type Options struct {
	BotPacing      time.Duration
	RequestTimeout time.Duration

	// AwaitSnapshot is set when Act only hands the action off and the
	// result arrives later as a published snapshot. The human guard then
	// stays up until that snapshot, or until RequestTimeout.
	AwaitSnapshot bool
}

type Orchestrator struct {
	exec    eventloop.Executor
	actions Actions
	pub     Publisher
	rec     Recorder
	opts    Options
	log     *zap.Logger
	now     func() time.Time

	gameID string
	snap   engine.Snapshot
	has    bool

	actionInProgress bool
	processingBots   bool
	pacing           eventloop.Timer
	gen              int

	awaiting     bool
	awaitTimer   eventloop.Timer
	observedSent bool // a snapshot was observed since the last Submit
}

func New(exec eventloop.Executor, actions Actions, pub Publisher, rec Recorder, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BotPacing <= 0 {
		opts.BotPacing = 800 * time.Millisecond
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Orchestrator{
		exec:    exec,
		actions: actions,
		pub:     pub,
		rec:     rec,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

func (o *Orchestrator) ActionInProgress() bool { return o.actionInProgress }
func (o *Orchestrator) ProcessingBots() bool   { return o.processingBots }

// SetGame binds the orchestrator to gameID, dropping everything tied to the
// previous game.
func (o *Orchestrator) SetGame(gameID string) {
	o.Reset()
	o.gameID = gameID
}

// Reset clears both guards and cancels the pacing timer. Completions of
// requests already sent are ignored.
func (o *Orchestrator) Reset() {
	o.gen++
	if o.pacing != nil {
		o.pacing.Stop()
		o.pacing = nil
	}
	o.stopAwait()
	o.actionInProgress = false
	o.processingBots = false
	o.snap = engine.Snapshot{}
	o.has = false
	o.gameID = ""
}

// Observe is called with every published snapshot.
func (o *Orchestrator) Observe(s engine.Snapshot) {
	o.snap = s
	o.has = true
	if o.actionInProgress {
		o.observedSent = true
		if o.awaiting {
			o.stopAwait()
			o.actionInProgress = false
		}
	}
	o.processNextActor()
}

// Submit sends the human's action. It is rejected outright, not queued,
// while another action is in flight or bots are being processed.
func (o *Orchestrator) Submit(req engine.ActionRequest) error {
	if o.gameID == "" {
		return ErrNoGame
	}
	if o.actionInProgress {
		return ErrActionInProgress
	}
	if o.processingBots {
		return ErrBotsProcessing
	}
	if !o.has {
		return engine.ErrNoSnapshot
	}
	if err := engine.CheckAction(o.snap, req); err != nil {
		return err
	}

	o.actionInProgress = true
	o.observedSent = false
	gen, gameID := o.gen, o.gameID
	rec := o.record(req)

	o.log.Info("submitting action",
		zap.String("game_id", gameID),
		zap.String("player_id", req.PlayerID),
		zap.String("action", string(req.Type)),
		zap.Int64("amount", req.Amount),
	)
	timeout := o.opts.RequestTimeout
	o.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := o.actions.Act(ctx, gameID, req)
		o.exec.Post(func() { o.actionDone(gen, rec, snap, err) })
	})
	return nil
}

func (o *Orchestrator) actionDone(gen int, rec engine.ActionRecord, snap *engine.Snapshot, err error) {
	if gen != o.gen {
		return
	}
	if err == nil && snap == nil && o.opts.AwaitSnapshot && !o.observedSent {
		o.appendRecord(rec)
		o.await(gen, rec)
		return
	}
	// Clear before publishing so the next snapshot can start a turn.
	o.actionInProgress = false

	if err != nil {
		o.log.Warn("action failed", zap.String("game_id", rec.GameID), zap.String("action", string(rec.Type)), zap.Error(err))
		o.pub.SetError(fmt.Sprintf("%s failed: %v", rec.Type, err))
		o.processNextActor()
		return
	}

	o.appendRecord(rec)
	if snap != nil {
		o.pub.SetSnapshot(*snap)
	}
	o.processNextActor()
}

// await keeps the human guard up until the next observed snapshot.
func (o *Orchestrator) await(gen int, rec engine.ActionRecord) {
	o.awaiting = true
	o.awaitTimer = o.exec.AfterFunc(o.opts.RequestTimeout, func() {
		o.awaitTimer = nil
		if gen != o.gen || !o.awaiting {
			return
		}
		o.log.Warn("no snapshot after action",
			zap.String("game_id", rec.GameID),
			zap.String("action", string(rec.Type)),
			zap.Duration("timeout", o.opts.RequestTimeout),
		)
		o.awaiting = false
		o.actionInProgress = false
		o.processNextActor()
	})
}

func (o *Orchestrator) stopAwait() {
	o.awaiting = false
	if o.awaitTimer != nil {
		o.awaitTimer.Stop()
		o.awaitTimer = nil
	}
}

// processNextActor starts one paced bot turn when a bot is to act and
// nothing else is running. The loop continues through Observe.
func (o *Orchestrator) processNextActor() {
	if o.gameID == "" || !o.has || o.actionInProgress || o.processingBots {
		return
	}
	bot, ok := o.botToAct()
	if !ok {
		return
	}

	o.processingBots = true
	gen := o.gen
	o.log.Debug("bot turn scheduled", zap.String("bot_id", bot.ID), zap.Duration("pacing", o.opts.BotPacing))
	o.pacing = o.exec.AfterFunc(o.opts.BotPacing, func() {
		o.pacing = nil
		o.botTurn(gen, bot.ID)
	})
}

func (o *Orchestrator) botToAct() (engine.Player, bool) {
	if o.snap.IsFinished() {
		return engine.Player{}, false
	}
	actor, ok := o.snap.CurrentActor()
	if !ok || !actor.IsBot || actor.Folded {
		return engine.Player{}, false
	}
	return actor, true
}

func (o *Orchestrator) botTurn(gen int, botID string) {
	if gen != o.gen {
		return
	}
	// The table may have moved while we waited.
	if bot, ok := o.botToAct(); !ok || bot.ID != botID {
		o.processingBots = false
		o.processNextActor()
		return
	}

	gameID := o.gameID
	timeout := o.opts.RequestTimeout
	o.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := o.actions.BotAction(ctx, gameID, botID)
		o.exec.Post(func() { o.botDone(gen, botID, snap, err) })
	})
}

func (o *Orchestrator) botDone(gen int, botID string, snap *engine.Snapshot, err error) {
	if gen != o.gen {
		return
	}
	// Cleared before publishing: if the next actor is also a bot, Observe
	// must see the guard down or the loop stalls.
	o.processingBots = false

	if err != nil {
		// Not retried. The next snapshot restarts the loop.
		o.log.Warn("bot action failed", zap.String("game_id", o.gameID), zap.String("bot_id", botID), zap.Error(err))
		o.pub.SetError(fmt.Sprintf("bot %s: %v", botID, err))
		return
	}
	if snap != nil {
		o.pub.SetSnapshot(*snap)
	}
}

func (o *Orchestrator) record(req engine.ActionRequest) engine.ActionRecord {
	rec := engine.ActionRecord{
		ID:         uuid.NewString(),
		GameID:     o.gameID,
		Type:       req.Type,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		At:         o.now(),
	}
	switch req.Type {
	case engine.ActionBet, engine.ActionRaise:
		amount := req.Amount
		rec.Amount = &amount
	}
	return rec
}

func (o *Orchestrator) appendRecord(rec engine.ActionRecord) {
	if o.rec == nil {
		return
	}
	log := o.log
	r := o.rec
	o.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Append(ctx, rec); err != nil {
			log.Warn("action log append", zap.String("record_id", rec.ID), zap.Error(err))
		}
	})
}
