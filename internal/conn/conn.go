// Package conn owns the message-bus connection: its state machine, retry
// schedule, and the set of subscriptions that must exist while connected.
package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/backoff"
	"github.com/DoyleJ11/tablesync/internal/eventloop"
)

var ErrNoCredential = errors.New("no auth credential")
var ErrNotConnected = errors.New("not connected")
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

const (
	evDial        = "dial"
	evEstablished = "established"
	evRetry       = "retry"
	evLost        = "lost"
	evFail        = "fail"
	evReset       = "reset"
)

// Transport is the message bus underneath the manager. Handlers and onClose
// may be called from any goroutine.
type Transport interface {
	Connect(ctx context.Context, token string, onClose func(error)) error
	Subscribe(destination string, handler func([]byte)) (Subscription, error)
	Send(ctx context.Context, destination string, body []byte) error
	Close() error
}

type Subscription interface {
	Unsubscribe() error
}

type Credentials interface {
	Token() (string, bool)
}

type StaticToken string

func (t StaticToken) Token() (string, bool) { return string(t), t != "" }

type Options struct {
	Policy              backoff.Policy
	ForceReconnectDelay time.Duration
	DialTimeout         time.Duration
	SendTimeout         time.Duration

	// Delay overrides the jittered backoff, mostly for tests.
	Delay func(attempt int) time.Duration

	// Hooks run on the loop goroutine.
	OnState        func(s State, err error)
	OnConnected    func(recovering bool)
	OnDisconnected func()
}

type subscription struct {
	handler func([]byte)
	live    Subscription
}

type Manager struct {
	exec      eventloop.Executor
	transport Transport
	creds     Credentials
	opts      Options
	log       *zap.Logger
	now       func() time.Time

	sm         *fsm.FSM
	lastErr    error
	attempts   int
	retry      eventloop.Timer
	gen        int
	dialCancel context.CancelFunc

	disconnectedAt time.Time
	subs           map[string]*subscription
}

func NewManager(exec eventloop.Executor, t Transport, creds Credentials, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Policy == (backoff.Policy{}) {
		opts.Policy = backoff.DefaultPolicy()
	}
	if opts.ForceReconnectDelay <= 0 {
		opts.ForceReconnectDelay = 250 * time.Millisecond
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	if opts.Delay == nil {
		opts.Delay = opts.Policy.Next
	}

	m := &Manager{
		exec:      exec,
		transport: t,
		creds:     creds,
		opts:      opts,
		log:       log,
		now:       time.Now,
		subs:      make(map[string]*subscription),
	}

	all := []string{
		string(StateDisconnected), string(StateConnecting), string(StateConnected),
		string(StateReconnecting), string(StateError),
	}
	m.sm = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: evDial, Src: []string{string(StateDisconnected), string(StateError)}, Dst: string(StateConnecting)},
			{Name: evEstablished, Src: []string{string(StateConnecting), string(StateReconnecting)}, Dst: string(StateConnected)},
			{Name: evRetry, Src: []string{string(StateConnecting)}, Dst: string(StateReconnecting)},
			{Name: evLost, Src: []string{string(StateConnected)}, Dst: string(StateReconnecting)},
			{Name: evFail, Src: []string{string(StateDisconnected), string(StateConnecting), string(StateReconnecting), string(StateError)}, Dst: string(StateError)},
			{Name: evReset, Src: all, Dst: string(StateDisconnected)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) { m.enterState(e) },
		},
	)
	return m
}

func (m *Manager) enterState(e *fsm.Event) {
	fields := []zap.Field{zap.String("from", e.Src), zap.String("to", e.Dst)}
	if m.lastErr != nil {
		fields = append(fields, zap.Error(m.lastErr))
	}
	m.log.Info("connection state", fields...)
	if m.opts.OnState != nil {
		m.opts.OnState(State(e.Dst), m.lastErr)
	}
}

func (m *Manager) fire(event string) {
	err := m.sm.Event(context.Background(), event)
	var noop fsm.NoTransitionError
	if err != nil && !errors.As(err, &noop) {
		m.log.Warn("state machine rejected event",
			zap.String("event", event),
			zap.String("state", m.sm.Current()),
			zap.Error(err),
		)
	}
}

func (m *Manager) State() State { return State(m.sm.Current()) }

func (m *Manager) Attempts() int { return m.attempts }

func (m *Manager) DisconnectedAt() time.Time { return m.disconnectedAt }

func (m *Manager) ClearDisconnectedAt() { m.disconnectedAt = time.Time{} }

// Connect starts a connection attempt. It does nothing while an attempt is
// already running or the connection is up.
func (m *Manager) Connect() {
	switch m.State() {
	case StateConnecting, StateConnected, StateReconnecting:
		return
	}

	token, ok := m.creds.Token()
	if !ok {
		m.lastErr = ErrNoCredential
		m.fire(evFail)
		return
	}

	m.lastErr = nil
	m.fire(evDial)
	m.dial(token)
}

func (m *Manager) dial(token string) {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	m.dialCancel = cancel

	onClose := func(err error) {
		m.exec.Post(func() { m.handleClosed(gen, err) })
	}
	m.exec.Go(func() {
		err := m.transport.Connect(ctx, token, onClose)
		m.exec.Post(func() { m.handleDialed(gen, err) })
	})
}

func (m *Manager) handleDialed(gen int, err error) {
	if gen != m.gen {
		// Disconnect ran while this dial was in flight.
		if err == nil && m.State() == StateDisconnected {
			_ = m.transport.Close()
		}
		return
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if err != nil {
		m.handleFailure(err)
		return
	}

	recovering := !m.disconnectedAt.IsZero()
	m.attempts = 0
	m.lastErr = nil
	m.fire(evEstablished)
	m.activateAll()

	if m.opts.OnConnected != nil {
		m.opts.OnConnected(recovering)
	}
}

func (m *Manager) handleFailure(err error) {
	m.attempts++
	m.log.Warn("connect attempt failed", zap.Int("attempt", m.attempts), zap.Error(err))

	if m.opts.Policy.Exhausted(m.attempts) {
		m.lastErr = fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, m.attempts, err)
		m.fire(evFail)
		return
	}

	m.lastErr = err
	if m.State() == StateConnecting {
		m.fire(evRetry)
	}
	m.scheduleRetry()
}

func (m *Manager) handleClosed(gen int, err error) {
	if gen != m.gen || m.State() != StateConnected {
		return
	}
	m.dropLive()
	_ = m.transport.Close()

	if _, ok := m.creds.Token(); !ok {
		m.lastErr = ErrNoCredential
		m.fire(evReset)
		if m.opts.OnDisconnected != nil {
			m.opts.OnDisconnected()
		}
		return
	}

	m.disconnectedAt = m.now()
	m.lastErr = err
	m.fire(evLost)
	m.scheduleRetry()
}

func (m *Manager) scheduleRetry() {
	delay := m.opts.Delay(m.attempts + 1)
	m.log.Info("reconnect scheduled", zap.Int("attempt", m.attempts+1), zap.Duration("delay", delay))

	m.retry = m.exec.AfterFunc(delay, func() {
		m.retry = nil
		token, ok := m.creds.Token()
		if !ok {
			m.lastErr = ErrNoCredential
			m.fire(evFail)
			return
		}
		m.dial(token)
	})
}

// Disconnect tears the connection down from any state and resets backoff.
func (m *Manager) Disconnect() error {
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	err := m.dropLive()
	err = multierr.Append(err, m.transport.Close())

	m.attempts = 0
	m.lastErr = nil
	m.disconnectedAt = time.Time{}
	m.fire(evReset)
	if m.opts.OnDisconnected != nil {
		m.opts.OnDisconnected()
	}
	return err
}

// ForceReconnect recovers a wedged connection without waiting out the
// current backoff.
func (m *Manager) ForceReconnect() {
	m.log.Info("forced reconnect", zap.String("state", m.sm.Current()))
	if err := m.Disconnect(); err != nil {
		m.log.Debug("teardown before forced reconnect", zap.Error(err))
	}
	m.attempts = 0
	m.retry = m.exec.AfterFunc(m.opts.ForceReconnectDelay, func() {
		m.retry = nil
		m.Connect()
	})
}

// Subscribe declares a destination. It is live whenever the connection is
// up and survives reconnects until Unsubscribe. handler runs on the loop.
func (m *Manager) Subscribe(dest string, handler func([]byte)) error {
	if old, ok := m.subs[dest]; ok && old.live != nil {
		_ = old.live.Unsubscribe()
	}
	s := &subscription{handler: handler}
	m.subs[dest] = s
	if m.State() != StateConnected {
		return nil
	}
	return m.activate(dest, s)
}

func (m *Manager) Unsubscribe(dest string) error {
	s, ok := m.subs[dest]
	if !ok {
		return nil
	}
	delete(m.subs, dest)
	if s.live == nil {
		return nil
	}
	return s.live.Unsubscribe()
}

func (m *Manager) activate(dest string, s *subscription) error {
	live, err := m.transport.Subscribe(dest, func(body []byte) {
		m.exec.Post(func() {
			if m.subs[dest] == s {
				s.handler(body)
			}
		})
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", dest, err)
	}
	s.live = live
	return nil
}

func (m *Manager) activateAll() {
	for dest, s := range m.subs {
		if err := m.activate(dest, s); err != nil {
			m.log.Error("resubscribe failed", zap.String("destination", dest), zap.Error(err))
		}
	}
}

func (m *Manager) dropLive() error {
	var err error
	for _, s := range m.subs {
		if s.live != nil {
			err = multierr.Append(err, s.live.Unsubscribe())
			s.live = nil
		}
	}
	return err
}

// Send publishes body off the loop. done, if set, runs on the loop.
func (m *Manager) Send(dest string, body []byte, done func(error)) error {
	if m.State() != StateConnected {
		return ErrNotConnected
	}
	timeout := m.opts.SendTimeout
	m.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := m.transport.Send(ctx, dest, body)
		if done != nil {
			m.exec.Post(func() { done(err) })
		}
	})
	return nil
}
