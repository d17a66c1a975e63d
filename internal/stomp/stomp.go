// Package stomp is a conn.Transport speaking STOMP 1.2 over a WebSocket.
package stomp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	gostomp "github.com/go-stomp/stomp/v3"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/conn"
)

type Options struct {
	URL       string
	Host      string
	HeartBeat time.Duration
	ReadLimit int64
}

type Transport struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	sc     *gostomp.Conn
	cancel context.CancelFunc
}

func New(opts Options, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Transport{opts: opts, log: log}
}

func (t *Transport) Connect(ctx context.Context, token string, onClose func(error)) error {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)

	ws, _, err := websocket.Dial(ctx, t.opts.URL, &websocket.DialOptions{
		HTTPHeader:   hdr,
		Subprotocols: []string{"v12.stomp", "v11.stomp"},
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}
	ws.SetReadLimit(t.opts.ReadLimit)

	// The stream outlives ctx, which only bounds the handshake.
	streamCtx, cancel := context.WithCancel(context.Background())
	nc := &watchedConn{Conn: websocket.NetConn(streamCtx, ws, websocket.MessageText)}

	opts := []func(*gostomp.Conn) error{
		gostomp.ConnOpt.Header("Authorization", "Bearer "+token),
		gostomp.ConnOpt.HeartBeat(t.opts.HeartBeat, t.opts.HeartBeat),
	}
	if t.opts.Host != "" {
		opts = append(opts, gostomp.ConnOpt.Host(t.opts.Host))
	}

	type result struct {
		sc  *gostomp.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		sc, err := gostomp.Connect(nc, opts...)
		done <- result{sc, err}
	}()

	var sc *gostomp.Conn
	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			return fmt.Errorf("stomp handshake: %w", r.err)
		}
		sc = r.sc
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	t.mu.Lock()
	t.sc, t.cancel = sc, cancel
	t.mu.Unlock()

	nc.arm(func(err error) {
		t.mu.Lock()
		current := t.sc == sc
		t.mu.Unlock()
		if current {
			t.log.Info("stomp stream closed", zap.Error(err))
			onClose(err)
		}
	})
	t.log.Info("stomp connected", zap.String("url", t.opts.URL), zap.String("server", sc.Server()))
	return nil
}

func (t *Transport) conn() (*gostomp.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sc == nil {
		return nil, conn.ErrNotConnected
	}
	return t.sc, nil
}

func (t *Transport) Subscribe(dest string, handler func([]byte)) (conn.Subscription, error) {
	sc, err := t.conn()
	if err != nil {
		return nil, err
	}
	sub, err := sc.Subscribe(dest, gostomp.AckAuto)
	if err != nil {
		return nil, err
	}
	go func() {
		for msg := range sub.C {
			if msg.Err != nil {
				return
			}
			handler(msg.Body)
		}
	}()
	return subscription{sub}, nil
}

func (t *Transport) Send(ctx context.Context, dest string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc, err := t.conn()
	if err != nil {
		return err
	}
	return sc.Send(dest, "application/json", body)
}

// Close drops the connection without waiting for a DISCONNECT receipt. It
// does not report through onClose.
func (t *Transport) Close() error {
	t.mu.Lock()
	sc, cancel := t.sc, t.cancel
	t.sc, t.cancel = nil, nil
	t.mu.Unlock()

	if sc == nil {
		return nil
	}
	err := sc.MustDisconnect()
	cancel()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type subscription struct{ sub *gostomp.Subscription }

func (s subscription) Unsubscribe() error {
	if !s.sub.Active() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// watchedConn reports the first read or write failure once. A failure seen
// before arm is kept and handed to fn when arm runs.
type watchedConn struct {
	net.Conn
	mu      sync.Mutex
	onClose func(error)
	err     error
	fired   bool
}

func (w *watchedConn) arm(fn func(error)) {
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	if err := w.err; err != nil {
		w.fired = true
		w.mu.Unlock()
		fn(err)
		return
	}
	w.onClose = fn
	w.mu.Unlock()
}

func (w *watchedConn) report(err error) {
	w.mu.Lock()
	if w.fired || w.err != nil {
		w.mu.Unlock()
		return
	}
	w.err = err
	fn := w.onClose
	if fn == nil {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.mu.Unlock()
	fn(err)
}

func (w *watchedConn) Read(p []byte) (int, error) {
	n, err := w.Conn.Read(p)
	if err != nil {
		w.report(err)
	}
	return n, err
}

func (w *watchedConn) Write(p []byte) (int, error) {
	n, err := w.Conn.Write(p)
	if err != nil {
		w.report(err)
	}
	return n, err
}
