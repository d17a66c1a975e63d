// Package natsbus is a conn.Transport over NATS. Bus destinations map onto
// subjects, with personal queues scoped to the local player.
package natsbus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/conn"
)

type Transport struct {
	url      string
	playerID string
	log      *zap.Logger

	mu sync.Mutex
	nc *nats.Conn
}

func New(url, playerID string, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{url: url, playerID: playerID, log: log}
}

// Subject maps a destination to a subject:
//
//	/topic/game/G1        -> topic.game.G1
//	/app/game/G1/action   -> app.game.G1.action
//	/user/queue/reconnect -> user.<player>.queue.reconnect
func Subject(dest, playerID string) string {
	parts := strings.Split(strings.Trim(dest, "/"), "/")
	if len(parts) > 1 && parts[0] == "user" && playerID != "" {
		parts = append([]string{"user", playerID}, parts[1:]...)
	}
	return strings.Join(parts, ".")
}

func (t *Transport) Connect(ctx context.Context, token string, onClose func(error)) error {
	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	opts := []nats.Option{
		nats.Name("tablesync"),
		nats.Token(token),
		nats.Timeout(timeout),
		// Reconnects are owned by conn.Manager.
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.log.Info("nats disconnected", zap.Error(err))
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			t.mu.Lock()
			current := t.nc != nil && t.nc == c
			t.mu.Unlock()
			if current {
				onClose(c.LastError())
			}
		}),
	}

	nc, err := nats.Connect(t.url, opts...)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", t.url, err)
	}
	if err := ctx.Err(); err != nil {
		nc.Close()
		return err
	}

	t.mu.Lock()
	t.nc = nc
	t.mu.Unlock()
	t.log.Info("nats connected", zap.String("url", nc.ConnectedUrl()))
	return nil
}

func (t *Transport) conn() (*nats.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nc == nil || !t.nc.IsConnected() {
		return nil, conn.ErrNotConnected
	}
	return t.nc, nil
}

func (t *Transport) Subscribe(dest string, handler func([]byte)) (conn.Subscription, error) {
	nc, err := t.conn()
	if err != nil {
		return nil, err
	}
	sub, err := nc.Subscribe(Subject(dest, t.playerID), func(m *nats.Msg) { handler(m.Data) })
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (t *Transport) Send(ctx context.Context, dest string, body []byte) error {
	nc, err := t.conn()
	if err != nil {
		return err
	}
	if err := nc.Publish(Subject(dest, t.playerID), body); err != nil {
		return err
	}
	return nc.FlushWithContext(ctx)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	nc := t.nc
	t.nc = nil
	t.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
	return nil
}
