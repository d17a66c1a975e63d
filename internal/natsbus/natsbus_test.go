package natsbus

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tablesync/internal/conn"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		dest, player, want string
	}{
		{"/topic/game/G1", "p1", "topic.game.G1"},
		{"/app/game/G1/action", "p1", "app.game.G1.action"},
		{"/app/reconnect", "p1", "app.reconnect"},
		{"/user/queue/reconnect", "p1", "user.p1.queue.reconnect"},
		{"/user/queue/messages", "", "user.queue.messages"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Subject(tc.dest, tc.player), tc.dest)
	}
}

func TestTransport_NotConnected(t *testing.T) {
	tr := New("nats://127.0.0.1:4222", "p1", nil)
	_, err := tr.Subscribe("/topic/game/G1", func([]byte) {})
	assert.ErrorIs(t, err, conn.ErrNotConnected)
	assert.ErrorIs(t, tr.Send(context.Background(), "/app/reconnect", nil), conn.ErrNotConnected)
	assert.NoError(t, tr.Close())
}

func startServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.Authorization = "tok"
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func connect(t *testing.T, url string, onClose func(error)) *Transport {
	t.Helper()
	tr := New(url, "p1", zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx, "tok", onClose))
	return tr
}

func TestTransport_SubscribeAndSend(t *testing.T) {
	url := startServer(t)
	tr := connect(t, url, func(error) { t.Error("onClose after a deliberate close") })

	got := make(chan []byte, 1)
	sub, err := tr.Subscribe("/user/queue/reconnect", func(b []byte) { got <- b })
	require.NoError(t, err)

	require.NoError(t, tr.Send(context.Background(), "/user/queue/reconnect", []byte(`{"success":true}`)))
	select {
	case b := <-got:
		assert.JSONEq(t, `{"success":true}`, string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("no message on user.p1.queue.reconnect")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, tr.Close())
}

func TestTransport_BadToken(t *testing.T) {
	url := startServer(t)
	tr := New(url, "p1", zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, tr.Connect(ctx, "wrong", func(error) {}))
}

func TestTransport_ServerLossReportsClose(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.Authorization = "tok"
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	closed := make(chan error, 1)
	tr := connect(t, srv.ClientURL(), func(err error) { closed <- err })
	defer tr.Close()

	srv.Shutdown()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("onClose never ran after the server went away")
	}
	_, err := tr.Subscribe("/topic/game/G1", func([]byte) {})
	assert.ErrorIs(t, err, conn.ErrNotConnected)
}
