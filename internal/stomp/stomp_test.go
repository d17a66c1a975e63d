package stomp

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tablesync/internal/conn"
)

// wsListener hands accepted WebSocket streams to a STOMP server.
type wsListener struct {
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *wsListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

// serverConn unblocks the HTTP handler once the broker closes the stream.
type serverConn struct {
	net.Conn
	once   sync.Once
	closed chan struct{}
}

func (c *serverConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return c.Conn.Close()
}

func startBroker(t *testing.T) string {
	t.Helper()
	l := &wsListener{conns: make(chan net.Conn), done: make(chan struct{})}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"v12.stomp"}})
		if err != nil {
			return
		}
		sc := &serverConn{Conn: websocket.NetConn(context.Background(), c, websocket.MessageText), closed: make(chan struct{})}
		select {
		case l.conns <- sc:
		case <-l.done:
			return
		}
		select {
		case <-sc.closed:
		case <-l.done:
		}
	}))
	go func() { _ = (&server.Server{}).Serve(l) }()
	t.Cleanup(func() {
		_ = l.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTransport_NotConnected(t *testing.T) {
	tr := New(Options{URL: "ws://unused"}, nil)
	_, err := tr.Subscribe("/topic/game/G1", func([]byte) {})
	assert.ErrorIs(t, err, conn.ErrNotConnected)
	assert.ErrorIs(t, tr.Send(context.Background(), "/app/reconnect", nil), conn.ErrNotConnected)
	assert.NoError(t, tr.Close())
}

func TestTransport_SubscribeAndSend(t *testing.T) {
	url := startBroker(t)
	tr := New(Options{URL: url}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	closed := make(chan error, 1)
	require.NoError(t, tr.Connect(ctx, "tok", func(err error) { closed <- err }))

	got := make(chan string, 1)
	sub, err := tr.Subscribe("/topic/game/G1", func(b []byte) { got <- string(b) })
	require.NoError(t, err)

	require.NoError(t, tr.Send(ctx, "/topic/game/G1", []byte(`{"type":"GAME_UPDATE"}`)))
	select {
	case body := <-got:
		assert.JSONEq(t, `{"type":"GAME_UPDATE"}`, body)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, tr.Close())

	select {
	case err := <-closed:
		t.Fatalf("deliberate close reported as loss: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchedConn_FailureBeforeArmIsReplayed(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	w := &watchedConn{Conn: a}

	require.NoError(t, b.Close())
	_, err := w.Read(make([]byte, 1))
	require.Error(t, err)

	var got []error
	w.arm(func(err error) { got = append(got, err) })
	require.Len(t, got, 1)
	assert.Equal(t, err, got[0])

	_, _ = w.Read(make([]byte, 1))
	_, _ = w.Write([]byte("x"))
	assert.Len(t, got, 1, "reported once")
}

func TestWatchedConn_FailureAfterArm(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	w := &watchedConn{Conn: a}

	var got []error
	w.arm(func(err error) { got = append(got, err) })
	assert.Empty(t, got)

	require.NoError(t, b.Close())
	_, err := w.Read(make([]byte, 1))
	require.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, err, got[0])
}
