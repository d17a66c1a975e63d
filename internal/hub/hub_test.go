package hub

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tablesync/internal/conn"
	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/session"
)

type nopTransport struct{}

func (nopTransport) Connect(context.Context, string, func(error)) error { return nil }
func (nopTransport) Subscribe(string, func([]byte)) (conn.Subscription, error) {
	return nopSub{}, nil
}
func (nopTransport) Send(context.Context, string, []byte) error { return nil }
func (nopTransport) Close() error                                { return nil }

type nopSub struct{}

func (nopSub) Unsubscribe() error { return nil }

type staticAPI struct{}

func (staticAPI) Act(context.Context, string, engine.ActionRequest) (*engine.Snapshot, error) {
	return nil, nil
}
func (staticAPI) BotAction(context.Context, string, string) (*engine.Snapshot, error) {
	return nil, nil
}
func (staticAPI) Status(_ context.Context, gameID string) (*engine.Snapshot, error) {
	return &engine.Snapshot{GameID: gameID, Players: []engine.Player{{ID: "p1"}}}, nil
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := zaptest.NewLogger(t)
	factory := func(ctx context.Context, gameID string) *session.Session {
		return session.New(ctx, session.Config{PlayerID: "p1"}, session.Deps{
			Transport: nopTransport{},
			Creds:     conn.StaticToken("tok"),
			API:       staticAPI{},
		}, log.Named(gameID))
	}
	h := NewHub(context.Background(), factory, log)
	t.Cleanup(func() {
		h.Inbox() <- ShutdownHub{}
		<-h.Done()
	})
	return h
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *session.Session, 1)

	h.Inbox() <- CreateSession{GameID: "G1", Reply: reply}
	s1 := <-reply

	h.Inbox() <- CreateSession{GameID: "G1", Reply: reply}
	s2 := <-reply

	h.Inbox() <- GetSession{GameID: "G1", Reply: reply}
	s3 := <-reply

	if s1 == nil || s1 != s2 || s2 != s3 {
		t.Fatalf("expected same session pointer")
	}
}

func TestHub_CreatedSessionJoinsAndConnects(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *session.Session, 1)
	h.Inbox() <- CreateSession{GameID: "G7", Reply: reply}
	s := <-reply

	require.Eventually(t, func() bool {
		st, err := s.State(context.Background())
		return err == nil && st.Connection == conn.StateConnected && st.View.HasSnapshot && st.GameID == "G7"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_RemoveStopsSession(t *testing.T) {
	h := newTestHub(t)
	reply := make(chan *session.Session, 1)
	h.Inbox() <- CreateSession{GameID: "G1", Reply: reply}
	s := <-reply
	h.Inbox() <- CreateSession{GameID: "G2", Reply: reply}
	<-reply

	h.Inbox() <- RemoveSession{GameID: "G1"}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("removed session still running")
	}

	ids := make(chan []string, 1)
	h.Inbox() <- ListSessions{Reply: ids}
	got := <-ids
	sort.Strings(got)
	assert.Equal(t, []string{"G2"}, got)

	h.Inbox() <- GetSession{GameID: "G1", Reply: reply}
	assert.Nil(t, <-reply)
}
