package actionlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tablesync/internal/engine"
)

func rec(id, game string) engine.ActionRecord {
	return engine.ActionRecord{ID: id, GameID: game, Type: engine.ActionCall, PlayerID: "p1", At: time.Unix(0, 0)}
}

func ids(recs []engine.ActionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestMemory_RecentOldestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)
	for _, r := range []engine.ActionRecord{rec("a", "G1"), rec("b", "G2"), rec("c", "G1"), rec("d", "G1")} {
		require.NoError(t, m.Append(ctx, r))
	}

	got, err := m.Recent(ctx, "G1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids(got))

	got, _ = m.Recent(ctx, "G1", 0)
	assert.Equal(t, []string{"a", "c", "d"}, ids(got))
}

func TestMemory_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.Append(ctx, rec(id, "G1")))
	}
	got, _ := m.Recent(ctx, "G1", 0)
	assert.Equal(t, []string{"b", "c"}, ids(got))
}

type failing struct{}

func (failing) Append(context.Context, engine.ActionRecord) error { return errors.New("db down") }
func (failing) Recent(context.Context, string, int) ([]engine.ActionRecord, error) {
	return nil, errors.New("db down")
}

func TestTee_AppendsEverywhere(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(4)
	tee := Tee{m, failing{}}

	err := tee.Append(ctx, rec("a", "G1"))
	assert.EqualError(t, err, "db down")

	got, err := tee.Recent(ctx, "G1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got), "memory still got the record")
}
