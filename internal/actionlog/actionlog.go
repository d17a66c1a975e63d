// Package actionlog keeps the append-only record of player actions. Records
// are for audit and display only; nothing replays them.
package actionlog

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/DoyleJ11/tablesync/internal/engine"
)

type Log interface {
	Append(ctx context.Context, rec engine.ActionRecord) error
	// Recent returns up to n records for gameID, oldest first.
	Recent(ctx context.Context, gameID string, n int) ([]engine.ActionRecord, error)
}

// Memory is a bounded in-process log. The oldest record is evicted once
// capacity is reached.
type Memory struct {
	mu   sync.Mutex
	cap  int
	recs []engine.ActionRecord
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{cap: capacity}
}

func (m *Memory) Append(_ context.Context, rec engine.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recs) == m.cap {
		copy(m.recs, m.recs[1:])
		m.recs = m.recs[:m.cap-1]
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *Memory) Recent(_ context.Context, gameID string, n int) ([]engine.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []engine.ActionRecord
	for i := len(m.recs) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if m.recs[i].GameID == gameID {
			out = append(out, m.recs[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Tee appends to every log and reads from the first one.
type Tee []Log

func (t Tee) Append(ctx context.Context, rec engine.ActionRecord) error {
	var err error
	for _, l := range t {
		err = multierr.Append(err, l.Append(ctx, rec))
	}
	return err
}

func (t Tee) Recent(ctx context.Context, gameID string, n int) ([]engine.ActionRecord, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].Recent(ctx, gameID, n)
}
