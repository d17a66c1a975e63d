package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual_TimersFireInDeadlineOrder(t *testing.T) {
	m := NewManual()
	var got []string

	m.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
	m.AfterFunc(20*time.Millisecond, func() {
		got = append(got, "b")
		m.Post(func() { got = append(got, "b-posted") })
	})

	m.Advance(15 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 15 * time.Millisecond}, m.Pending())

	m.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "b-posted", "c"}, got)
	assert.Empty(t, m.Pending())
}

func TestManual_StoppedTimerNeverFires(t *testing.T) {
	m := NewManual()
	fired := false
	tm := m.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports nothing pending")

	m.Advance(time.Second)
	assert.False(t, fired)
}

func TestManual_GoRunsInlineAndPostsQueue(t *testing.T) {
	m := NewManual()
	var order []int

	m.Go(func() {
		order = append(order, 1)
		m.Post(func() { order = append(order, 3) })
	})
	order = append(order, 2)

	assert.Equal(t, 1, m.Drain())
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestNewTimer_StopDropsQueuedFire(t *testing.T) {
	queued := make(chan func(), 1)
	post := func(fn func()) { queued <- fn }

	fired := false
	tm := NewTimer(post, time.Millisecond, func() { fired = true })

	var fn func()
	select {
	case fn = <-queued:
	case <-time.After(time.Second):
		t.Fatalf("timer never posted")
	}

	// The fire is already queued on the loop; stopping now must still win.
	tm.Stop()
	fn()
	require.False(t, fired)
}
