// Package eventloop defines how components hand work back to the single
// goroutine that owns their state.
//
// Components never touch their state from another goroutine. Blocking work
// runs through Go and reports back with Post; timers run through AfterFunc
// and fire on the loop.
package eventloop

import "time"

type Timer interface {
	// Stop prevents the callback from running. It reports whether the timer
	// was still pending.
	Stop() bool
}

type Executor interface {
	// Post schedules fn on the loop goroutine.
	Post(fn func())
	// Go runs blocking work off the loop. work reports results with Post.
	Go(work func())
	// AfterFunc schedules fn on the loop after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// loopTimer drops a fire that was already queued when Stop ran. stopped is
// only touched on the loop goroutine.
type loopTimer struct {
	t       *time.Timer
	stopped bool
}

func (lt *loopTimer) Stop() bool {
	lt.stopped = true
	return lt.t.Stop()
}

// NewTimer builds an Executor-style timer on top of a Post function.
func NewTimer(post func(func()), d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		post(func() {
			if lt.stopped {
				return
			}
			lt.stopped = true
			fn()
		})
	})
	return lt
}
