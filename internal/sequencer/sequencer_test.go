package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func seq(n int64) *int64 { return &n }

func TestAccept_StrictlyIncreasingAllApplied(t *testing.T) {
	var s Sequencer
	for n := int64(1); n <= 5; n++ {
		assert.True(t, s.Accept(seq(n)), "seq %d", n)
	}
	assert.Equal(t, int64(5), s.Last())
}

func TestAccept_DropsStaleAndDuplicates(t *testing.T) {
	var s Sequencer
	s.Accept(seq(10))

	assert.False(t, s.Accept(seq(10)), "duplicate")
	assert.False(t, s.Accept(seq(3)), "stale")
	assert.Equal(t, int64(10), s.Last())

	assert.True(t, s.Accept(seq(12)), "gaps are allowed")
	assert.Equal(t, int64(12), s.Last())
}

func TestAccept_UnsequencedAlwaysApplied(t *testing.T) {
	var s Sequencer
	s.Accept(seq(7))
	assert.True(t, s.Accept(nil))
	assert.Equal(t, int64(7), s.Last(), "unsequenced events leave the baseline alone")
}

func TestAdvanceAndReset(t *testing.T) {
	var s Sequencer
	s.Advance(4)
	assert.Equal(t, int64(4), s.Last())
	s.Advance(2)
	assert.Equal(t, int64(4), s.Last(), "advance never lowers")

	s.Reset()
	assert.Equal(t, int64(0), s.Last())
	assert.True(t, s.Accept(seq(1)), "fresh subscription accepts anything")
}
