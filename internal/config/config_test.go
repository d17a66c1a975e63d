package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/tablesync/internal/backoff"
)

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8081", c.HTTPAddr)
	assert.Equal(t, TransportStomp, c.Transport)
	assert.Equal(t, "rest", c.ActionChannel)
	assert.Equal(t, backoff.DefaultPolicy(), c.Backoff)
	assert.Equal(t, 800*time.Millisecond, c.BotPacing)
	assert.Equal(t, 5*time.Second, c.RecoveryTimeout)
	assert.Equal(t, 250*time.Millisecond, c.ForceReconnectDelay)
	assert.Nil(t, c.Games)
	assert.False(t, c.LogDev)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TABLESYNC_TRANSPORT", "nats")
	t.Setenv("TABLESYNC_GAMES", " G1, ,G2 ")
	t.Setenv("TABLESYNC_BACKOFF_INITIAL", "500ms")
	t.Setenv("TABLESYNC_MAX_ATTEMPTS", "3")
	t.Setenv("TABLESYNC_ACTION_CHANNEL", "bus")
	t.Setenv("TABLESYNC_TOKEN", "tok")
	t.Setenv("LOG_DEV", "true")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, TransportNATS, c.Transport)
	assert.Equal(t, []string{"G1", "G2"}, c.Games)
	assert.Equal(t, 500*time.Millisecond, c.Backoff.Initial)
	assert.Equal(t, 3, c.Backoff.MaxAttempts)
	assert.Equal(t, "bus", c.ActionChannel)
	assert.Equal(t, "tok", c.Token)
	assert.True(t, c.LogDev)
}

func TestFromEnv_ReportsEveryProblem(t *testing.T) {
	t.Setenv("TABLESYNC_TRANSPORT", "carrier-pigeon")
	t.Setenv("TABLESYNC_BOT_PACING", "soon")
	t.Setenv("TABLESYNC_BACKOFF_JITTER", "1.5")

	_, err := FromEnv()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 3)
	assert.Contains(t, err.Error(), "TABLESYNC_BOT_PACING")
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "JITTER")
}
