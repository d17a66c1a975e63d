// Package config reads process settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/tablesync/internal/backoff"
)

const (
	TransportStomp = "stomp"
	TransportNATS  = "nats"
)

type Config struct {
	HTTPAddr  string
	Transport string
	WSURL     string
	NATSURL   string
	APIURL    string
	Token     string

	PlayerID   string
	PlayerName string
	Games      []string

	ActionChannel string

	Backoff             backoff.Policy
	BotPacing           time.Duration
	RecoveryTimeout     time.Duration
	ForceReconnectDelay time.Duration
	HeartBeat           time.Duration

	DatabaseURL string
	LogDev      bool
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var errs error
	p := parser{errs: &errs}

	c := Config{
		HTTPAddr:      getenv("TABLESYNC_HTTP_ADDR", ":8081"),
		Transport:     getenv("TABLESYNC_TRANSPORT", TransportStomp),
		WSURL:         getenv("TABLESYNC_WS_URL", "ws://localhost:8080/ws"),
		NATSURL:       getenv("TABLESYNC_NATS_URL", "nats://localhost:4222"),
		APIURL:        getenv("TABLESYNC_API_URL", "http://localhost:8080"),
		Token:         os.Getenv("TABLESYNC_TOKEN"),
		PlayerID:      os.Getenv("TABLESYNC_PLAYER_ID"),
		PlayerName:    getenv("TABLESYNC_PLAYER_NAME", "Player"),
		Games:         splitList(os.Getenv("TABLESYNC_GAMES")),
		ActionChannel: getenv("TABLESYNC_ACTION_CHANNEL", "rest"),
		DatabaseURL:   os.Getenv("TABLESYNC_DATABASE_URL"),
		LogDev:        getenv("LOG_DEV", "false") == "true",

		Backoff: backoff.Policy{
			Initial:     p.duration("TABLESYNC_BACKOFF_INITIAL", time.Second),
			Max:         p.duration("TABLESYNC_BACKOFF_MAX", 30*time.Second),
			Multiplier:  p.float("TABLESYNC_BACKOFF_MULTIPLIER", 2),
			Jitter:      p.float("TABLESYNC_BACKOFF_JITTER", 0.2),
			MaxAttempts: p.int("TABLESYNC_MAX_ATTEMPTS", 10),
		},
		BotPacing:           p.duration("TABLESYNC_BOT_PACING", 800*time.Millisecond),
		RecoveryTimeout:     p.duration("TABLESYNC_RECOVERY_TIMEOUT", 5*time.Second),
		ForceReconnectDelay: p.duration("TABLESYNC_FORCE_RECONNECT_DELAY", 250*time.Millisecond),
		HeartBeat:           p.duration("TABLESYNC_HEARTBEAT", 10*time.Second),
	}

	errs = multierr.Append(errs, c.validate())
	if errs != nil {
		return Config{}, errs
	}
	return c, nil
}

func (c Config) validate() error {
	var err error
	switch c.Transport {
	case TransportStomp, TransportNATS:
	default:
		err = multierr.Append(err, fmt.Errorf("TABLESYNC_TRANSPORT: unknown transport %q", c.Transport))
	}
	switch c.ActionChannel {
	case "rest", "bus":
	default:
		err = multierr.Append(err, fmt.Errorf("TABLESYNC_ACTION_CHANNEL: unknown channel %q", c.ActionChannel))
	}
	if c.Backoff.Initial <= 0 || c.Backoff.Max < c.Backoff.Initial {
		err = multierr.Append(err, errors.New("backoff: need 0 < TABLESYNC_BACKOFF_INITIAL <= TABLESYNC_BACKOFF_MAX"))
	}
	if c.Backoff.Multiplier < 1 {
		err = multierr.Append(err, errors.New("TABLESYNC_BACKOFF_MULTIPLIER must be >= 1"))
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter >= 1 {
		err = multierr.Append(err, errors.New("TABLESYNC_BACKOFF_JITTER must be in [0, 1)"))
	}
	if c.Backoff.MaxAttempts < 0 {
		err = multierr.Append(err, errors.New("TABLESYNC_MAX_ATTEMPTS must not be negative"))
	}
	return err
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parser collects every malformed value instead of stopping at the first.
type parser struct{ errs *error }

func (p parser) duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = multierr.Append(*p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func (p parser) float(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*p.errs = multierr.Append(*p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func (p parser) int(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = multierr.Append(*p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}
