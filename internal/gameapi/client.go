// Package gameapi is the REST client for the game server's action and
// status endpoints. Every call returns the authoritative snapshot.
package gameapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tablesync/internal/engine"
	"github.com/DoyleJ11/tablesync/internal/types"
)

// Error is a non-2xx answer from the game API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("game api status %d", e.Status)
	}
	return fmt.Sprintf("game api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL, token string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

var actionPaths = map[engine.ActionType]string{
	engine.ActionFold:  "fold",
	engine.ActionCheck: "check",
	engine.ActionCall:  "call",
	engine.ActionBet:   "bet",
	engine.ActionRaise: "raise",
	engine.ActionAllIn: "all-in",
}

type actionBody struct {
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount,omitempty"`
}

func (c *Client) Act(ctx context.Context, gameID string, req engine.ActionRequest) (*engine.Snapshot, error) {
	path, ok := actionPaths[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", engine.ErrUnknownAction, req.Type)
	}
	body := actionBody{PlayerID: req.PlayerID}
	if req.Type == engine.ActionBet || req.Type == engine.ActionRaise {
		body.Amount = req.Amount
	}
	return c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(gameID)+"/"+path, body)
}

func (c *Client) BotAction(ctx context.Context, gameID, botID string) (*engine.Snapshot, error) {
	return c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(gameID)+"/bot-action/"+url.PathEscape(botID), nil)
}

func (c *Client) Status(ctx context.Context, gameID string) (*engine.Snapshot, error) {
	return c.do(ctx, http.MethodGet, "/api/games/"+url.PathEscape(gameID), nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*engine.Snapshot, error) {
	var body io.Reader
	if payload != nil {
		b, err := types.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	c.log.Debug("game api",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return nil, &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	var snap engine.Snapshot
	if err := types.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, types.ErrMalformed, err)
	}
	return &snap, nil
}

func errorMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if types.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(data))
}
