// Package client talks to a running victor server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/raphaelgruber/victor/internal/service"
)

// ErrRejected is returned when the server rejects an action.
var ErrRejected = errors.New("action rejected")

// Client connects to the websocket endpoint of a victor server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, VICTOR_SERVER_URL is used,
// falling back to ws://localhost:8484/ws.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("VICTOR_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "ws://localhost:8484/ws"
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Reply is what a single action produced.
type Reply struct {
	Messages []models.Message
	Commands []server.Command
	Final    service.Snapshot
}

// Say opens a session, sends one utterance and waits for the turn to finish.
// onSnapshot, if set, sees every intermediate snapshot.
func (c *Client) Say(ctx context.Context, text string, onSnapshot func(service.Snapshot)) (*Reply, error) {
	return c.Send(ctx, server.Action{Type: server.ActionSay, Text: text}, onSnapshot)
}

// Send opens a session, sends one action and returns the messages it added
// once the server reports the action done.
func (c *Client) Send(ctx context.Context, action server.Action, onSnapshot func(service.Snapshot)) (*Reply, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	read := func() (server.Event, error) {
		var e server.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return e, ctx.Err()
			}
			return e, fmt.Errorf("read event: %w", err)
		}
		return e, nil
	}

	// The first snapshot is the fresh session.
	var baseline int
	for {
		e, err := read()
		if err != nil {
			return nil, err
		}
		if e.Type == server.EventSnapshot && e.Snapshot != nil {
			baseline = len(e.Snapshot.Messages)
			break
		}
	}

	if err := conn.WriteJSON(action); err != nil {
		return nil, fmt.Errorf("send action: %w", err)
	}

	reply := &Reply{}
	for {
		e, err := read()
		if err != nil {
			return nil, err
		}
		switch e.Type {
		case server.EventError:
			return nil, fmt.Errorf("%w: %s", ErrRejected, e.Error)
		case server.EventCommand:
			if e.Command != nil {
				reply.Commands = append(reply.Commands, *e.Command)
			}
		case server.EventSnapshot:
			if e.Snapshot != nil && onSnapshot != nil {
				onSnapshot(*e.Snapshot)
			}
		case server.EventDone:
			if e.Action != action.Type || e.Snapshot == nil {
				continue
			}
			reply.Final = *e.Snapshot
			reply.Messages = e.Snapshot.Messages[min(baseline, len(e.Snapshot.Messages)):]
			return reply, nil
		}
	}
}

// Stats fetches the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	statsURL, err := c.httpURL("/stats")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &snap, nil
}

// httpURL maps the websocket endpoint onto a plain HTTP path on the same host.
func (c *Client) httpURL(path string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}
