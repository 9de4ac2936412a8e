package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/config"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/raphaelgruber/victor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memArchive struct {
	mu    sync.Mutex
	saved map[string][]models.Message
	err   error
}

func (a *memArchive) Save(_ context.Context, id string, msgs []models.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.saved == nil {
		a.saved = make(map[string][]models.Message)
	}
	a.saved[id] = msgs
	return nil
}

func (a *memArchive) Load(_ context.Context, id string) ([]models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved[id], nil
}

func (a *memArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

type fixture struct {
	url     string
	archive *memArchive
	metrics *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	matcher, err := commands.Default()
	require.NoError(t, err)

	f := &fixture{archive: &memArchive{}, metrics: metrics.NewCollector()}
	srv := server.New(server.Options{
		Session: service.Options{
			Chat:          llm.NewMock(),
			Images:        llm.MockImages{},
			Commands:      matcher,
			TeardownDelay: time.Hour,
			OperatorName:  "Operator",
		},
		Archive: f.archive,
		Metrics: f.metrics,
		Logger:  config.DiscardLogger(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	f.url = ts.URL
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

// readUntil reads events until match returns true.
func readUntil(t *testing.T, ws *websocket.Conn, match func(server.Event) bool) server.Event {
	t.Helper()
	for {
		var e server.Event
		require.NoError(t, ws.ReadJSON(&e))
		if match(e) {
			return e
		}
	}
}

func settled(e server.Event) bool {
	return e.Type == server.EventSnapshot && !e.Snapshot.Busy
}

func lastMessage(s *service.Snapshot) models.Message {
	return s.Messages[len(s.Messages)-1]
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestWebsocketChat(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)

	first := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventSnapshot })
	assert.Equal(t, service.WelcomeText, first.Snapshot.Messages[0].Content)
	assert.Equal(t, "idle-chat", first.Snapshot.Mode)

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionSay, Text: "hello there"}))
	e := readUntil(t, ws, func(e server.Event) bool {
		return settled(e) && len(e.Snapshot.Messages) == 3
	})
	assert.Equal(t, "Acknowledged, Operator. You said: hello there", lastMessage(e.Snapshot).Content)
}

func TestWebsocketGame(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionStart, Game: "tictactoe"}))
	e := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventSnapshot && e.Snapshot.Game != nil })
	assert.Equal(t, "in-game(tic-tac-toe)", e.Snapshot.Mode)

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionMove, Row: 1, Col: 1}))
	e = readUntil(t, ws, func(e server.Event) bool {
		return e.Type == server.EventSnapshot && e.Snapshot.Game != nil && !e.Snapshot.Game.Board.Thinking &&
			e.Snapshot.Game.Board.Cells.At(1, 1).String() == "X"
	})
	assert.Equal(t, "O", e.Snapshot.Game.Board.Cells.At(0, 0).String(), "mock opponent takes the first free cell")

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionMove, Row: 1, Col: 1}))
	errEvent := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventError })
	assert.Equal(t, server.ActionMove, errEvent.Action)
	assert.Contains(t, errEvent.Error, "cell already taken")

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionExit}))
	e = readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventSnapshot && e.Snapshot.Game == nil })
	assert.Equal(t, service.TerminationText, lastMessage(e.Snapshot).Content)
}

func TestWebsocketDoneEvent(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)
	readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventSnapshot })

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionSay, Text: "let's play tic tac toe"}))
	e := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventDone })
	assert.Equal(t, server.ActionSay, e.Action)
	require.NotNil(t, e.Snapshot)
	require.NotNil(t, e.Snapshot.Game)
	assert.Equal(t, models.RoleUser, lastMessage(e.Snapshot).Role)
}

func TestWebsocketCommandEvent(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(server.Action{Type: server.ActionSay, Text: "Get directions to Vienna"}))
	e := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventCommand })
	assert.Equal(t, "directions", e.Command.Name)
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&destination=vienna", e.Command.OpenURL)
}

func TestWebsocketRejectsUnknownAction(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)

	require.NoError(t, ws.WriteJSON(server.Action{Type: "dance"}))
	e := readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventError })
	assert.Contains(t, e.Error, "unknown action")
}

func TestDisconnectArchivesTranscript(t *testing.T) {
	f := newFixture(t)
	ws := f.dial(t)
	readUntil(t, ws, func(e server.Event) bool { return e.Type == server.EventSnapshot })
	assert.Eventually(t, func() bool { return f.metrics.Snapshot().ActiveSessions == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	ws.Close()

	assert.Eventually(t, func() bool { return f.archive.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.metrics.Snapshot().ActiveSessions == 0 }, 2*time.Second, 10*time.Millisecond)

	snap := f.metrics.Snapshot()
	require.NotNil(t, snap.ArchiveSave)
	assert.Equal(t, int64(1), snap.ArchiveSave.Count)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.url + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap metrics.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(0), snap.ActiveSessions)
}

func TestDispatchErrors(t *testing.T) {
	sess := service.New(service.Options{Chat: llm.NewMock(), Logger: config.DiscardLogger()})
	t.Cleanup(sess.Close)
	ctx := context.Background()

	tests := []struct {
		action server.Action
		want   error
	}{
		{server.Action{Type: server.ActionMove}, service.ErrNoGame},
		{server.Action{Type: server.ActionAnswer, Text: "Yes"}, service.ErrNoGame},
		{server.Action{Type: server.ActionNext}, service.ErrNoGame},
		{server.Action{Type: server.ActionRestart}, service.ErrNoGame},
		{server.Action{Type: server.ActionExit}, service.ErrNoGame},
		{server.Action{Type: server.ActionSay, Text: "   "}, service.ErrEmptyUtterance},
		{server.Action{Type: "dance"}, server.ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.action.Type, func(t *testing.T) {
			err := server.Dispatch(ctx, sess, tt.action)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
