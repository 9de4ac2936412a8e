package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/service"
)

// Inbound action types.
const (
	ActionSay       = "say"
	ActionMove      = "move"
	ActionAnswer    = "answer"
	ActionNext      = "next"
	ActionRestart   = "restart"
	ActionSpeak     = "speak"
	ActionStart     = "start"
	ActionExit      = "exit"
	ActionAutoSpeak = "autospeak"
)

// Outbound event types.
const (
	EventSnapshot = "snapshot"
	EventError    = "error"
	EventCommand  = "command"
	EventDone     = "done"
)

var ErrUnknownAction = errors.New("unknown action")

// Action is a client request sent over the websocket.
type Action struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Row  int    `json:"row,omitempty"`
	Col  int    `json:"col,omitempty"`
	ID   string `json:"id,omitempty"`
	Game string `json:"game,omitempty"`
	On   bool   `json:"on,omitempty"`
}

// Command tells the client to perform a local command's side effect.
type Command struct {
	Name    string `json:"name"`
	OpenURL string `json:"open_url,omitempty"`
	Action  string `json:"action,omitempty"`
}

// Event is a server message sent over the websocket.
type Event struct {
	Type     string            `json:"type"`
	Snapshot *service.Snapshot `json:"snapshot,omitempty"`
	Command  *Command          `json:"command,omitempty"`
	Action   string            `json:"action,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func snapshotEvent(s service.Snapshot) Event {
	return Event{Type: EventSnapshot, Snapshot: &s}
}

func commandEvent(r commands.Result) Event {
	return Event{Type: EventCommand, Command: &Command{Name: r.Name, OpenURL: r.OpenURL, Action: r.Action}}
}

// doneEvent closes out an accepted action with the session state it left.
func doneEvent(action string, s service.Snapshot) Event {
	return Event{Type: EventDone, Action: action, Snapshot: &s}
}

func errorEvent(action string, err error) Event {
	return Event{Type: EventError, Action: action, Error: err.Error()}
}

// Dispatch applies one action to a session.
func Dispatch(ctx context.Context, s *service.Session, a Action) error {
	switch a.Type {
	case ActionSay:
		return s.Handle(ctx, a.Text)
	case ActionMove:
		return s.PlayerMove(ctx, a.Row, a.Col)
	case ActionAnswer:
		return s.Answer(ctx, a.Text)
	case ActionNext:
		_, err := s.NextStep()
		return err
	case ActionRestart:
		return s.RestartMindReader()
	case ActionSpeak:
		return s.ToggleSpeech(a.ID)
	case ActionStart:
		return s.StartGame(ctx, game.Kind(a.Game))
	case ActionExit:
		if !s.ExitGame() {
			return service.ErrNoGame
		}
		return nil
	case ActionAutoSpeak:
		s.SetAutoSpeak(a.On)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}
