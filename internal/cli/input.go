package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/raphaelgruber/victor/internal/service"
)

var (
	errQuit        = errors.New("quit")
	errNoSpeakable = errors.New("nothing to speak yet")
)

const inputHelp = `/play <game>      start tic-tac-toe, word-guess, moner-kotha or mind-reader
/speak            speak or stop the last reply
/autospeak on|off toggle automatic speech
/quit             leave
In tic-tac-toe type a cell number 1-9. In the mind reader press enter for the next step.
Type 'exit game' to leave a game.`

// parseInput maps a typed line onto a session action for the current state.
func parseInput(s service.Snapshot, line string) (server.Action, error) {
	text := strings.TrimSpace(line)

	if cmd, ok := strings.CutPrefix(text, "/"); ok {
		name, arg, _ := strings.Cut(cmd, " ")
		arg = strings.TrimSpace(arg)
		switch strings.ToLower(name) {
		case "quit", "q":
			return server.Action{}, errQuit
		case "play":
			if arg == "" {
				return server.Action{}, fmt.Errorf("usage: /play <game>")
			}
			return server.Action{Type: server.ActionStart, Game: arg}, nil
		case "speak":
			id, ok := lastSpeakable(s)
			if !ok {
				return server.Action{}, errNoSpeakable
			}
			return server.Action{Type: server.ActionSpeak, ID: id}, nil
		case "autospeak":
			switch strings.ToLower(arg) {
			case "on":
				return server.Action{Type: server.ActionAutoSpeak, On: true}, nil
			case "off":
				return server.Action{Type: server.ActionAutoSpeak}, nil
			}
			return server.Action{}, fmt.Errorf("usage: /autospeak on|off")
		case "help":
			return server.Action{}, errors.New(inputHelp)
		}
		return server.Action{}, fmt.Errorf("unknown command /%s", name)
	}

	if s.Game != nil {
		switch s.Game.Kind {
		case game.TicTacToe:
			if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= 9 {
				return server.Action{Type: server.ActionMove, Row: (n - 1) / 3, Col: (n - 1) % 3}, nil
			}
		case game.MindReader:
			switch strings.ToLower(text) {
			case "", "next", "n":
				return server.Action{Type: server.ActionNext}, nil
			case "restart", "again":
				return server.Action{Type: server.ActionRestart}, nil
			}
		case game.MonerKotha:
			if s.Game.Probe != nil && slices.ContainsFunc(s.Game.Probe.Permitted, func(p string) bool {
				return strings.EqualFold(p, text)
			}) {
				return server.Action{Type: server.ActionAnswer, Text: text}, nil
			}
		}
	}

	return server.Action{Type: server.ActionSay, Text: text}, nil
}

// lastSpeakable returns the newest assistant message, preferring the game
// transcript while a game is active.
func lastSpeakable(s service.Snapshot) (string, bool) {
	var logs [][]models.Message
	if s.Game != nil {
		logs = append(logs, s.Game.Transcript)
	}
	logs = append(logs, s.Messages)
	for _, msgs := range logs {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == models.RoleAssistant {
				return msgs[i].ID, true
			}
		}
	}
	return "", false
}
