// Package inband recognizes structured directives a model embeds as the
// entire text of a response.
//
// The parser is the only place raw response text is interpreted as a
// command. Anything that is not a strict JSON object with a known action
// and all required fields is prose and is shown verbatim.
package inband

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/jsonx"
)

// Action names used on the wire.
const (
	ActionExecutePython = "execute_python"
	ActionExecuteCode   = "execute_code"
	ActionStartGame     = "start_game"
	ActionGameMove      = "game_move"
)

// Command is one of ExecuteCode, StartGame or GameMove.
type Command interface {
	command()
}

// ExecuteCode asks for code to be run by the execution endpoint.
type ExecuteCode struct {
	Language string
	Code     string
}

// StartGame switches the session into a game.
type StartGame struct {
	Game game.Kind
}

// GameMove is a move on the tic-tac-toe board.
type GameMove struct {
	Game game.Kind
	Row  int
	Col  int
}

func (ExecuteCode) command() {}
func (StartGame) command()   {}
func (GameMove) command()    {}

// ErrNoMove is returned by ParseMove when the response carries no usable coordinates.
var ErrNoMove = errors.New("no move in response")

type envelope struct {
	Action   *string          `json:"action"`
	Code     *string          `json:"code"`
	Language *string          `json:"language"`
	Game     *string          `json:"game"`
	Move     *json.RawMessage `json:"move"`
	Row      *int             `json:"row"`
	Col      *int             `json:"col"`
}

// Parse classifies a trimmed response. It returns nil for prose and for
// JSON of an unrecognized shape.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil
	}
	if env.Action == nil {
		return nil
	}

	switch *env.Action {
	case ActionExecutePython:
		if env.Code == nil || strings.TrimSpace(*env.Code) == "" {
			return nil
		}
		return ExecuteCode{Language: "python", Code: *env.Code}

	case ActionExecuteCode:
		if env.Code == nil || strings.TrimSpace(*env.Code) == "" {
			return nil
		}
		lang := "python"
		if env.Language != nil && strings.TrimSpace(*env.Language) != "" {
			lang = strings.ToLower(strings.TrimSpace(*env.Language))
		}
		return ExecuteCode{Language: lang, Code: *env.Code}

	case ActionStartGame:
		if env.Game == nil {
			return nil
		}
		kind, ok := game.ParseKind(*env.Game)
		if !ok {
			return nil
		}
		return StartGame{Game: kind}

	case ActionGameMove:
		mv, err := moveFrom(env)
		if err != nil {
			return nil
		}
		return mv
	}
	return nil
}

// ParseMove reads an opponent move from a free-form model reply. It
// tolerates prose around the object and repairs malformed JSON.
func ParseMove(text string) (GameMove, error) {
	var env envelope
	if err := jsonx.DecodeLenient(text, &env); err != nil {
		return GameMove{}, fmt.Errorf("decode move: %w", err)
	}
	return moveFrom(env)
}

func moveFrom(env envelope) (GameMove, error) {
	mv := GameMove{Game: game.TicTacToe}
	if env.Game != nil {
		if kind, ok := game.ParseKind(*env.Game); ok {
			mv.Game = kind
		}
	}

	if env.Move != nil {
		var coords []int
		if err := json.Unmarshal(*env.Move, &coords); err != nil || len(coords) != 2 {
			return GameMove{}, ErrNoMove
		}
		mv.Row, mv.Col = coords[0], coords[1]
		return mv, nil
	}
	if env.Row != nil && env.Col != nil {
		mv.Row, mv.Col = *env.Row, *env.Col
		return mv, nil
	}
	return GameMove{}, ErrNoMove
}
