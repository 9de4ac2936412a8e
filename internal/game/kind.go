// Package game defines the game kinds that can take over a session.
package game

import "strings"

// Kind identifies a mini-game.
type Kind string

const (
	TicTacToe  Kind = "tic-tac-toe"
	WordGuess  Kind = "word-guess"
	MonerKotha Kind = "moner-kotha"
	MindReader Kind = "mind-reader"
)

// Kinds lists every supported game.
var Kinds = []Kind{TicTacToe, WordGuess, MonerKotha, MindReader}

var aliases = map[string]Kind{
	"tic-tac-toe":         TicTacToe,
	"tictactoe":           TicTacToe,
	"noughts-and-crosses": TicTacToe,
	"word-guess":          WordGuess,
	"word-guessing":       WordGuess,
	"word-puzzle":         WordGuess,
	"hangman":             WordGuess,
	"moner-kotha":         MonerKotha,
	"monerkotha":          MonerKotha,
	"twenty-questions":    MonerKotha,
	"20-questions":        MonerKotha,
	"mind-reader":         MindReader,
	"mindreader":          MindReader,
}

// ParseKind normalizes a game name from a start_game directive.
func ParseKind(s string) (Kind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	k, ok := aliases[norm]
	return k, ok
}

// Title returns a display name.
func (k Kind) Title() string {
	switch k {
	case TicTacToe:
		return "Tic-Tac-Toe"
	case WordGuess:
		return "Word Guess"
	case MonerKotha:
		return "Moner Kotha"
	case MindReader:
		return "Mind Reader"
	default:
		return string(k)
	}
}
