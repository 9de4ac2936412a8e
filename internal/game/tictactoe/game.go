package tictactoe

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrOutOfRange   = errors.New("cell out of range")
	ErrOccupied     = errors.New("cell already taken")
	ErrNotYourTurn  = errors.New("not the player's turn")
	ErrNotTheirTurn = errors.New("not the opponent's turn")
	ErrGameOver     = errors.New("game is over")
)

// Phase is the turn state of a game.
type Phase int

const (
	AwaitingPlayer Phase = iota
	AwaitingOpponent
	Finished
)

func (p Phase) String() string {
	switch p {
	case AwaitingPlayer:
		return "awaiting-player"
	case AwaitingOpponent:
		return "awaiting-opponent"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Game is a single tic-tac-toe match. The player always moves first.
type Game struct {
	board   Board
	phase   Phase
	outcome Outcome
}

// New starts a game on an empty board.
func New() *Game {
	return &Game{}
}

// Board returns a copy of the current board.
func (g *Game) Board() Board { return g.board }

// Phase returns whose turn it is, or Finished.
func (g *Game) Phase() Phase { return g.phase }

// Outcome returns the result once the game is finished.
func (g *Game) Outcome() (Outcome, bool) {
	return g.outcome, g.phase == Finished
}

// PlayerMove places an X. On any error the game is left untouched.
func (g *Game) PlayerMove(row, col int) error {
	switch g.phase {
	case Finished:
		return ErrGameOver
	case AwaitingOpponent:
		return ErrNotYourTurn
	}
	if err := g.place(row, col, X); err != nil {
		return err
	}
	g.advance(AwaitingOpponent)
	return nil
}

// OpponentMove places an O. An illegal move forfeits the opponent's turn
// and the error explains why.
func (g *Game) OpponentMove(row, col int) error {
	if g.phase != AwaitingOpponent {
		if g.phase == Finished {
			return ErrGameOver
		}
		return ErrNotTheirTurn
	}
	if err := g.place(row, col, O); err != nil {
		g.Forfeit()
		return err
	}
	g.advance(AwaitingPlayer)
	return nil
}

// Forfeit hands the turn back to the player without changing the board.
func (g *Game) Forfeit() {
	if g.phase == AwaitingOpponent {
		g.phase = AwaitingPlayer
	}
}

func (g *Game) place(row, col int, m Mark) error {
	if !InRange(row, col) {
		return fmt.Errorf("%w: row %d, col %d", ErrOutOfRange, row, col)
	}
	if g.board.At(row, col) != Empty {
		return fmt.Errorf("%w: row %d, col %d", ErrOccupied, row, col)
	}
	g.board[row*Size+col] = m
	return nil
}

func (g *Game) advance(next Phase) {
	if out, done := Evaluate(g.board); done {
		g.outcome = out
		g.phase = Finished
		return
	}
	g.phase = next
}

// Prompt asks the model for its next move.
func (g *Game) Prompt() string {
	state, _ := json.Marshal(g.board)
	return fmt.Sprintf(`We are playing tic-tac-toe. You are "O" and the user is "X". It is your turn.
Board: %s
Rows and columns are numbered 0 to 2 and null marks an empty cell. Choose an empty cell.
Respond ONLY with a JSON object in this format: {"action": "game_move", "game": "tic-tac-toe", "move": [row, col]}`, state)
}

// OutcomeText describes a finished game to the player.
func OutcomeText(o Outcome) string {
	switch o.Winner {
	case X:
		return "You win, Operator. An unexpected outcome."
	case O:
		return "I win. A predictable outcome."
	default:
		return "Stalemate. The game is a draw."
	}
}
