// Package tictactoe implements the board game played against the model.
package tictactoe

import (
	"encoding/json"
	"fmt"
)

// Mark is the content of a board cell.
type Mark uint8

const (
	Empty Mark = iota
	X          // the player
	O          // the model
)

func (m Mark) String() string {
	switch m {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Size is the length of a board side.
const Size = 3

// Board is a 3x3 grid stored row-major; index = row*3 + col.
type Board [Size * Size]Mark

// BoardFromRows builds a board from a row-major grid.
func BoardFromRows(rows [Size][Size]Mark) Board {
	var b Board
	for r := range Size {
		for c := range Size {
			b[r*Size+c] = rows[r][c]
		}
	}
	return b
}

// At returns the mark at row, col.
func (b Board) At(row, col int) Mark {
	return b[row*Size+col]
}

// Full reports whether no empty cell is left.
func (b Board) Full() bool {
	for _, m := range b {
		if m == Empty {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the board as a 2D array with null for empty cells.
func (b Board) MarshalJSON() ([]byte, error) {
	rows := make([][]*string, Size)
	for r := range Size {
		rows[r] = make([]*string, Size)
		for c := range Size {
			if m := b.At(r, c); m != Empty {
				s := m.String()
				rows[r][c] = &s
			}
		}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes the 2D array form written by MarshalJSON.
func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != Size {
		return fmt.Errorf("board: want %d rows, got %d", Size, len(rows))
	}
	var out Board
	for r, row := range rows {
		if len(row) != Size {
			return fmt.Errorf("board: row %d has %d cells", r, len(row))
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			switch *cell {
			case "X":
				out[r*Size+c] = X
			case "O":
				out[r*Size+c] = O
			default:
				return fmt.Errorf("board: unknown mark %q", *cell)
			}
		}
	}
	*b = out
	return nil
}

// InRange reports whether row and col address a cell.
func InRange(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Outcome is a terminal board result.
type Outcome struct {
	Winner Mark  // Empty on a tie
	Line   []int // winning cell indices, nil on a tie
}

// Tie reports whether the outcome is a draw.
func (o Outcome) Tie() bool { return o.Winner == Empty }

// Evaluate checks the board for a winning line or a tie. The second return
// value is false while the game can continue.
func Evaluate(b Board) (Outcome, bool) {
	for _, l := range lines {
		m := b[l[0]]
		if m != Empty && m == b[l[1]] && m == b[l[2]] {
			return Outcome{Winner: m, Line: []int{l[0], l[1], l[2]}}, true
		}
	}
	if b.Full() {
		return Outcome{}, true
	}
	return Outcome{}, false
}
