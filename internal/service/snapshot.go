package service

import (
	"github.com/raphaelgruber/victor/internal/chatlog"
	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/game/interrogation"
	"github.com/raphaelgruber/victor/internal/game/mindreader"
	"github.com/raphaelgruber/victor/internal/game/tictactoe"
	"github.com/raphaelgruber/victor/internal/game/wordguess"
	"github.com/raphaelgruber/victor/internal/models"
)

// activeGame is the state of the game in play. Exactly one engine field is
// set, matching kind.
type activeGame struct {
	kind       game.Kind
	transcript *chatlog.Log

	board    *tictactoe.Game
	thinking bool // opponent move in flight

	puzzle *wordguess.Puzzle
	probe  *interrogation.Game
	reader *mindreader.Game
}

func newActiveGame(kind game.Kind, attempts int) *activeGame {
	g := &activeGame{kind: kind}
	switch kind {
	case game.TicTacToe:
		g.board = tictactoe.New()
	case game.WordGuess:
		g.puzzle = wordguess.New(attempts)
	case game.MonerKotha:
		g.probe = interrogation.New()
	case game.MindReader:
		g.reader = mindreader.New()
	}
	if g.probe != nil {
		g.transcript = g.probe.Log()
	} else {
		g.transcript = chatlog.New()
	}
	return g
}

// terminal reports whether the game has reached an end state.
func (g *activeGame) terminal() bool {
	switch {
	case g.board != nil:
		return g.board.Phase() == tictactoe.Finished
	case g.puzzle != nil:
		return g.puzzle.Phase().Terminal()
	default:
		return false
	}
}

// Snapshot is an immutable copy of everything a surface displays.
type Snapshot struct {
	SessionID string           `json:"session_id"`
	Mode      string           `json:"mode"`
	Busy      bool             `json:"busy"`
	AutoSpeak bool             `json:"auto_speak"`
	Speaking  string           `json:"speaking,omitempty"`
	Messages  []models.Message `json:"messages"`
	Game      *GameView        `json:"game,omitempty"`
}

// GameView is the visible state of the active game.
type GameView struct {
	Kind       game.Kind        `json:"kind"`
	Title      string           `json:"title"`
	Transcript []models.Message `json:"transcript"`
	Finished   bool             `json:"finished"`
	Board      *BoardView       `json:"board,omitempty"`
	Puzzle     *PuzzleView      `json:"puzzle,omitempty"`
	Probe      *ProbeView       `json:"probe,omitempty"`
	Reader     *ReaderView      `json:"reader,omitempty"`
}

// BoardView shows a tic-tac-toe match.
type BoardView struct {
	Cells      tictactoe.Board `json:"cells"`
	Phase      string          `json:"phase"`
	PlayerTurn bool            `json:"player_turn"`
	Thinking   bool            `json:"thinking"`
	Winner     string          `json:"winner,omitempty"`
	Line       []int           `json:"line,omitempty"`
}

// PuzzleView shows a word game.
type PuzzleView struct {
	Phase     string   `json:"phase"`
	Hint      string   `json:"hint,omitempty"`
	Remaining int      `json:"remaining"`
	Budget    int      `json:"budget"`
	Misses    []string `json:"misses,omitempty"`
	Word      string   `json:"word,omitempty"`
}

// ProbeView shows an interrogation.
type ProbeView struct {
	Loading    bool     `json:"loading"`
	FinalGuess bool     `json:"final_guess"`
	Permitted  []string `json:"permitted"`
}

// ReaderView shows the mind-reader trick.
type ReaderView struct {
	Started  bool   `json:"started"`
	Step     int    `json:"step"`
	Steps    int    `json:"steps"`
	Revealed bool   `json:"revealed"`
	LastStep bool   `json:"last_step"`
	Text     string `json:"text"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID: s.id,
		Mode:      s.mode.String(),
		Busy:      s.busy,
		AutoSpeak: s.autoSpeak,
		Messages:  s.chat.Messages(),
	}
	if id, ok := s.opts.Speaker.Speaking(); ok {
		snap.Speaking = id
	}
	if s.active != nil {
		snap.Game = s.active.view()
	}
	return snap
}

func (g *activeGame) view() *GameView {
	v := &GameView{
		Kind:       g.kind,
		Title:      g.kind.Title(),
		Transcript: g.transcript.Messages(),
		Finished:   g.terminal(),
	}

	switch {
	case g.board != nil:
		bv := &BoardView{
			Cells:      g.board.Board(),
			Phase:      g.board.Phase().String(),
			PlayerTurn: g.board.Phase() == tictactoe.AwaitingPlayer,
			Thinking:   g.thinking,
		}
		if o, done := g.board.Outcome(); done {
			if !o.Tie() {
				bv.Winner = o.Winner.String()
			}
			bv.Line = o.Line
		}
		v.Board = bv

	case g.puzzle != nil:
		pv := &PuzzleView{
			Phase:     g.puzzle.Phase().String(),
			Hint:      g.puzzle.Hint(),
			Remaining: g.puzzle.Remaining(),
			Budget:    g.puzzle.Budget(),
			Misses:    g.puzzle.Misses(),
		}
		if word, ok := g.puzzle.Word(); ok {
			pv.Word = word
		}
		v.Puzzle = pv

	case g.probe != nil:
		v.Probe = &ProbeView{
			Loading:    g.probe.Loading(),
			FinalGuess: g.probe.FinalGuess(),
			Permitted:  g.probe.Permitted(),
		}

	case g.reader != nil:
		rv := &ReaderView{
			Started:  g.reader.Started(),
			Step:     g.reader.Step(),
			Steps:    len(mindreader.Steps),
			Revealed: g.reader.Revealed(),
			LastStep: g.reader.LastStep(),
		}
		switch {
		case rv.Revealed:
			rv.Text = mindreader.Reveal
		case rv.Started:
			rv.Text = mindreader.Steps[rv.Step]
		default:
			rv.Text = mindreader.Intro
		}
		v.Reader = rv
	}
	return v
}
