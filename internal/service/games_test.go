package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/game/interrogation"
	"github.com/raphaelgruber/victor/internal/game/mindreader"
	"github.com/raphaelgruber/victor/internal/game/tictactoe"
	"github.com/raphaelgruber/victor/internal/game/wordguess"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startViaChat enters a game the way the model does it: a start_game
// directive as the whole streamed response.
func startViaChat(t *testing.T, h *harness, kind game.Kind) {
	t.Helper()
	h.chat.stream = reply(`{"action": "start_game", "game": "` + string(kind) + `"}`)
	require.NoError(t, h.session.Handle(context.Background(), "let's play"))
	h.chat.stream = nil
}

func TestStartGameRemovesPlaceholder(t *testing.T) {
	h := newHarness(t)
	startViaChat(t, h, game.TicTacToe)

	assert.Equal(t, Mode{Game: game.TicTacToe}, h.session.Mode())
	assert.Equal(t, []string{WelcomeText, "let's play"}, contents(h.session.Messages()))

	snap := h.session.Snapshot()
	require.NotNil(t, snap.Game)
	require.NotNil(t, snap.Game.Board)
	assert.True(t, snap.Game.Board.PlayerTurn)
	assert.Equal(t, "in-game(tic-tac-toe)", snap.Mode)
	assert.Empty(t, h.speaker.played(), "a consumed directive is never spoken")
}

func TestExitGameRestoresChat(t *testing.T) {
	for _, kind := range game.Kinds {
		t.Run(string(kind), func(t *testing.T) {
			h := newHarness(t)
			h.chat.complete = func(_ context.Context, req llm.Request) (string, error) {
				if req.Purpose == llm.PurposeWordSetup {
					return `{"word":"gopher","hint":"mascot"}`, nil
				}
				return "Is it alive?", nil
			}
			before := h.session.Messages()
			require.NoError(t, h.session.StartGame(context.Background(), kind))
			require.False(t, h.session.Mode().Idle())

			require.NoError(t, h.session.Handle(context.Background(), "  EXIT Game "))

			assert.True(t, h.session.Mode().Idle())
			assert.Nil(t, h.session.Snapshot().Game)
			after := h.session.Messages()
			require.Len(t, after, len(before)+1)
			assert.Equal(t, before, after[:len(before)])
			assert.Equal(t, TerminationText, after[len(before)].Content)
		})
	}
}

func TestExitPhraseWithoutGameIsChat(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Handle(context.Background(), "exit game"))
	assert.Len(t, h.chat.calls(llm.PurposeChat), 1)
	assert.False(t, h.session.ExitGame())
}

func TestStartGameUnknown(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.session.StartGame(context.Background(), "chess"))
	assert.True(t, h.session.Mode().Idle())
}

func TestTicTacToeOpponentMove(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(_ context.Context, req llm.Request) (string, error) {
		require.Equal(t, llm.PurposeOpponentMove, req.Purpose)
		return `Sure! {"action": "game_move", "game": "tic-tac-toe", "move": [1, 1]}`, nil
	}
	startViaChat(t, h, game.TicTacToe)

	require.NoError(t, h.session.PlayerMove(context.Background(), 0, 0))

	board := h.session.Snapshot().Game.Board
	assert.Equal(t, tictactoe.X, board.Cells.At(0, 0))
	assert.Equal(t, tictactoe.O, board.Cells.At(1, 1))
	assert.True(t, board.PlayerTurn)
	assert.False(t, board.Thinking)

	reqs := h.chat.calls(llm.PurposeOpponentMove)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Prompt, `Board: [["X",null,null],[null,null,null],[null,null,null]]`)
}

func TestTicTacToeIllegalOpponentMoveForfeits(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"occupied", `{"action":"game_move","move":[0,0]}`, nil},
		{"out of range", `{"action":"game_move","move":[3,0]}`, nil},
		{"prose", "I would rather not play.", nil},
		{"collaborator error", "", errors.New("timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.chat.complete = func(context.Context, llm.Request) (string, error) { return tt.reply, tt.err }
			startViaChat(t, h, game.TicTacToe)

			require.NoError(t, h.session.PlayerMove(context.Background(), 0, 0))

			view := h.session.Snapshot().Game
			assert.True(t, view.Board.PlayerTurn, "turn returns to the player")
			want := tictactoe.Board{}
			want[0] = tictactoe.X
			assert.Equal(t, want, view.Board.Cells)

			last := view.Transcript[len(view.Transcript)-1]
			assert.Equal(t, models.RoleError, last.Role)
			assert.True(t, strings.HasPrefix(last.Content, "Opponent move rejected"))
			assert.Equal(t, Mode{Game: game.TicTacToe}, h.session.Mode())
		})
	}
}

func TestTicTacToeRejectsPlayerMoves(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		return `{"action":"game_move","move":[2,2]}`, nil
	}

	assert.ErrorIs(t, h.session.PlayerMove(context.Background(), 0, 0), ErrNoGame)

	startViaChat(t, h, game.TicTacToe)
	require.NoError(t, h.session.PlayerMove(context.Background(), 0, 0))
	assert.ErrorIs(t, h.session.PlayerMove(context.Background(), 0, 0), tictactoe.ErrOccupied)
	assert.ErrorIs(t, h.session.PlayerMove(context.Background(), 5, 0), tictactoe.ErrOutOfRange)
}

func TestTicTacToePlayerWinTearsDown(t *testing.T) {
	h := newHarness(t)
	moves := [][2]int{{1, 0}, {1, 1}}
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		m := moves[0]
		moves = moves[1:]
		return fmt.Sprintf(`{"action":"game_move","move":[%d,%d]}`, m[0], m[1]), nil
	}
	startViaChat(t, h, game.TicTacToe)
	ctx := context.Background()

	require.NoError(t, h.session.PlayerMove(ctx, 0, 0))
	require.NoError(t, h.session.PlayerMove(ctx, 0, 1))
	require.NoError(t, h.session.PlayerMove(ctx, 0, 2))

	view := h.session.Snapshot().Game
	assert.True(t, view.Finished)
	assert.Equal(t, "X", view.Board.Winner)
	assert.Equal(t, []int{0, 1, 2}, view.Board.Line)
	assert.Equal(t, "You win, Operator. An unexpected outcome.", view.Transcript[len(view.Transcript)-1].Content)
	assert.ErrorIs(t, h.session.PlayerMove(ctx, 2, 2), tictactoe.ErrGameOver)

	require.Equal(t, 1, h.scheduler.count())
	assert.Equal(t, 3*time.Second, h.scheduler.pending[0].delay)
	h.scheduler.fire()

	assert.True(t, h.session.Mode().Idle())
	msgs := h.session.Messages()
	assert.Equal(t, TerminationText, msgs[len(msgs)-1].Content)
}

func TestStaleOpponentMoveIsDiscarded(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	asked := make(chan struct{})
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		close(asked)
		<-release
		return `{"action":"game_move","move":[1,1]}`, nil
	}
	require.NoError(t, h.session.StartGame(context.Background(), game.TicTacToe))

	done := make(chan error, 1)
	go func() { done <- h.session.PlayerMove(context.Background(), 0, 0) }()
	<-asked

	assert.True(t, h.session.Snapshot().Game.Board.Thinking)
	require.True(t, h.session.ExitGame())

	require.NoError(t, h.session.StartGame(context.Background(), game.TicTacToe))

	close(release)
	require.NoError(t, <-done)

	board := h.session.Snapshot().Game.Board
	assert.Equal(t, tictactoe.Board{}, board.Cells, "the new game never sees the old move")
	assert.True(t, board.PlayerTurn)
}

func TestWordGuessExhaustion(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(_ context.Context, req llm.Request) (string, error) {
		require.Equal(t, llm.PurposeWordSetup, req.Purpose)
		return "Here you go: {\"word\": \"Gopher\", \"hint\": \"A burrowing mascot\"} enjoy", nil
	}
	startViaChat(t, h, game.WordGuess)

	view := h.session.Snapshot().Game
	require.NotNil(t, view.Puzzle)
	assert.Equal(t, "active", view.Puzzle.Phase)
	assert.Equal(t, 6, view.Puzzle.Remaining)
	assert.Equal(t, "Word game initiated. Hint: A burrowing mascot. You have 6 attempts.", view.Transcript[0].Content)

	ctx := context.Background()
	for _, g := range []string{"mole", "rabbit", "badger", "otter", "ferret"} {
		require.NoError(t, h.session.Handle(ctx, g))
	}
	view = h.session.Snapshot().Game
	assert.Equal(t, 1, view.Puzzle.Remaining)
	assert.False(t, view.Finished)
	assert.Equal(t, []string{"mole", "rabbit", "badger", "otter", "ferret"}, view.Puzzle.Misses)
	assert.Empty(t, view.Puzzle.Word)
	assert.Equal(t, 0, h.scheduler.count())

	require.NoError(t, h.session.Handle(ctx, "vole"))
	view = h.session.Snapshot().Game
	assert.Equal(t, "exhausted", view.Puzzle.Phase)
	assert.True(t, view.Finished)
	assert.Equal(t, "Gopher", view.Puzzle.Word)
	assert.Contains(t, view.Transcript[len(view.Transcript)-1].Content, "Gopher")
	assert.ErrorIs(t, h.session.Guess("gopher"), wordguess.ErrNotActive)

	assert.Equal(t, []string{WelcomeText, "let's play"}, contents(h.session.Messages()),
		"guesses never touch the chat log")

	h.scheduler.fire()
	assert.True(t, h.session.Mode().Idle())
}

func TestWordGuessCorrect(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		return `{"word":"gopher","hint":"mascot"}`, nil
	}
	startViaChat(t, h, game.WordGuess)

	require.NoError(t, h.session.Handle(context.Background(), "  GOPHER "))

	view := h.session.Snapshot().Game
	assert.Equal(t, "won", view.Puzzle.Phase)
	assert.Equal(t, 1, h.scheduler.count())
}

func TestWordGuessSetupFailure(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"missing hint", `{"word":"gopher"}`, nil},
		{"prose", "I cannot think of a word.", nil},
		{"collaborator error", "", errors.New("unavailable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.chat.complete = func(context.Context, llm.Request) (string, error) { return tt.reply, tt.err }

			startViaChat(t, h, game.WordGuess)

			assert.True(t, h.session.Mode().Idle())
			msgs := h.session.Messages()
			last := msgs[len(msgs)-1]
			assert.Equal(t, models.RoleError, last.Role)
			assert.True(t, strings.HasPrefix(last.Content, "Word game setup failed."))
		})
	}
}

func TestInterrogationRounds(t *testing.T) {
	h := newHarness(t)
	replies := []string{"Is it alive?", "Does it fly?", "My guess: Is it a parrot?"}
	h.chat.complete = func(_ context.Context, req llm.Request) (string, error) {
		require.Equal(t, llm.PurposeInterrogation, req.Purpose)
		require.Equal(t, interrogation.SystemPrompt, req.System)
		r := replies[0]
		replies = replies[1:]
		return r, nil
	}
	startViaChat(t, h, game.MonerKotha)
	ctx := context.Background()

	view := h.session.Snapshot().Game
	assert.Equal(t, []string{"Is it alive?"}, contents(view.Transcript))
	assert.Len(t, view.Probe.Permitted, 5)

	require.NoError(t, h.session.Answer(ctx, interrogation.Yes))
	require.NoError(t, h.session.Handle(ctx, "probably"), "typed tokens are forwarded")

	view = h.session.Snapshot().Game
	assert.Equal(t, []string{"Is it alive?", "Yes", "Does it fly?", "Probably", "My guess: Is it a parrot?"}, contents(view.Transcript))
	assert.True(t, view.Probe.FinalGuess)
	assert.Equal(t, []string{interrogation.Yes, interrogation.No}, view.Probe.Permitted)
	assert.ErrorIs(t, h.session.Answer(ctx, interrogation.DontKnow), interrogation.ErrAnswerNotAllowed)

	reqs := h.chat.calls(llm.PurposeInterrogation)
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{interrogation.OpeningPrompt, "Is it alive?", "Yes", "Does it fly?", "Probably"}, contents(reqs[2].History))

	require.NoError(t, h.session.Handle(ctx, "what?"))
	view = h.session.Snapshot().Game
	assert.Contains(t, view.Transcript[len(view.Transcript)-1].Content, "Answer with one of: Yes, No.")
}

func TestInterrogationFailureKeepsGame(t *testing.T) {
	h := newHarness(t)
	calls := 0
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		calls++
		if calls == 1 {
			return "Is it big?", nil
		}
		return "", errors.New("overloaded")
	}
	startViaChat(t, h, game.MonerKotha)

	require.NoError(t, h.session.Answer(context.Background(), interrogation.No))

	view := h.session.Snapshot().Game
	last := view.Transcript[len(view.Transcript)-1]
	assert.Equal(t, models.RoleError, last.Role)
	assert.False(t, view.Probe.Loading)
	assert.Equal(t, Mode{Game: game.MonerKotha}, h.session.Mode())
}

func TestInterrogationOpeningFailure(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(context.Context, llm.Request) (string, error) { return "", errors.New("down") }

	startViaChat(t, h, game.MonerKotha)

	assert.True(t, h.session.Mode().Idle())
	msgs := h.session.Messages()
	assert.Equal(t, models.RoleError, msgs[len(msgs)-1].Role)
}

func TestMindReader(t *testing.T) {
	h := newHarness(t)
	startViaChat(t, h, game.MindReader)

	view := h.session.Snapshot().Game.Reader
	assert.Equal(t, mindreader.Intro, view.Text)

	for i, step := range mindreader.Steps {
		text, err := h.session.NextStep()
		require.NoError(t, err)
		assert.Equal(t, step, text, "step %d", i)
	}
	assert.True(t, h.session.Snapshot().Game.Reader.LastStep)

	text, err := h.session.NextStep()
	require.NoError(t, err)
	assert.Equal(t, mindreader.Reveal, text)
	assert.True(t, h.session.Snapshot().Game.Reader.Revealed)

	require.NoError(t, h.session.RestartMindReader())
	assert.Equal(t, mindreader.Intro, h.session.Snapshot().Game.Reader.Text)

	require.NoError(t, h.session.Handle(context.Background(), "what number?"))
	view2 := h.session.Snapshot().Game
	assert.Equal(t, gameHint, view2.Transcript[len(view2.Transcript)-1].Content)
	assert.Empty(t, h.chat.calls(llm.PurposeChat)[1:], "free text in a game never reaches chat")

	require.True(t, h.session.ExitGame())
	_, err = h.session.NextStep()
	assert.ErrorIs(t, err, ErrNoGame)
}

func TestReplacingGameCancelsTeardown(t *testing.T) {
	h := newHarness(t)
	h.chat.complete = func(context.Context, llm.Request) (string, error) {
		return `{"word":"gopher","hint":"mascot"}`, nil
	}
	require.NoError(t, h.session.StartGame(context.Background(), game.WordGuess))
	require.NoError(t, h.session.Guess("gopher"))
	require.Equal(t, 1, h.scheduler.count())

	require.NoError(t, h.session.StartGame(context.Background(), game.MindReader))
	assert.Equal(t, 0, h.scheduler.count())
	h.scheduler.fire()
	assert.Equal(t, Mode{Game: game.MindReader}, h.session.Mode())
}
