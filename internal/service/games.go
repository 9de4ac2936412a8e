package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/game/interrogation"
	"github.com/raphaelgruber/victor/internal/game/tictactoe"
	"github.com/raphaelgruber/victor/internal/game/wordguess"
	"github.com/raphaelgruber/victor/internal/inband"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
)

const (
	ticTacToeIntro = "Tic-tac-toe initiated. You are X, I am O. Your move, Operator."
	gameHint       = "Game in progress. Type 'exit game' to quit."
)

// StartGame enters a game directly, replacing any game in play.
func (s *Session) StartGame(ctx context.Context, kind game.Kind) error {
	k, ok := game.ParseKind(string(kind))
	if !ok {
		return fmt.Errorf("start game: unknown game %q", kind)
	}
	s.startGame(ctx, k)
	return nil
}

// startGame switches the session into kind. The chat log is left as is;
// game messages go to the game's own transcript.
func (s *Session) startGame(ctx context.Context, kind game.Kind) {
	s.mu.Lock()
	s.endGameLocked()
	g := newActiveGame(kind, s.opts.GuessAttempts)
	s.mode = Mode{Game: kind}
	s.active = g
	epoch := s.epoch
	if kind == game.TicTacToe {
		_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, ticTacToeIntro))
	}
	s.mu.Unlock()

	s.logger.Info("game started", "game", kind)
	s.notify()

	switch kind {
	case game.WordGuess:
		s.setupPuzzle(ctx, epoch)
	case game.MonerKotha:
		s.openInterrogation(ctx, epoch)
	}
}

// ExitGame leaves the active game and appends the termination notice. It
// reports false when no game was active.
func (s *Session) ExitGame() bool {
	s.mu.Lock()
	if s.mode.Idle() {
		s.mu.Unlock()
		return false
	}
	kind := s.mode.Game
	s.endGameLocked()
	s.mu.Unlock()

	s.logger.Info("game exited", "game", kind)
	s.appendNotice()
	return true
}

// endGameLocked discards the active game. Bumping the epoch makes any
// collaborator result still in flight for it stale.
func (s *Session) endGameLocked() {
	if s.teardown != nil {
		s.teardown()
		s.teardown = nil
	}
	s.epoch++
	s.mode = Mode{}
	s.active = nil
}

func (s *Session) appendNotice() {
	if err := s.chat.Append(models.NewMessage(models.RoleAssistant, TerminationText)); err != nil {
		s.logger.Error("append termination notice", "error", err)
	}
	s.notify()
}

// scheduleTeardownLocked ends the current game after the teardown delay.
func (s *Session) scheduleTeardownLocked() {
	epoch := s.epoch
	if s.teardown != nil {
		s.teardown()
	}
	s.teardown = s.opts.Scheduler.AfterFunc(s.opts.TeardownDelay, func() {
		s.mu.Lock()
		if s.epoch != epoch || s.active == nil {
			s.mu.Unlock()
			return
		}
		kind := s.active.kind
		s.teardown = nil
		s.endGameLocked()
		s.mu.Unlock()

		s.logger.Info("game finished", "game", kind)
		s.appendNotice()
	})
}

// currentLocked returns the active game if it is still the one started at epoch.
func (s *Session) currentLocked(epoch uint64) (*activeGame, bool) {
	if s.epoch != epoch || s.active == nil {
		return nil, false
	}
	return s.active, true
}

// gameLocked returns the active game if it is of kind.
func (s *Session) gameLocked(kind game.Kind) (*activeGame, uint64, error) {
	if s.active == nil || s.active.kind != kind {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoGame, kind)
	}
	return s.active, s.epoch, nil
}

// gameUtterance handles typed text while a game is active.
func (s *Session) gameUtterance(ctx context.Context, text string) error {
	s.mu.Lock()
	g := s.active
	if g == nil {
		s.mu.Unlock()
		return ErrNoGame
	}

	switch g.kind {
	case game.WordGuess:
		s.mu.Unlock()
		return s.Guess(text)

	case game.MonerKotha:
		if token, ok := g.probe.Normalize(text); ok {
			s.mu.Unlock()
			return s.Answer(ctx, token)
		}
		hint := fmt.Sprintf("Answer with one of: %s. Type '%s' to quit.", strings.Join(g.probe.Permitted(), ", "), ExitPhrase)
		_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, hint))

	default:
		_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, gameHint))
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Guess submits a word game guess.
func (s *Session) Guess(text string) error {
	s.mu.Lock()
	g, _, err := s.gameLocked(game.WordGuess)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	v, err := g.puzzle.Guess(text)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("guess: %w", err)
	}
	_ = g.transcript.Append(models.NewMessage(models.RoleUser, strings.TrimSpace(text)))
	_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, v.Text()))
	if v.Phase.Terminal() {
		s.scheduleTeardownLocked()
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// setupPuzzle asks the model for a secret word. On any failure the game
// is abandoned and the error is reported in the chat log.
func (s *Session) setupPuzzle(ctx context.Context, epoch uint64) {
	text, err := s.complete(ctx, llm.Request{Purpose: llm.PurposeWordSetup, Prompt: wordguess.SetupPrompt})
	var secret wordguess.Secret
	if err == nil {
		secret, err = wordguess.ParseSecret(text)
	}

	s.mu.Lock()
	g, ok := s.currentLocked(epoch)
	if !ok {
		s.mu.Unlock()
		return
	}
	if err == nil {
		err = g.puzzle.Begin(secret)
	}
	if err != nil {
		s.endGameLocked()
		s.mu.Unlock()
		s.logger.Warn("word game setup failed", "error", err)
		s.appendError(fmt.Sprintf("Word game setup failed. Details: %v", err))
		return
	}
	_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, g.puzzle.IntroText()))
	s.mu.Unlock()

	s.notify()
}

// PlayerMove places the player's mark and lets the model answer.
func (s *Session) PlayerMove(ctx context.Context, row, col int) error {
	s.mu.Lock()
	g, epoch, err := s.gameLocked(game.TicTacToe)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if g.thinking {
		s.mu.Unlock()
		return tictactoe.ErrNotYourTurn
	}
	if err := g.board.PlayerMove(row, col); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.finishBoardLocked(g) {
		s.mu.Unlock()
		s.notify()
		return nil
	}
	g.thinking = true
	prompt := g.board.Prompt()
	s.mu.Unlock()
	s.notify()

	s.opponentTurn(ctx, epoch, prompt)
	return nil
}

// opponentTurn requests and applies the model's move. An unusable answer
// forfeits the model's turn.
func (s *Session) opponentTurn(ctx context.Context, epoch uint64, prompt string) {
	text, err := s.complete(ctx, llm.Request{Purpose: llm.PurposeOpponentMove, Prompt: prompt})
	var move inband.GameMove
	if err == nil {
		move, err = inband.ParseMove(text)
	}

	s.mu.Lock()
	g, ok := s.currentLocked(epoch)
	if !ok {
		s.mu.Unlock()
		return
	}
	g.thinking = false
	if err == nil {
		err = g.board.OpponentMove(move.Row, move.Col)
	}
	if err != nil {
		g.board.Forfeit()
		s.logger.Warn("opponent move rejected", "error", err)
		_ = g.transcript.Append(models.NewMessage(models.RoleError,
			fmt.Sprintf("Opponent move rejected: %v. Your turn, Operator.", err)))
	} else {
		s.finishBoardLocked(g)
	}
	s.mu.Unlock()

	s.notify()
}

// finishBoardLocked posts the outcome of a finished match and schedules teardown.
func (s *Session) finishBoardLocked(g *activeGame) bool {
	o, done := g.board.Outcome()
	if !done {
		return false
	}
	_ = g.transcript.Append(models.NewMessage(models.RoleAssistant, tictactoe.OutcomeText(o)))
	s.scheduleTeardownLocked()
	return true
}

// openInterrogation asks the model for its first question. If that fails
// the game is abandoned.
func (s *Session) openInterrogation(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	g, ok := s.currentLocked(epoch)
	if !ok {
		s.mu.Unlock()
		return
	}
	if err := g.probe.Begin(); err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notify()

	text, err := s.complete(ctx, interrogationRequest(nil))

	s.mu.Lock()
	g, ok = s.currentLocked(epoch)
	if !ok {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.endGameLocked()
		s.mu.Unlock()
		s.logger.Warn("interrogation opening failed", "error", err)
		s.appendError(fmt.Sprintf("Acknowledged. A system malfunction is preventing execution. Details: %v", err))
		return
	}
	g.probe.Reply(text)
	s.mu.Unlock()

	s.notify()
}

// Answer submits an interrogation answer and waits for the next question.
func (s *Session) Answer(ctx context.Context, token string) error {
	s.mu.Lock()
	g, epoch, err := s.gameLocked(game.MonerKotha)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := g.probe.Answer(token); err != nil {
		s.mu.Unlock()
		return err
	}
	history := g.probe.History()
	s.mu.Unlock()
	s.notify()

	text, err := s.complete(ctx, interrogationRequest(history))

	s.mu.Lock()
	g, ok := s.currentLocked(epoch)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.logger.Warn("interrogation reply failed", "error", err)
		g.probe.Fail(err)
	} else {
		g.probe.Reply(text)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// interrogationRequest sends the exchange after the opening user turn.
func interrogationRequest(history []models.Message) llm.Request {
	opening := models.Message{Role: models.RoleUser, Content: interrogation.OpeningPrompt}
	return llm.Request{
		Purpose: llm.PurposeInterrogation,
		System:  interrogation.SystemPrompt,
		History: append([]models.Message{opening}, history...),
	}
}

// NextStep advances the mind-reader trick and returns the text shown.
func (s *Session) NextStep() (string, error) {
	s.mu.Lock()
	g, _, err := s.gameLocked(game.MindReader)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	text := g.reader.Next()
	s.mu.Unlock()

	s.notify()
	return text, nil
}

// RestartMindReader returns the trick to its intro.
func (s *Session) RestartMindReader() error {
	s.mu.Lock()
	g, _, err := s.gameLocked(game.MindReader)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	g.reader.Restart()
	s.mu.Unlock()

	s.notify()
	return nil
}

// complete runs a single-shot request with timing and panic recovery.
func (s *Session) complete(ctx context.Context, req llm.Request) (text string, err error) {
	start := time.Now()
	defer func() {
		s.opts.Metrics.RecordOutput(metrics.OpCompletion, time.Since(start), len(text), err)
	}()
	defer recoverInto(&err)
	return s.opts.Chat.Complete(ctx, req)
}

func (s *Session) appendError(content string) {
	if err := s.chat.Append(models.NewMessage(models.RoleError, content)); err != nil {
		s.logger.Error("append error message", "error", err)
	}
	s.notify()
}
