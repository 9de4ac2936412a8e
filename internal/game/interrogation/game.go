// Package interrogation implements Moner Kotha, a yes/no game where the
// model questions the player to find a hidden object.
package interrogation

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/victor/internal/chatlog"
	"github.com/raphaelgruber/victor/internal/models"
)

// Answer tokens the player may give.
const (
	Yes         = "Yes"
	No          = "No"
	DontKnow    = "Don't know"
	Probably    = "Probably"
	ProbablyNot = "Probably not"
)

// GuessMarker prefixes a question that is the model's final guess.
const GuessMarker = "My guess:"

var (
	answers      = []string{Yes, No, DontKnow, Probably, ProbablyNot}
	guessAnswers = []string{Yes, No}
)

var (
	ErrBusy             = errors.New("waiting for the next question")
	ErrAnswerNotAllowed = errors.New("answer not allowed")
	ErrNoQuestion       = errors.New("no question to answer yet")
)

// SystemPrompt sets up the model as the questioner.
const SystemPrompt = `We are playing Moner Kotha, a guessing game. The user is thinking of a person, animal, object or place and you must find out what it is.
Ask exactly one short yes/no question per turn. The user answers with one of: Yes, No, Don't know, Probably, Probably not.
When you are confident, make a final guess that starts with "My guess:" followed by your guess phrased as a yes/no question.
If a guess is answered with No, keep asking questions. If it is answered with Yes, celebrate briefly and offer to play again.`

// OpeningPrompt starts the game.
const OpeningPrompt = "I am thinking of something. Ask your first question."

// Game is the exchange log of one interrogation.
type Game struct {
	log     *chatlog.Log
	loading bool
}

// New creates an empty game.
func New() *Game {
	return &Game{log: chatlog.New()}
}

// Begin marks the opening request as in flight.
func (g *Game) Begin() error {
	if g.loading {
		return ErrBusy
	}
	g.loading = true
	return nil
}

// Permitted returns the answers accepted for the latest question.
func (g *Game) Permitted() []string {
	if g.FinalGuess() {
		return slices.Clone(guessAnswers)
	}
	return slices.Clone(answers)
}

// FinalGuess reports whether the latest model message is a final guess.
func (g *Game) FinalGuess() bool {
	last, ok := g.log.Last()
	if !ok || last.Role != models.RoleAssistant {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(last.Content), GuessMarker)
}

// Normalize maps typed text onto a permitted token.
func (g *Game) Normalize(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, a := range g.Permitted() {
		if strings.EqualFold(a, text) {
			return a, true
		}
	}
	return "", false
}

// Answer records the player's answer and marks the round in flight.
func (g *Game) Answer(text string) (models.Message, error) {
	if g.loading {
		return models.Message{}, ErrBusy
	}
	if _, ok := g.log.Last(); !ok {
		return models.Message{}, ErrNoQuestion
	}
	token, ok := g.Normalize(text)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %q (choose from %s)", ErrAnswerNotAllowed, text, strings.Join(g.Permitted(), ", "))
	}

	msg := models.NewMessage(models.RoleUser, token)
	if err := g.log.Append(msg); err != nil {
		return models.Message{}, fmt.Errorf("append answer: %w", err)
	}
	g.loading = true
	return msg, nil
}

// Reply records the model's next question or guess.
func (g *Game) Reply(text string) models.Message {
	msg := models.NewMessage(models.RoleAssistant, strings.TrimSpace(text))
	_ = g.log.Append(msg)
	g.loading = false
	return msg
}

// Fail records a collaborator failure and returns control to the player.
func (g *Game) Fail(err error) models.Message {
	msg := models.NewMessage(models.RoleError, fmt.Sprintf("Acknowledged. A system malfunction is preventing execution. Details: %v", err))
	_ = g.log.Append(msg)
	g.loading = false
	return msg
}

// Loading reports whether a model reply is outstanding.
func (g *Game) Loading() bool { return g.loading }

// History returns the exchanges in order, without error entries.
func (g *Game) History() []models.Message {
	return slices.DeleteFunc(g.log.Messages(), func(m models.Message) bool {
		return m.Role == models.RoleError
	})
}

// Log exposes the exchange log for display.
func (g *Game) Log() *chatlog.Log { return g.log }
