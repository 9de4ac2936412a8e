// Package wordguess implements the attempt-limited secret word puzzle.
package wordguess

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/victor/internal/jsonx"
)

// DefaultAttempts is the number of wrong guesses allowed.
const DefaultAttempts = 6

var (
	ErrMissingWord = errors.New("secret word is missing")
	ErrMissingHint = errors.New("hint is missing")
	ErrNotActive   = errors.New("puzzle is not accepting guesses")
	ErrEmptyGuess  = errors.New("guess is empty")
)

// Phase is the lifecycle state of a puzzle.
type Phase int

const (
	Setup Phase = iota
	Active
	Won
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "setup"
	case Active:
		return "active"
	case Won:
		return "won"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether the puzzle is over.
func (p Phase) Terminal() bool {
	return p == Won || p == Exhausted
}

// Secret is the word and hint supplied by the model.
type Secret struct {
	Word string `json:"word"`
	Hint string `json:"hint"`
}

// SetupPrompt asks the model for a secret.
const SetupPrompt = `We are playing a word guessing game. Think of a single common English word for the user to guess and a short hint that does not contain the word.
Respond ONLY with a JSON object in this format: {"word": "...", "hint": "..."}`

// ParseSecret extracts the first JSON object from a model reply and
// requires a non-empty word and hint.
func ParseSecret(response string) (Secret, error) {
	var s Secret
	if err := jsonx.DecodeObject(response, &s); err != nil {
		return Secret{}, fmt.Errorf("parse secret: %w", err)
	}
	s.Word = strings.TrimSpace(s.Word)
	s.Hint = strings.TrimSpace(s.Hint)
	if s.Word == "" {
		return Secret{}, ErrMissingWord
	}
	if s.Hint == "" {
		return Secret{}, ErrMissingHint
	}
	return s, nil
}

// Puzzle is one round of the word game.
type Puzzle struct {
	secret    Secret
	phase     Phase
	budget    int
	remaining int
	misses    []string
}

// New creates a puzzle waiting for its secret.
func New(attempts int) *Puzzle {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Puzzle{budget: attempts, remaining: attempts}
}

// Begin moves the puzzle from setup to active.
func (p *Puzzle) Begin(s Secret) error {
	if p.phase != Setup {
		return fmt.Errorf("begin puzzle: already %s", p.phase)
	}
	if strings.TrimSpace(s.Word) == "" {
		return ErrMissingWord
	}
	if strings.TrimSpace(s.Hint) == "" {
		return ErrMissingHint
	}
	p.secret = s
	p.phase = Active
	return nil
}

// Verdict is the result of one guess.
type Verdict struct {
	Correct   bool
	Remaining int
	Phase     Phase
	Word      string // revealed once the puzzle is over
}

// Guess evaluates a guess case-insensitively against the secret word.
func (p *Puzzle) Guess(text string) (Verdict, error) {
	if p.phase != Active {
		return Verdict{}, ErrNotActive
	}
	guess := strings.TrimSpace(text)
	if guess == "" {
		return Verdict{}, ErrEmptyGuess
	}

	if strings.EqualFold(guess, p.secret.Word) {
		p.phase = Won
		return p.verdict(true), nil
	}

	p.remaining--
	if p.remaining <= 0 {
		p.remaining = 0
		p.phase = Exhausted
	} else {
		p.misses = append(p.misses, guess)
	}
	return p.verdict(false), nil
}

func (p *Puzzle) verdict(correct bool) Verdict {
	v := Verdict{Correct: correct, Remaining: p.remaining, Phase: p.phase}
	if p.phase.Terminal() {
		v.Word = p.secret.Word
	}
	return v
}

// Phase returns the current lifecycle state.
func (p *Puzzle) Phase() Phase { return p.phase }

// Hint returns the hint once the puzzle is active.
func (p *Puzzle) Hint() string { return p.secret.Hint }

// Remaining returns the attempts left.
func (p *Puzzle) Remaining() int { return p.remaining }

// Budget returns the starting number of attempts.
func (p *Puzzle) Budget() int { return p.budget }

// Misses returns the incorrect guesses in order.
func (p *Puzzle) Misses() []string { return slices.Clone(p.misses) }

// Word returns the secret once the puzzle is over.
func (p *Puzzle) Word() (string, bool) {
	if !p.phase.Terminal() {
		return "", false
	}
	return p.secret.Word, true
}

// IntroText announces an active puzzle.
func (p *Puzzle) IntroText() string {
	return fmt.Sprintf("Word game initiated. Hint: %s. You have %d attempts.", p.secret.Hint, p.budget)
}

// Text describes a verdict to the player.
func (v Verdict) Text() string {
	switch {
	case v.Correct:
		return fmt.Sprintf("Correct. The word was %q. Well played, Operator.", v.Word)
	case v.Phase == Exhausted:
		return fmt.Sprintf("Attempts exhausted. The word was %q.", v.Word)
	case v.Remaining == 1:
		return "Incorrect. 1 attempt remaining."
	default:
		return fmt.Sprintf("Incorrect. %d attempts remaining.", v.Remaining)
	}
}
