package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/raphaelgruber/victor/internal/models"
)

// Mock is an offline backend. It answers every purpose deterministically so
// the whole session can run without network access.
type Mock struct {
	// Questions is how many interrogation questions are asked before a guess.
	Questions int
}

// NewMock returns a mock backend.
func NewMock() *Mock {
	return &Mock{Questions: 3}
}

// Model returns the mock model name.
func (m *Mock) Model() string { return "mock" }

var mockGames = map[string]string{
	"tic-tac-toe": "tic-tac-toe",
	"tic tac toe": "tic-tac-toe",
	"word game":   "word-guess",
	"word guess":  "word-guess",
	"moner kotha": "moner-kotha",
	"mind reader": "mind-reader",
}

// Stream echoes the last user turn word by word. Asking to play a known
// game or to run code yields the matching in-band command instead.
func (m *Mock) Stream(ctx context.Context, req Request) iter.Seq[models.Fragment] {
	return func(yield func(models.Fragment) bool) {
		text, err := m.Complete(ctx, req)
		if err != nil {
			yield(models.Fragment{Err: streamError(err)})
			return
		}
		for i, word := range strings.SplitAfter(text, " ") {
			if err := ctx.Err(); err != nil {
				yield(models.Fragment{Err: streamError(err)})
				return
			}
			if !yield(models.Fragment{Text: word}) {
				return
			}
			if i == 0 && req.Purpose == PurposeChat && strings.Contains(strings.ToLower(text), "search") {
				if !yield(models.Fragment{Sources: []models.Citation{{URI: "https://example.com", Title: "Example"}}}) {
					return
				}
			}
		}
	}
}

// Complete answers according to the request purpose.
func (m *Mock) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch req.Purpose {
	case PurposeOpponentMove:
		return mockMove(req.Prompt)
	case PurposeWordSetup:
		return `{"word": "gopher", "hint": "A burrowing animal and a mascot"}`, nil
	case PurposeInterrogation:
		asked := 0
		for _, t := range req.History {
			if t.Role == models.RoleAssistant {
				asked++
			}
		}
		if asked >= m.Questions {
			return "My guess: a cat?", nil
		}
		return fmt.Sprintf("Question %d: Is it a living thing?", asked+1), nil
	}

	last := lastUserTurn(req)
	lower := strings.ToLower(last)
	for phrase, game := range mockGames {
		if strings.Contains(lower, phrase) {
			return fmt.Sprintf(`{"action": "start_game", "game": %q}`, game), nil
		}
	}
	if code, ok := strings.CutPrefix(last, "run "); ok {
		return fmt.Sprintf(`{"action": "execute_code", "language": "go", "code": %q}`, code), nil
	}
	return "Acknowledged, Operator. You said: " + last, nil
}

func lastUserTurn(req Request) string {
	all := turns(req)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Role == models.RoleUser {
			return all[i].Content
		}
	}
	return ""
}

// mockMove plays the first empty cell of the board embedded in prompt.
func mockMove(prompt string) (string, error) {
	_, state, ok := strings.Cut(prompt, "Board: ")
	if !ok {
		return "", fmt.Errorf("mock: no board in prompt")
	}
	state, _, _ = strings.Cut(state, "\n")

	var rows [][]*string
	if err := json.Unmarshal([]byte(state), &rows); err != nil {
		return "", fmt.Errorf("mock: decode board: %w", err)
	}
	for r, row := range rows {
		for c, cell := range row {
			if cell == nil {
				return fmt.Sprintf(`{"action": "game_move", "game": "tic-tac-toe", "move": [%d, %d]}`, r, c), nil
			}
		}
	}
	return "", fmt.Errorf("mock: board is full")
}

// mockPixel is a 1x1 transparent PNG.
var mockPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// MockImages returns a fixed one pixel PNG for every prompt.
type MockImages struct{}

// GenerateImage returns the placeholder image as a data URI.
func (MockImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("mock: empty image prompt")
	}
	return DataURI("image/png", mockPixel), nil
}
