// Package llm provides the generative collaborators used by a session:
// streaming chat, single-shot completion and image generation.
package llm

import (
	"context"
	"iter"

	"github.com/raphaelgruber/victor/internal/models"
)

// Purpose tags a request with the part of the session that issued it.
type Purpose string

const (
	PurposeChat          Purpose = "chat"
	PurposeOpponentMove  Purpose = "opponent_move"
	PurposeWordSetup     Purpose = "word_setup"
	PurposeInterrogation Purpose = "interrogation"
)

// Request is a generative call. History holds prior turns; Prompt, when
// set, is sent as the final user turn.
type Request struct {
	Purpose Purpose
	System  string
	History []models.Message
	Prompt  string
}

// Streamer produces a response incrementally. Failures arrive as a final
// fragment with Err set rather than as a separate error value.
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq[models.Fragment]
}

// Completer produces a whole response in one call.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ImageGenerator turns a prompt into an image reference, typically a data URI.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Chat is a backend that can both stream and complete.
type Chat interface {
	Streamer
	Completer
	Model() string
}

// turns returns the history entries worth sending to a model: user and
// assistant turns with content.
func turns(req Request) []models.Message {
	out := make([]models.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == models.RoleError || m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	if req.Prompt != "" {
		out = append(out, models.Message{Role: models.RoleUser, Content: req.Prompt})
	}
	return out
}
