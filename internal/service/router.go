package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/executor"
	"github.com/raphaelgruber/victor/internal/inband"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/stream"
)

var imagePattern = regexp.MustCompile(`(?i)^(?:show me|generate|create|draw) (?:(?:an? image|a picture) of )?(.+)`)

// ErrNoImageGenerator is shown when an image is requested but none is configured.
var ErrNoImageGenerator = errors.New("image generation is not configured")

var errStreamFailed = errors.New("stream ended with an error fragment")

// Handle routes one utterance. In order: the exit phrase leaves an active
// game; an active game consumes the text; otherwise the utterance is
// logged and answered by a local command, the image flow or the chat
// model. Collaborator failures become error entries in the log and are
// not returned; the returned error only reports a rejected utterance.
func (s *Session) Handle(ctx context.Context, utterance string) error {
	s.opts.Speaker.Cancel()

	text := strings.TrimSpace(utterance)
	if text == "" {
		return ErrEmptyUtterance
	}

	if strings.EqualFold(text, ExitPhrase) && s.ExitGame() {
		return nil
	}

	s.mu.Lock()
	mode := s.mode
	if mode.Idle() {
		if s.busy {
			s.mu.Unlock()
			return ErrBusy
		}
		s.busy = true
	}
	s.mu.Unlock()

	if !mode.Idle() {
		return s.gameUtterance(ctx, text)
	}

	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.opts.Metrics.RecordTiming(metrics.OpTurn, time.Since(start), nil)
		s.notify()
	}()

	history := s.chat.Messages()
	user := models.Message{ID: models.NewID("user"), Role: models.RoleUser, Content: utterance}
	if err := s.chat.Append(user); err != nil {
		return fmt.Errorf("append utterance: %w", err)
	}
	s.notify()

	if res, ok := s.opts.Commands.Match(text); ok {
		s.answerCommand(res)
		return nil
	}

	if m := imagePattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		s.generateImage(ctx, strings.TrimSpace(m[1]))
		return nil
	}

	s.chatTurn(ctx, history, utterance)
	return nil
}

func (s *Session) answerCommand(res commands.Result) {
	s.logger.Debug("local command matched", "command", res.Name)
	msg := models.Message{ID: models.NewID("victor"), Role: models.RoleAssistant, Content: res.Response}
	if err := s.chat.Append(msg); err != nil {
		s.logger.Error("append command response", "error", err)
		return
	}
	s.notify()
	s.speak(msg.Content, msg.ID)
	if s.opts.OnCommand != nil {
		s.opts.OnCommand(res)
	}
}

func (s *Session) generateImage(ctx context.Context, prompt string) {
	id := models.NewID("victor-img")
	placeholder := models.Message{
		ID:      id,
		Role:    models.RoleAssistant,
		Content: fmt.Sprintf("Acknowledged. Generating image of: %s...", prompt),
	}
	if err := s.chat.Append(placeholder); err != nil {
		s.logger.Error("append image placeholder", "error", err)
		return
	}
	s.notify()

	start := time.Now()
	url, err := s.renderImage(ctx, prompt)
	s.opts.Metrics.RecordTiming(metrics.OpImageGenerate, time.Since(start), err)

	if err != nil {
		s.logger.Warn("image generation failed", "message_id", id, "error", err)
		s.patch(id, func(m *models.Message) {
			m.Role = models.RoleError
			m.Content = fmt.Sprintf("Image generation failed. Details: %v", err)
		})
		return
	}

	s.patch(id, func(m *models.Message) {
		m.Content = confirmText
		m.ImageURL = url
	})
	s.speak(confirmText, id)
}

func (s *Session) renderImage(ctx context.Context, prompt string) (url string, err error) {
	if s.opts.Images == nil {
		return "", ErrNoImageGenerator
	}
	defer recoverInto(&err)
	return s.opts.Images.GenerateImage(ctx, prompt)
}

// chatTurn streams a model response into a new placeholder.
func (s *Session) chatTurn(ctx context.Context, history []models.Message, prompt string) {
	id := models.NewID("model")
	if err := s.chat.Append(models.Message{ID: id, Role: models.RoleAssistant}); err != nil {
		s.logger.Error("append placeholder", "error", err)
		return
	}
	s.notify()

	start := time.Now()
	res, err := s.reduce(ctx, id, llm.Request{
		Purpose: llm.PurposeChat,
		System:  s.system,
		History: history,
		Prompt:  prompt,
	})
	failure := err
	if failure == nil && res.Failed {
		failure = errStreamFailed
	}
	s.opts.Metrics.RecordOutput(metrics.OpChatStream, time.Since(start), len(res.Text), failure)

	switch {
	case err != nil:
		s.logger.Error("chat turn failed", "message_id", id, "error", err)
		s.critical(id, err)
	case res.Failed:
		s.logger.Warn("chat stream ended with error", "message_id", id)
	case res.Intercepted:
	default:
		s.logger.Debug("chat turn complete", "message_id", id, "chars", len(res.Text), "sources", len(res.Sources))
		s.speak(res.Text, id)
	}
}

func (s *Session) reduce(ctx context.Context, id string, req llm.Request) (res stream.Result, err error) {
	defer recoverInto(&err)
	return stream.Reduce(ctx, s.chat, id, s.opts.Chat.Stream(ctx, req), stream.Options{
		Intercept: s.intercept(id),
		OnUpdate:  s.notify,
	})
}

// intercept handles in-band commands at the end of a chat stream.
func (s *Session) intercept(id string) stream.Intercept {
	return func(ctx context.Context, text string) bool {
		switch cmd := inband.Parse(text).(type) {
		case inband.ExecuteCode:
			s.executeCode(ctx, id, cmd)
			return true
		case inband.StartGame:
			s.chat.Remove(id)
			s.notify()
			s.startGame(ctx, cmd.Game)
			return true
		default:
			return false
		}
	}
}

func (s *Session) executeCode(ctx context.Context, id string, cmd inband.ExecuteCode) {
	s.logger.Info("executing code", "message_id", id, "language", cmd.Language, "bytes", len(cmd.Code))

	start := time.Now()
	res, err := s.opts.Executor.Execute(ctx, executor.Request{Language: cmd.Language, Code: cmd.Code})
	s.opts.Metrics.RecordTiming(metrics.OpCodeExecute, time.Since(start), err)
	if err != nil {
		s.logger.Warn("code execution failed", "message_id", id, "error", err)
		res = executor.Result{Error: err.Error()}
	}

	s.patch(id, func(m *models.Message) {
		m.Content = executor.Format(cmd.Language, res)
		m.Sources = nil
	})
	s.speak(confirmText, id)
}

// critical turns a placeholder into an error entry, or appends one if the
// placeholder is gone.
func (s *Session) critical(id string, err error) {
	content := fmt.Sprintf("Critical system failure: %v", err)
	perr := s.chat.Patch(id, func(m *models.Message) {
		m.Role = models.RoleError
		m.Content = content
		m.Sources = nil
	})
	if perr != nil {
		_ = s.chat.Append(models.Message{ID: models.NewID("error"), Role: models.RoleError, Content: content})
	}
	s.notify()
}

func (s *Session) patch(id string, fn func(*models.Message)) {
	if err := s.chat.Patch(id, fn); err != nil {
		s.logger.Error("patch message", "message_id", id, "error", err)
	}
	s.notify()
}

// recoverInto converts a panic in a collaborator into an error.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
