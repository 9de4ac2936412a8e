// Package executor runs code snippets requested by the model.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raphaelgruber/victor/internal/config"
)

// ErrUnsupportedLanguage is returned when a backend cannot run the requested language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrDisabled is returned by the no-op executor.
var ErrDisabled = errors.New("code execution is disabled")

// Request is a snippet to run.
type Request struct {
	Language string
	Code     string
}

// Result is the outcome of a run. Error holds a failure reported by the
// script itself; transport failures are returned as errors instead.
type Result struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Text is the result as shown to the user.
func (r Result) Text() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return r.Output
}

// Executor runs code.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Format renders a finished run for the conversation log.
func Format(language string, r Result) string {
	return fmt.Sprintf("%s script executed. Output:\n\n---\n%s\n---", languageTitle(language), r.Text())
}

func languageTitle(lang string) string {
	if lang == "" {
		return "Python"
	}
	r, size := utf8.DecodeRuneInString(lang)
	return string(unicode.ToUpper(r)) + strings.ToLower(lang[size:])
}

// Disabled refuses every request.
type Disabled struct{}

// Execute always fails with ErrDisabled.
func (Disabled) Execute(context.Context, Request) (Result, error) {
	return Result{}, ErrDisabled
}

// New builds the executor selected by cfg.Executor.
func New(cfg config.Config) (Executor, error) {
	switch cfg.Executor {
	case config.ExecutorHTTP:
		return NewHTTP(cfg.ExecuteURL, cfg.ExecuteTimeout), nil
	case config.ExecutorYaegi:
		return NewYaegi(cfg.ExecuteTimeout), nil
	case config.ExecutorNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported executor: %s", cfg.Executor)
	}
}
