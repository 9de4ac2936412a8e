// Package stream folds a streaming model response into a single
// conversation log entry.
package stream

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/raphaelgruber/victor/internal/chatlog"
	"github.com/raphaelgruber/victor/internal/models"
)

// Intercept is offered the trimmed response before it is finalized. It
// returns true when it has taken ownership of the placeholder.
type Intercept func(ctx context.Context, text string) bool

// Options configures a reduction.
type Options struct {
	// Intercept handles in-band commands. Nil means every response is prose.
	Intercept Intercept
	// OnUpdate is called after every visible change to the placeholder.
	OnUpdate func()
}

// Result describes how a stream ended.
type Result struct {
	Text        string
	Sources     []models.Citation
	Failed      bool
	Intercepted bool
}

// Reduce drives fragments into the placeholder entry id of log.
//
// Text fragments replace the placeholder content with the whole buffer.
// Source fragments are collected and attached on finalization. The first
// error fragment turns the placeholder into an error entry and stops
// consumption. The returned error reports log failures only; stream
// failures are reflected in Result.Failed.
func Reduce(ctx context.Context, log *chatlog.Log, id string, fragments iter.Seq[models.Fragment], opts Options) (Result, error) {
	if err := log.BeginStream(id); err != nil {
		return Result{}, fmt.Errorf("begin stream: %w", err)
	}
	defer log.EndStream(id)

	notify := func() {
		if opts.OnUpdate != nil {
			opts.OnUpdate()
		}
	}

	var (
		buf     strings.Builder
		sources Citations
	)

	for frag := range fragments {
		if frag.Err != nil {
			errText := frag.Err.Error()
			if err := log.Patch(id, func(m *models.Message) {
				m.Role = models.RoleError
				m.Content = errText
				m.Sources = nil
			}); err != nil {
				return Result{}, fmt.Errorf("patch placeholder: %w", err)
			}
			notify()
			return Result{Text: errText, Failed: true}, nil
		}

		if len(frag.Sources) > 0 {
			sources.Add(frag.Sources...)
		}

		if frag.Text != "" {
			buf.WriteString(frag.Text)
			content := buf.String()
			if err := log.Patch(id, func(m *models.Message) {
				m.Content = content
			}); err != nil {
				return Result{}, fmt.Errorf("patch placeholder: %w", err)
			}
			notify()
		}
	}

	res := Result{
		Text:    strings.TrimSpace(buf.String()),
		Sources: sources.List(),
	}

	// Release the in-flight marker before handing over, the interceptor
	// may replace or remove the entry.
	log.EndStream(id)
	if opts.Intercept != nil && opts.Intercept(ctx, res.Text) {
		res.Intercepted = true
		return res, nil
	}

	if err := log.Patch(id, func(m *models.Message) {
		m.Content = res.Text
		m.Sources = res.Sources
	}); err != nil {
		return Result{}, fmt.Errorf("finalize placeholder: %w", err)
	}
	notify()
	return res, nil
}
