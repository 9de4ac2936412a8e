// Package speech tracks spoken playback of messages. At most one message
// is spoken at a time; starting a new one cancels the previous.
package speech

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Speaker plays messages aloud.
type Speaker interface {
	Play(text, id string)
	Cancel()
	Speaking() (string, bool)
}

// Synthesizer renders text to audio, blocking until playback ends or ctx
// is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Tracker is a Speaker that records which message is being spoken and
// optionally drives a Synthesizer.
type Tracker struct {
	mu       sync.Mutex
	synth    Synthesizer
	logger   *slog.Logger
	id       string
	cancel   context.CancelFunc
	seq      uint64
	onChange func()
}

// NewTracker creates a tracker. A nil synth only records state.
func NewTracker(synth Synthesizer, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{synth: synth, logger: logger}
}

// OnChange registers a callback invoked whenever the speaking id changes.
func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Play cancels any current utterance and starts speaking text as id.
func (t *Tracker) Play(text, id string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.seq++
	seq := t.seq
	t.id = id
	t.cancel = cancel
	synth, notify := t.synth, t.onChange
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
	if synth == nil {
		return
	}

	go func() {
		if err := synth.Speak(ctx, text); err != nil && ctx.Err() == nil {
			t.logger.Warn("speech playback failed", "message_id", id, "error", err)
		}
		t.finish(seq)
	}()
}

// finish clears the current utterance if it is still seq.
func (t *Tracker) finish(seq uint64) {
	t.mu.Lock()
	if t.seq != seq || t.id == "" {
		t.mu.Unlock()
		return
	}
	t.id = ""
	t.cancel = nil
	notify := t.onChange
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Cancel stops the current utterance, if any.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	if t.id == "" {
		t.mu.Unlock()
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.seq++
	t.id = ""
	t.cancel = nil
	notify := t.onChange
	t.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Speaking returns the id of the message being spoken.
func (t *Tracker) Speaking() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id, t.id != ""
}

// CommandSynth speaks by running an external text-to-speech program with
// the text as its final argument, e.g. "espeak" or "say".
type CommandSynth struct {
	name string
	args []string
}

// NewCommandSynth parses a command line such as "espeak -s 160".
// It returns nil for an empty command.
func NewCommandSynth(command string) *CommandSynth {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	return &CommandSynth{name: fields[0], args: fields[1:]}
}

// Speak runs the program and waits for it to exit.
func (c *CommandSynth) Speak(ctx context.Context, text string) error {
	args := append(append([]string{}, c.args...), text)
	return exec.CommandContext(ctx, c.name, args...).Run()
}

// New returns a tracker driven by command, or a silent tracker when command is empty.
func New(command string, logger *slog.Logger) *Tracker {
	if synth := NewCommandSynth(command); synth != nil {
		return NewTracker(synth, logger)
	}
	return NewTracker(nil, logger)
}
