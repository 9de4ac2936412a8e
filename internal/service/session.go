// Package service hosts the conversational session: it routes each
// utterance to a local command, the image flow, an active game or the chat
// model, and keeps the conversation log and game state consistent while
// collaborator calls are outstanding.
package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/victor/internal/chatlog"
	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/executor"
	"github.com/raphaelgruber/victor/internal/game"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/speech"
)

// Fixed texts shown by the session.
const (
	WelcomeText     = "Victor online. Awaiting directives, Operator."
	TerminationText = "Game terminated. Resuming standard operations."
	ExitPhrase      = "exit game"
	confirmText     = "Execution complete."
)

var (
	// ErrBusy is returned when an utterance arrives while a turn is outstanding.
	ErrBusy = errors.New("a turn is already in progress")
	// ErrNoGame is returned by game actions when the matching game is not active.
	ErrNoGame = errors.New("no matching game is active")
	// ErrEmptyUtterance is returned for blank input.
	ErrEmptyUtterance = errors.New("utterance is empty")
)

// Mode is the routing state of a session. The zero value is idle chat.
type Mode struct {
	Game game.Kind
}

// Idle reports whether no game is active.
func (m Mode) Idle() bool { return m.Game == "" }

func (m Mode) String() string {
	if m.Idle() {
		return "idle-chat"
	}
	return "in-game(" + string(m.Game) + ")"
}

// Scheduler runs fn after d. The returned function cancels a pending run.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Options configures a Session. Chat is required; everything else has a
// usable default.
type Options struct {
	Chat     llm.Chat
	Images   llm.ImageGenerator
	Executor executor.Executor
	Speaker  speech.Speaker
	Commands *commands.Matcher
	Metrics  *metrics.Collector
	Logger   *slog.Logger

	Scheduler     Scheduler
	TeardownDelay time.Duration
	GuessAttempts int
	AutoSpeak     bool
	OperatorName  string
	// CodeLanguage is the language the model is told to write scripts in.
	// Empty leaves scripting out of the system prompt.
	CodeLanguage string

	// OnCommand is called after a local command has been answered, so the
	// host can perform its side effect (open a URL, close the window).
	OnCommand func(commands.Result)
}

// Session is one conversation with its routing state. All methods are safe
// for concurrent use; collaborator calls run without holding the lock and
// their results are discarded if the game they belong to has ended.
type Session struct {
	id     string
	opts   Options
	logger *slog.Logger
	system string

	mu        sync.Mutex
	chat      *chatlog.Log
	mode      Mode
	active    *activeGame
	epoch     uint64
	busy      bool
	autoSpeak bool
	teardown  func() bool

	listenMu  sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// New creates a session greeted by the welcome message.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockScheduler{}
	}
	if opts.Executor == nil {
		opts.Executor = executor.Disabled{}
	}
	if opts.Speaker == nil {
		opts.Speaker = speech.NewTracker(nil, opts.Logger)
	}

	id := models.NewID("session")
	welcome := models.Message{ID: models.NewID("victor"), Role: models.RoleAssistant, Content: WelcomeText}

	s := &Session{
		id:        id,
		opts:      opts,
		logger:    opts.Logger.With("session_id", id),
		chat:      chatlog.New(welcome),
		autoSpeak: opts.AutoSpeak,
		listeners: make(map[int]func(Snapshot)),
		system: llm.SystemPrompt(llm.PromptOptions{
			OperatorName: opts.OperatorName,
			CodeLanguage: opts.CodeLanguage,
		}),
	}
	if t, ok := opts.Speaker.(*speech.Tracker); ok {
		t.OnChange(s.notify)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the current routing state.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Messages returns a copy of the chat log.
func (s *Session) Messages() []models.Message {
	return s.chat.Messages()
}

// Subscribe registers fn to receive a snapshot after every visible change.
// The returned function removes the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.listenMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenMu.Unlock()

	return func() {
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

// notify publishes a fresh snapshot. It must not be called with s.mu held.
func (s *Session) notify() {
	s.listenMu.Lock()
	if len(s.listeners) == 0 {
		s.listenMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// SetAutoSpeak toggles automatic playback of finalized responses.
func (s *Session) SetAutoSpeak(on bool) {
	s.mu.Lock()
	s.autoSpeak = on
	s.mu.Unlock()
	s.notify()
}

// ToggleSpeech stops playback of message id if it is speaking, otherwise
// starts speaking it.
func (s *Session) ToggleSpeech(id string) error {
	if current, ok := s.opts.Speaker.Speaking(); ok && current == id {
		s.opts.Speaker.Cancel()
		return nil
	}
	msg, ok := s.findMessage(id)
	if !ok {
		return chatlog.ErrNotFound
	}
	s.opts.Speaker.Play(msg.Content, msg.ID)
	return nil
}

func (s *Session) findMessage(id string) (models.Message, bool) {
	if msg, ok := s.chat.Get(id); ok {
		return msg, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active.transcript.Get(id)
	}
	return models.Message{}, false
}

// speak plays text for message id when auto-speak is on.
func (s *Session) speak(text, id string) {
	s.mu.Lock()
	on := s.autoSpeak
	s.mu.Unlock()
	if on && text != "" {
		s.opts.Speaker.Play(text, id)
	}
}

// Close stops any pending teardown and playback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.teardown != nil {
		s.teardown()
		s.teardown = nil
	}
	s.mu.Unlock()
	s.opts.Speaker.Cancel()
}
