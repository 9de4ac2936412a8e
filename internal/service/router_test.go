package service

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/raphaelgruber/victor/internal/executor"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionGreets(t *testing.T) {
	h := newHarness(t)
	msgs := h.session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, WelcomeText, msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.True(t, h.session.Mode().Idle())
}

func TestHandleRejectsBlank(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.session.Handle(context.Background(), "   "), ErrEmptyUtterance)
	assert.Len(t, h.session.Messages(), 1)
}

func TestChatTurnStreamsIntoPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.chat.stream = func(context.Context, llm.Request) iter.Seq[models.Fragment] {
		return fragments(
			models.Fragment{Text: "Hello"},
			models.Fragment{Sources: []models.Citation{{URI: "https://a", Title: "A1"}}},
			models.Fragment{Text: ", Operator. "},
			models.Fragment{Sources: []models.Citation{{URI: "https://a", Title: "A2"}, {URI: "https://b", Title: "B"}}},
		)
	}

	require.NoError(t, h.session.Handle(context.Background(), "hello"))

	msgs := h.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.RoleUser, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)

	answer := msgs[2]
	assert.Equal(t, models.RoleAssistant, answer.Role)
	assert.Equal(t, "Hello, Operator.", answer.Content)
	want := []models.Citation{{URI: "https://a", Title: "A2"}, {URI: "https://b", Title: "B"}}
	if diff := cmp.Diff(want, answer.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}

	reqs := h.chat.calls(llm.PurposeChat)
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Prompt)
	assert.Equal(t, []string{WelcomeText}, contents(reqs[0].History))
	assert.NotEmpty(t, reqs[0].System)

	assert.Equal(t, []played{{"Hello, Operator.", answer.ID}}, h.speaker.played())
	assert.False(t, h.session.Snapshot().Busy)
	assert.Equal(t, int64(1), h.metrics.Snapshot().ChatStream.Count)
}

func TestHandleCancelsSpeechFirst(t *testing.T) {
	h := newHarness(t)
	h.speaker.Play("old", "m0")
	require.NoError(t, h.session.Handle(context.Background(), "hi"))
	assert.GreaterOrEqual(t, h.speaker.cancels, 1)
}

func TestAutoSpeakOff(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AutoSpeak = false })
	require.NoError(t, h.session.Handle(context.Background(), "hi"))
	assert.Empty(t, h.speaker.played())
}

func TestStreamErrorBecomesErrorEntry(t *testing.T) {
	h := newHarness(t)
	h.chat.stream = func(context.Context, llm.Request) iter.Seq[models.Fragment] {
		return fragments(
			models.Fragment{Text: "partial"},
			models.Fragment{Err: &llm.StreamError{Err: errors.New("quota")}},
			models.Fragment{Text: "ignored"},
		)
	}

	require.NoError(t, h.session.Handle(context.Background(), "hi"))

	last := h.session.Messages()[2]
	assert.Equal(t, models.RoleError, last.Role)
	assert.Equal(t, "Acknowledged. A system malfunction is preventing execution. Details: quota", last.Content)
	assert.Empty(t, h.speaker.played())
}

func TestPanickingStreamBecomesCriticalFailure(t *testing.T) {
	h := newHarness(t)
	h.chat.stream = func(context.Context, llm.Request) iter.Seq[models.Fragment] {
		return func(func(models.Fragment) bool) { panic("network exploded") }
	}

	require.NoError(t, h.session.Handle(context.Background(), "hi"))

	last := h.session.Messages()[2]
	assert.Equal(t, models.RoleError, last.Role)
	assert.Equal(t, "Critical system failure: panic: network exploded", last.Content)
	assert.False(t, h.session.Snapshot().Busy)
}

func TestUnrecognizedJSONShownVerbatim(t *testing.T) {
	h := newHarness(t)
	h.chat.stream = reply(`{"foo":"bar"}`)

	require.NoError(t, h.session.Handle(context.Background(), "json please"))

	assert.Equal(t, `{"foo":"bar"}`, h.session.Messages()[2].Content)
	assert.True(t, h.session.Mode().Idle())
}

func TestGameMoveInIdleChatIsShown(t *testing.T) {
	h := newHarness(t)
	h.chat.stream = reply(`{"action":"game_move","game":"tic-tac-toe","move":[1,1]}`)

	require.NoError(t, h.session.Handle(context.Background(), "move"))

	assert.Contains(t, h.session.Messages()[2].Content, "game_move")
	assert.True(t, h.session.Mode().Idle())
}

func TestLocalCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.session.Handle(context.Background(), "Get directions to Paris"))

	msgs := h.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Get directions to Paris", msgs[1].Content)
	assert.Equal(t, "Calculating directions to: paris", msgs[2].Content)
	assert.Empty(t, h.chat.requests, "commands never reach the model")

	require.Len(t, h.commands, 1)
	assert.Equal(t, "https://www.google.com/maps/dir/?api=1&destination=paris", h.commands[0].OpenURL)
	assert.Equal(t, []played{{msgs[2].Content, msgs[2].ID}}, h.speaker.played())
}

func TestImageFlow(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.Images = fakeImages{url: "data:image/png;base64,AAA"} })

		require.NoError(t, h.session.Handle(context.Background(), "Show me an image of a Red Fox"))

		msgs := h.session.Messages()
		require.Len(t, msgs, 3)
		img := msgs[2]
		assert.Equal(t, models.RoleAssistant, img.Role)
		assert.Equal(t, "Execution complete.", img.Content)
		assert.Equal(t, "data:image/png;base64,AAA", img.ImageURL)
		assert.Empty(t, h.chat.requests)
		assert.Equal(t, []played{{"Execution complete.", img.ID}}, h.speaker.played())
	})

	t.Run("failure", func(t *testing.T) {
		h := newHarness(t, func(o *Options) { o.Images = fakeImages{err: errors.New("image blocked: unsafe")} })

		require.NoError(t, h.session.Handle(context.Background(), "draw a castle"))

		img := h.session.Messages()[2]
		assert.Equal(t, models.RoleError, img.Role)
		assert.Equal(t, "Image generation failed. Details: image blocked: unsafe", img.Content)
		assert.Equal(t, int64(1), h.metrics.Snapshot().ImageGenerate.Failures)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.session.Handle(context.Background(), "generate a picture of the sea"))

		img := h.session.Messages()[2]
		assert.Equal(t, models.RoleError, img.Role)
		assert.Equal(t, "Image generation failed. Details: "+ErrNoImageGenerator.Error(), img.Content)
	})
}

func TestImagePattern(t *testing.T) {
	tests := []struct {
		in     string
		prompt string
		ok     bool
	}{
		{"show me a cat", "a cat", true},
		{"show me an image of a cat", "a cat", true},
		{"generate a picture of mountains", "mountains", true},
		{"Draw a robot", "a robot", true},
		{"create an image of the moon", "the moon", true},
		{"please draw a cat", "", false},
		{"showme a cat", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := imagePattern.FindStringSubmatch(tt.in)
			if !tt.ok {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.prompt, m[1])
		})
	}
}

func TestExecuteCodeCommand(t *testing.T) {
	exec := &fakeExecutor{res: executor.Result{Output: "2\n"}}
	h := newHarness(t, func(o *Options) { o.Executor = exec })
	h.chat.stream = reply(`{"action":"execute_python","code":"print(1+1)"}`)

	require.NoError(t, h.session.Handle(context.Background(), "what is 1+1 in python"))

	msgs := h.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Python script executed. Output:\n\n---\n2\n\n---", msgs[2].Content)
	assert.Equal(t, executor.Request{Language: "python", Code: "print(1+1)"}, exec.req)
	assert.Equal(t, []played{{"Execution complete.", msgs[2].ID}}, h.speaker.played())
}

func TestExecuteCodeFailure(t *testing.T) {
	h := newHarness(t) // disabled executor
	h.chat.stream = reply(`{"action":"execute_code","language":"go","code":"fmt.Println(1)"}`)

	require.NoError(t, h.session.Handle(context.Background(), "run it"))

	got := h.session.Messages()[2]
	assert.Equal(t, models.RoleAssistant, got.Role)
	assert.Equal(t, "Go script executed. Output:\n\n---\nError: code execution is disabled\n---", got.Content)
	assert.Equal(t, int64(1), h.metrics.Snapshot().CodeExecute.Failures)
}

func TestBusyRejectsSecondUtterance(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	started := make(chan struct{})
	h.chat.stream = func(ctx context.Context, _ llm.Request) iter.Seq[models.Fragment] {
		return func(yield func(models.Fragment) bool) {
			close(started)
			<-release
			yield(models.Fragment{Text: "done"})
		}
	}

	done := make(chan error, 1)
	go func() { done <- h.session.Handle(context.Background(), "first") }()
	<-started

	assert.True(t, h.session.Snapshot().Busy)
	assert.ErrorIs(t, h.session.Handle(context.Background(), "second"), ErrBusy)

	close(release)
	require.NoError(t, <-done)

	msgs := h.session.Messages()
	assert.Equal(t, []string{WelcomeText, "first", "done"}, contents(msgs))
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)
	var snaps []Snapshot
	unsubscribe := h.session.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	require.NoError(t, h.session.Handle(context.Background(), "hi"))
	require.NotEmpty(t, snaps)
	last := snaps[len(snaps)-1]
	assert.False(t, last.Busy)
	assert.Len(t, last.Messages, 3)
	assert.Equal(t, "idle-chat", last.Mode)

	n := len(snaps)
	unsubscribe()
	require.NoError(t, h.session.Handle(context.Background(), "again"))
	assert.Len(t, snaps, n)
}

func TestToggleSpeech(t *testing.T) {
	h := newHarness(t)
	welcome := h.session.Messages()[0]

	require.NoError(t, h.session.ToggleSpeech(welcome.ID))
	id, ok := h.speaker.Speaking()
	require.True(t, ok)
	assert.Equal(t, welcome.ID, id)

	require.NoError(t, h.session.ToggleSpeech(welcome.ID))
	_, ok = h.speaker.Speaking()
	assert.False(t, ok)

	assert.Error(t, h.session.ToggleSpeech("missing"))
}

func TestTurnMetrics(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Handle(context.Background(), "status"))
	snap := h.metrics.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(1), snap.Turn.Count)
	assert.Nil(t, snap.ChatStream)
}
