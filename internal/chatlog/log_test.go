package chatlog

import (
	"testing"

	"github.com/raphaelgruber/victor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, role models.Role, content string) models.Message {
	return models.Message{ID: id, Role: role, Content: content}
}

func TestAppendKeepsOrder(t *testing.T) {
	l := New()
	require.NoError(t, l.Append(msg("a", models.RoleUser, "hi")))
	require.NoError(t, l.Append(msg("b", models.RoleAssistant, "hello")))

	got := l.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestAppendDuplicateID(t *testing.T) {
	l := New(msg("a", models.RoleUser, "hi"))
	assert.ErrorIs(t, l.Append(msg("a", models.RoleUser, "again")), ErrDuplicateID)
	assert.Equal(t, 1, l.Len())
}

func TestPatchByIDAfterRemoval(t *testing.T) {
	l := New(
		msg("a", models.RoleUser, "one"),
		msg("b", models.RoleAssistant, ""),
		msg("c", models.RoleUser, "three"),
	)

	// Removing an earlier entry must not break patching a later one.
	require.True(t, l.Remove("a"))
	require.NoError(t, l.Patch("b", func(m *models.Message) {
		m.Content = "filled"
		m.ID = "hijack"
	}))

	got, ok := l.Get("b")
	require.True(t, ok)
	assert.Equal(t, "filled", got.Content)
	assert.Equal(t, []string{"b", "c"}, ids(l.Messages()))
}

func TestSnapshotsAreIsolated(t *testing.T) {
	l := New(models.Message{
		ID:      "a",
		Role:    models.RoleAssistant,
		Sources: []models.Citation{{URI: "u", Title: "t"}},
	})

	snap := l.Messages()
	require.NoError(t, l.Patch("a", func(m *models.Message) {
		m.Content = "changed"
		m.Sources[0].Title = "changed"
	}))

	assert.Empty(t, snap[0].Content)
	assert.Equal(t, "t", snap[0].Sources[0].Title)

	snap[0].Sources[0].Title = "local"
	got, _ := l.Get("a")
	assert.Equal(t, "changed", got.Sources[0].Title)
}

func TestReplaceUnknown(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Replace(msg("x", models.RoleError, "boom")), ErrNotFound)
	assert.ErrorIs(t, l.Patch("x", func(*models.Message) {}), ErrNotFound)
	assert.False(t, l.Remove("x"))
}

func TestSingleInFlight(t *testing.T) {
	l := New(msg("a", models.RoleAssistant, ""), msg("b", models.RoleAssistant, ""))

	require.NoError(t, l.BeginStream("a"))
	require.NoError(t, l.BeginStream("a"))
	assert.ErrorIs(t, l.BeginStream("b"), ErrStreamInFlight)

	id, ok := l.InFlight()
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	l.EndStream("b")
	_, ok = l.InFlight()
	assert.True(t, ok, "ending a different id leaves the stream open")

	l.EndStream("a")
	require.NoError(t, l.BeginStream("b"))

	// Removing the in-flight entry releases it.
	l.Remove("b")
	_, ok = l.InFlight()
	assert.False(t, ok)
}

func TestLast(t *testing.T) {
	l := New()
	_, ok := l.Last()
	assert.False(t, ok)

	require.NoError(t, l.Append(msg("a", models.RoleUser, "x")))
	require.NoError(t, l.Append(msg("b", models.RoleUser, "y")))
	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.ID)
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
