package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/server"
	"github.com/raphaelgruber/victor/internal/service"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	Title     lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
	Border    lipgloss.Color
}

var defaultTheme = Theme{
	Title:     lipgloss.Color("#5FAFD7"), // light blue
	User:      lipgloss.Color("#D7AF5F"), // amber
	Assistant: lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
	Border:    lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) titleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Title).Bold(true)
}

func (t Theme) roleStyle(r models.Role) lipgloss.Style {
	switch r {
	case models.RoleUser:
		return lipgloss.NewStyle().Foreground(t.User)
	case models.RoleError:
		return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Assistant)
	}
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) panelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1)
}

// snapshotMsg carries a session change into the UI loop.
type snapshotMsg service.Snapshot

// actionDoneMsg reports that a dispatched action returned.
type actionDoneMsg struct {
	err error
}

// commandMsg carries a local command side effect.
type commandMsg commands.Result

type chatModel struct {
	ctx    context.Context
	sess   *service.Session
	input  textinput.Model
	snap   service.Snapshot
	theme  Theme
	width  int
	height int
	status string
}

func newChatModel(ctx context.Context, sess *service.Session) chatModel {
	in := textinput.New()
	in.Placeholder = "Talk to Victor. /help for commands"
	in.CharLimit = 2000
	in.SetWidth(76)

	return chatModel{
		ctx:   ctx,
		sess:  sess,
		input: in,
		snap:  sess.Snapshot(),
		theme: defaultTheme,
		width: 80,
	}
}

func (m chatModel) Init() tea.Cmd {
	return m.input.Focus()
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.SetWidth(max(msg.Width-4, 10))
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			action, err := parseInput(m.snap, m.input.Value())
			m.input.SetValue("")
			if errors.Is(err, errQuit) {
				return m, tea.Quit
			}
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.status = ""
			return m, m.dispatch(action)
		}

	case snapshotMsg:
		m.snap = service.Snapshot(msg)
		return m, nil

	case actionDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, service.ErrEmptyUtterance) {
			m.status = msg.err.Error()
		}
		m.snap = m.sess.Snapshot()
		return m, nil

	case commandMsg:
		if msg.Action == "close" {
			return m, tea.Quit
		}
		if msg.OpenURL != "" {
			m.status = "open " + msg.OpenURL
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// dispatch runs an action off the UI loop.
func (m chatModel) dispatch(a server.Action) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{err: server.Dispatch(m.ctx, m.sess, a)}
	}
}

func (m chatModel) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m chatModel) render() string {
	width := max(m.width, 20)

	header := m.theme.titleStyle().Render("VICTOR") + " " + m.theme.hintStyle().Render(m.statusLine())

	var panel string
	if m.snap.Game != nil {
		var lines []string
		for _, msg := range m.snap.Game.Transcript {
			lines = append(lines, m.theme.roleStyle(msg.Role).Render(formatMessage(msg)))
		}
		lines = append(lines, formatGame(m.snap.Game))
		panel = m.theme.panelStyle().Width(width - 2).Render(strings.Join(lines, "\n"))
	}

	footer := m.input.View()
	if m.status != "" {
		footer += "\n" + m.theme.hintStyle().Render(m.status)
	}

	wrap := lipgloss.NewStyle().Width(width)
	var chat []string
	for _, msg := range m.snap.Messages {
		text := formatMessage(msg)
		if msg.ID == m.snap.Speaking {
			text += " (speaking)"
		}
		chat = append(chat, strings.Split(wrap.Render(m.theme.roleStyle(msg.Role).Render(text)), "\n")...)
	}

	if m.height > 0 {
		room := m.height - lipgloss.Height(header) - lipgloss.Height(footer) - 1
		if panel != "" {
			room -= lipgloss.Height(panel)
		}
		if room < 1 {
			room = 1
		}
		if len(chat) > room {
			chat = chat[len(chat)-room:]
		}
	}

	parts := []string{header, strings.Join(chat, "\n")}
	if panel != "" {
		parts = append(parts, panel)
	}
	parts = append(parts, footer)
	return strings.Join(parts, "\n")
}

func (m chatModel) statusLine() string {
	s := m.snap.Mode
	if m.snap.Busy {
		s += " | working"
	}
	if m.snap.AutoSpeak {
		s += " | speech on"
	}
	return s
}

// runTUI runs the full-screen chat until the user quits.
func runTUI(ctx context.Context, opts service.Options) (*service.Session, error) {
	var p *tea.Program
	opts.OnCommand = func(r commands.Result) {
		if p != nil {
			p.Send(commandMsg(r))
		}
	}
	sess := service.New(opts)
	p = tea.NewProgram(newChatModel(ctx, sess))

	unsubscribe := sess.Subscribe(func(s service.Snapshot) {
		p.Send(snapshotMsg(s))
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return sess, fmt.Errorf("chat UI error: %w", err)
	}
	return sess, nil
}
