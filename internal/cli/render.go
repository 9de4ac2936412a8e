package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/victor/internal/game/tictactoe"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/raphaelgruber/victor/internal/service"
)

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "You"
	case models.RoleError:
		return "Error"
	default:
		return "Victor"
	}
}

// formatMessage renders a message as plain text.
func formatMessage(m models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", roleLabel(m.Role), m.Content)
	if m.ImageURL != "" {
		fmt.Fprintf(&b, "\n  [%s]", imageSummary(m.ImageURL))
	}
	for i, src := range m.Sources {
		fmt.Fprintf(&b, "\n  [%d] %s <%s>", i+1, src.Title, src.URI)
	}
	return b.String()
}

// imageSummary describes a data URI without printing its payload.
func imageSummary(uri string) string {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "image: " + uri
	}
	mime, payload, _ := strings.Cut(rest, ",")
	mime = strings.TrimSuffix(mime, ";base64")
	return fmt.Sprintf("image: %s, %d bytes", mime, len(payload)*3/4)
}

// formatBoard draws the grid with cell numbers on empty squares.
func formatBoard(b tictactoe.Board) string {
	var rows []string
	for r := range tictactoe.Size {
		cells := make([]string, tictactoe.Size)
		for c := range tictactoe.Size {
			if m := b.At(r, c); m != tictactoe.Empty {
				cells[c] = m.String()
			} else {
				cells[c] = fmt.Sprint(r*tictactoe.Size + c + 1)
			}
		}
		rows = append(rows, " "+strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n---+---+---\n")
}

// formatGame renders the state panel of the active game.
func formatGame(g *service.GameView) string {
	if g == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", g.Title)
	switch {
	case g.Board != nil:
		b.WriteString(formatBoard(g.Board.Cells))
		b.WriteString("\n")
		switch {
		case g.Board.Winner != "":
			fmt.Fprintf(&b, "Winner: %s", g.Board.Winner)
		case g.Board.Phase == tictactoe.Finished.String():
			b.WriteString("Draw")
		case g.Board.Thinking:
			b.WriteString("Victor is thinking...")
		default:
			b.WriteString("Your move: type a cell number 1-9")
		}
	case g.Puzzle != nil:
		p := g.Puzzle
		if p.Hint != "" {
			fmt.Fprintf(&b, "Hint: %s\n", p.Hint)
		}
		fmt.Fprintf(&b, "Attempts left: %d/%d", p.Remaining, p.Budget)
		if len(p.Misses) > 0 {
			fmt.Fprintf(&b, "\nMisses: %s", strings.Join(p.Misses, ", "))
		}
		if p.Word != "" {
			fmt.Fprintf(&b, "\nThe word: %s", p.Word)
		}
	case g.Probe != nil:
		if g.Probe.Loading {
			b.WriteString("Victor is thinking...")
		} else {
			fmt.Fprintf(&b, "Answers: %s", strings.Join(g.Probe.Permitted, " / "))
		}
	case g.Reader != nil:
		b.WriteString(g.Reader.Text)
		switch {
		case g.Reader.Revealed:
			b.WriteString("\nType 'restart' to play again")
		case g.Reader.LastStep:
			b.WriteString("\nPress enter to see the number")
		default:
			b.WriteString("\nPress enter for the next step")
		}
	}
	return b.String()
}

// printer writes the parts of successive snapshots not yet shown.
type printer struct {
	w        io.Writer
	chatSeen int
	gameKind string
	gameSeen int
	panel    string
}

func newPrinter(w io.Writer, s service.Snapshot) *printer {
	p := &printer{w: w}
	p.update(s)
	return p
}

func (p *printer) update(s service.Snapshot) {
	if len(s.Messages) < p.chatSeen {
		p.chatSeen = len(s.Messages)
	}
	for _, m := range s.Messages[p.chatSeen:] {
		fmt.Fprintln(p.w, formatMessage(m))
	}
	p.chatSeen = len(s.Messages)

	kind := ""
	var transcript []models.Message
	if s.Game != nil {
		kind = string(s.Game.Kind)
		transcript = s.Game.Transcript
	}
	if kind != p.gameKind {
		p.gameKind = kind
		p.gameSeen = 0
		p.panel = ""
	}
	for _, m := range transcript[min(p.gameSeen, len(transcript)):] {
		fmt.Fprintln(p.w, formatMessage(m))
	}
	p.gameSeen = len(transcript)

	if panel := formatGame(s.Game); panel != p.panel {
		p.panel = panel
		if panel != "" {
			fmt.Fprintln(p.w, panel)
		}
	}
}
