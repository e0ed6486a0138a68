package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
)

const statusBarHeight = 1

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.Color("#EE6FF8")
	cream     = lipgloss.AdaptiveColor{Light: "#FFFDF5", Dark: "#FFFDF5"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(fuchsia).
			Bold(true).
			Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarPageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarNarrationStyle = lipgloss.NewStyle().
				Foreground(cream).
				Background(darkGreen)

	statusBarGeneratingStyle = lipgloss.NewStyle().
					Foreground(statusBarNoteFg).
					Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

func (m model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" bookvoice ")

	// Page position and scroll
	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	position := fmt.Sprintf(" p.%d/%d %3.f%% ", m.pageNumber(), m.book.Last(), percent*100)
	position = statusBarPageStyle(position)

	badge := m.narrationBadge()

	// Note
	var note string
	if m.statusMessage != "" {
		note = m.statusMessage
	} else {
		note = m.book.Title
		if m.bookmarks[m.pageNumber()] {
			note = "★ " + note
		}
		if m.narrated[m.pageNumber()] {
			note += " ✓"
		}
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(badge)-
			ansi.PrintableRuneWidth(position),
	)), ellipsis)
	if m.statusMessage != "" {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(badge)-
			ansi.PrintableRuneWidth(position),
	)
	emptySpace := strings.Repeat(" ", padding)
	if m.statusMessage != "" {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		badge,
		position,
	)
}

// narrationBadge shows what the session is doing. Narration of a page
// other than the one on screen names that page.
func (m model) narrationBadge() string {
	switch m.narration.Phase() {
	case tts.PhaseGenerating:
		return statusBarGeneratingStyle(fmt.Sprintf(" %s generating p.%d ", m.spinner.View(), m.narration.GeneratingPage))
	case tts.PhasePlaying:
		return statusBarNarrationStyle.Render(fmt.Sprintf(" ▶ narrating p.%d ", m.narration.PlayingPage))
	default:
		return ""
	}
}

// fillWidth pads every line to width so background colors span the screen.
func fillWidth(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		n := max(width-ansi.PrintableRuneWidth(lines[i]), 0)
		lines[i] += strings.Repeat(" ", n)
	}
	return strings.Join(lines, "\n")
}
