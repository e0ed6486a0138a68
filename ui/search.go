package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/muesli/reflow/truncate"
)

const maxSearchResults = 8

var (
	searchSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}).
				Render

	searchMatchStyle = lipgloss.NewStyle().Underline(true).Render
)

// searchJumpMsg asks the reader to open a page found by search
type searchJumpMsg struct{ page int }

// searchCancelMsg closes the search prompt
type searchCancelMsg struct{}

type searchModel struct {
	input    textinput.Model
	results  []book.Match
	selected int
}

func newSearchModel() searchModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search this book"
	ti.CharLimit = 120
	return searchModel{input: ti}
}

func (m *searchModel) open() tea.Cmd {
	m.input.Reset()
	m.results = nil
	m.selected = 0
	return m.input.Focus()
}

func (m *searchModel) close() {
	m.input.Blur()
}

func (m searchModel) update(msg tea.Msg, b *book.Book) (searchModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, func() tea.Msg { return searchCancelMsg{} }
		case "enter":
			if len(m.results) == 0 {
				return m, nil
			}
			page := m.results[m.selected].Page
			return m, func() tea.Msg { return searchJumpMsg{page: page} }
		case "up", "ctrl+p":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "ctrl+n":
			if m.selected < len(m.results)-1 {
				m.selected++
			}
			return m, nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.results = b.Search(m.input.Value(), maxSearchResults)
		m.selected = 0
	}
	return m, cmd
}

func (m searchModel) view(width int) string {
	var s strings.Builder
	s.WriteString(m.input.View())
	for i, r := range m.results {
		label := fmt.Sprintf("p.%-4d %s", r.Page, highlightMatch(r.Line, r.MatchedIndexes))
		label = truncate.StringWithTail(label, uint(max(0, width-4)), ellipsis) //nolint:gosec
		if i == m.selected {
			s.WriteString("\n" + searchSelectedStyle("> ") + label)
		} else {
			s.WriteString("\n  " + label)
		}
	}
	if m.input.Value() != "" && len(m.results) == 0 {
		s.WriteString("\n  no matches")
	}
	return s.String()
}

// highlightMatch underlines the matched runes of a search hit.
func highlightMatch(s string, indexes []int) string {
	if len(indexes) == 0 {
		return s
	}
	hit := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		hit[i] = true
	}
	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(searchMatchStyle(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
