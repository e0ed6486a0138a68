// Package ui provides the terminal book reader.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "bookmarked"
	ellipsis             = "…"
)

// NewProgram returns a new Tea program reading b. store may be nil when
// progress tracking is disabled.
func NewProgram(cfg Config, b *book.Book, narrator Narrator, store ProgressStore) *tea.Program {
	log.Debug("Starting reader", "book", b.ID, "pages", len(b.Pages), "start", cfg.StartPage)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, b, narrator, store), opts...)
}

// mode is what the reader is doing with keyboard input.
type mode int

const (
	modeRead mode = iota
	modeSearch
)

type statusMessageTimeoutMsg struct{ seq int }

type model struct {
	cfg      Config
	book     *book.Book
	narrator Narrator
	store    ProgressStore
	keys     keyMap

	mode  mode
	index int // position in book.Pages

	narration   tts.State
	updates     <-chan tts.State
	unsubscribe func()

	reloads     chan *book.Book
	watchCtx    context.Context
	cancelWatch context.CancelFunc

	bookmarks map[int]bool
	narrated  map[int]bool

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	search   searchModel

	width  int
	height int

	statusMessage string
	statusSeq     int
}

func newModel(cfg Config, b *book.Book, narrator Narrator, store ProgressStore) model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = statusBarNarrationStyle

	m := model{
		cfg:       cfg,
		book:      b,
		narrator:  narrator,
		store:     store,
		keys:      newKeyMap(),
		narration: narrator.Snapshot(),
		bookmarks: map[int]bool{},
		narrated:  map[int]bool{},
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		help:      help.New(),
		search:    newSearchModel(),
		reloads:   make(chan *book.Book),
	}
	if i := b.Index(cfg.StartPage); i >= 0 {
		m.index = i
	}
	m.updates, m.unsubscribe = subscribeNarration(narrator)
	m.watchCtx, m.cancelWatch = context.WithCancel(context.Background())
	return m
}

func (m model) page() *book.Page {
	return &m.book.Pages[m.index]
}

func (m model) pageNumber() int {
	return m.page().Number
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForNarration(m.updates),
		loadProgress(m.store, m.book.ID),
	}
	if m.cfg.Watch && m.cfg.Path != "" {
		cmds = append(cmds,
			watchBook(m.watchCtx, m.cfg.Path, m.reloads),
			waitForReload(m.reloads),
		)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.setSize()
		m.renderContent()
		return m, nil

	case narrationMsg:
		prev := m.narration
		m.narration = tts.State(msg)
		cmds = append(cmds, waitForNarration(m.updates))
		if m.narration.Phase() == tts.PhaseGenerating && prev.Phase() != tts.PhaseGenerating {
			cmds = append(cmds, m.spinner.Tick)
		}
		if m.narration.Idle() && !prev.Idle() {
			cmds = append(cmds, loadProgress(m.store, m.book.ID))
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.narration.Phase() != tts.PhaseGenerating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bookReloadedMsg:
		m.reload(msg.book)
		return m, tea.Batch(
			waitForReload(m.reloads),
			m.showStatusMessage("Book reloaded"),
		)

	case progressMsg:
		m.bookmarks = msg.bookmarks
		m.narrated = msg.narrated
		return m, nil

	case bookmarkMsg:
		if msg.err != nil {
			log.Error("Could not toggle bookmark", "page", msg.page, "error", msg.err)
			return m, m.showStatusMessage("Bookmark failed")
		}
		m.bookmarks[msg.page] = msg.marked
		if msg.marked {
			return m, m.showStatusMessage(fmt.Sprintf("Bookmarked page %d", msg.page))
		}
		return m, m.showStatusMessage(fmt.Sprintf("Removed bookmark on page %d", msg.page))

	case statusMessageTimeoutMsg:
		if msg.seq == m.statusSeq {
			m.statusMessage = ""
		}
		return m, nil

	case searchJumpMsg:
		m.closeSearch()
		m.goTo(m.book.Index(msg.page))
		return m, nil

	case searchCancelMsg:
		m.closeSearch()
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeSearch {
			var cmd tea.Cmd
			m.search, cmd = m.search.update(msg, m.book)
			return m, cmd
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	if m.mode == modeSearch {
		var cmd tea.Cmd
		m.search, cmd = m.search.update(msg, m.book)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quit()
		return tea.Quit, true

	case key.Matches(msg, m.keys.Toggle):
		return m.toggleNarration(), true

	case key.Matches(msg, m.keys.Stop):
		m.narrator.Stop()
		return nil, true

	case key.Matches(msg, m.keys.Next):
		m.goTo(m.index + 1)
		return nil, true

	case key.Matches(msg, m.keys.Prev):
		m.goTo(m.index - 1)
		return nil, true

	case key.Matches(msg, m.keys.First):
		m.goTo(0)
		return nil, true

	case key.Matches(msg, m.keys.Last):
		m.goTo(len(m.book.Pages) - 1)
		return nil, true

	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.setSize()
		return m.search.open(), true

	case key.Matches(msg, m.keys.Bookmark):
		if m.store == nil {
			return m.showStatusMessage("Progress tracking is disabled"), true
		}
		return toggleBookmark(m.store, m.book.ID, m.pageNumber()), true

	case key.Matches(msg, m.keys.Copy):
		text := m.pageText()
		termenv.Copy(text)
		_ = clipboard.WriteAll(text)
		return m.showStatusMessage("Copied page text"), true

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.setSize()
		return nil, true
	}
	return nil, false
}

// toggleNarration narrates the current page, or stops it when the page is
// already being narrated.
func (m *model) toggleNarration() tea.Cmd {
	text := m.pageText()
	log.Debug("Toggling narration", "page", m.pageNumber(), "chars", len(text))
	m.narrator.Play(m.pageNumber(), text)
	if text == "" {
		return m.showStatusMessage("Nothing to narrate on this page")
	}
	return nil
}

func (m model) pageText() string {
	text, err := m.book.Text(m.pageNumber())
	if err != nil {
		return ""
	}
	return text
}

// goTo opens the page at index i. Narration of another page stops.
func (m *model) goTo(i int) {
	if i < 0 || i >= len(m.book.Pages) || i == m.index {
		return
	}
	m.index = i
	m.narrator.Navigate(m.pageNumber())
	m.renderContent()
	m.viewport.GotoTop()
}

// reload swaps in a changed book, staying on the same page number when it
// still exists.
func (m *model) reload(b *book.Book) {
	number := m.pageNumber()
	m.book = b
	if i := b.Index(number); i >= 0 {
		m.index = i
	} else {
		m.index = min(m.index, len(b.Pages)-1)
		m.narrator.Navigate(m.pageNumber())
	}
	m.renderContent()
}

func (m *model) closeSearch() {
	m.search.close()
	m.mode = modeRead
	m.setSize()
}

func (m *model) quit() {
	m.narrator.Stop()
	m.unsubscribe()
	m.cancelWatch()
}

func (m *model) showStatusMessage(s string) tea.Cmd {
	m.statusMessage = s
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{seq: seq}
	})
}

func (m *model) setSize() {
	m.viewport.Width = m.width
	h := m.height - statusBarHeight
	if m.help.ShowAll {
		h -= lipglossHeight(m.helpView())
	}
	if m.mode == modeSearch {
		h -= lipglossHeight(m.search.view(m.width))
	}
	m.viewport.Height = max(0, h)
}

func (m *model) renderContent() {
	width := m.width - 2*pagePadding
	if m.cfg.MaxWidth > 0 {
		width = min(width, int(m.cfg.MaxWidth)) //nolint:gosec
	}
	content := renderPage(m.page(), width)
	m.viewport.SetContent(indentLines(content, pagePadding))
}

func (m model) View() string {
	var b strings.Builder
	if m.mode == modeSearch {
		b.WriteString(m.search.view(m.width) + "\n")
	}
	b.WriteString(m.viewport.View() + "\n")
	m.statusBarView(&b)
	if m.help.ShowAll {
		b.WriteString("\n" + m.helpView())
	}
	return b.String()
}

func (m model) helpView() string {
	return helpViewStyle(fillWidth(m.help.View(m.keys), m.width))
}

func indentLines(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

func lipglossHeight(s string) int {
	return strings.Count(s, "\n") + 1
}
