package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/internal/progress"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
)

// Narrator is the narration session the reader drives. *tts.Session
// implements it.
type Narrator interface {
	Play(pageID int, text string)
	Stop()
	Navigate(pageID int)
	Snapshot() tts.State
	Subscribe(fn func(tts.State)) (cancel func())
}

// ProgressStore records bookmarks and narrated pages. *progress.Store
// implements it.
type ProgressStore interface {
	ToggleBookmark(ctx context.Context, bookID string, page int) (bool, error)
	Bookmarks(ctx context.Context, bookID string) ([]progress.Bookmark, error)
	Narrated(ctx context.Context, bookID string) ([]progress.Narration, error)
}

type (
	narrationMsg    tts.State
	bookReloadedMsg struct{ book *book.Book }
	progressMsg     struct {
		bookmarks map[int]bool
		narrated  map[int]bool
	}
	bookmarkMsg struct {
		page   int
		marked bool
		err    error
	}
)

// subscribeNarration forwards session updates into a one-slot channel.
// A pending update is replaced by a newer one, so the reader only ever
// sees the latest state.
func subscribeNarration(n Narrator) (<-chan tts.State, func()) {
	ch := make(chan tts.State, 1)
	cancel := n.Subscribe(func(s tts.State) {
		for {
			select {
			case ch <- s:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, cancel
}

func waitForNarration(ch <-chan tts.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return narrationMsg(s)
	}
}

// watchBook starts a watcher that pushes reloaded books into ch until ctx
// is done.
func watchBook(ctx context.Context, path string, ch chan<- *book.Book) tea.Cmd {
	return func() tea.Msg {
		go func() {
			_ = book.Watch(ctx, path, 0, func(b *book.Book) {
				select {
				case ch <- b:
				case <-ctx.Done():
				}
			})
		}()
		return nil
	}
}

func waitForReload(ch <-chan *book.Book) tea.Cmd {
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return nil
		}
		return bookReloadedMsg{book: b}
	}
}

func loadProgress(store ProgressStore, bookID string) tea.Cmd {
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		ctx := context.Background()
		msg := progressMsg{bookmarks: map[int]bool{}, narrated: map[int]bool{}}
		if marks, err := store.Bookmarks(ctx, bookID); err == nil {
			for _, m := range marks {
				msg.bookmarks[m.Page] = true
			}
		}
		if done, err := store.Narrated(ctx, bookID); err == nil {
			for _, n := range done {
				msg.narrated[n.Page] = true
			}
		}
		return msg
	}
}

func toggleBookmark(store ProgressStore, bookID string, page int) tea.Cmd {
	return func() tea.Msg {
		marked, err := store.ToggleBookmark(context.Background(), bookID, page)
		return bookmarkMsg{page: page, marked: marked, err: err}
	}
}
