package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/spf13/cobra"
)

var (
	playPage  int
	playPages string

	playCmd = &cobra.Command{
		Use:   "play BOOK",
		Short: "Narrate pages without the reader",
		Long: paragraph(fmt.Sprintf("\n%s one page, or a range of pages in order, and exit when done. Ctrl-C stops narration cleanly.",
			keyword("Narrate"))),
		Example: paragraph("bookvoice play book.yml --page 3\nbookvoice play book.yml --pages 3-7"),
		Args:    cobra.ExactArgs(1),
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().IntVarP(&playPage, "page", "p", 0, "page to narrate (default first page)")
	playCmd.Flags().StringVar(&playPages, "pages", "", "page range to narrate in order, like 3-7")
	playCmd.MarkFlagsMutuallyExclusive("page", "pages")
}

func runPlay(cmd *cobra.Command, args []string) error {
	b, _, err := loadBook(args[0])
	if err != nil {
		return err
	}
	pages, err := selectPages(b, playPage, playPages)
	if err != nil {
		return err
	}

	cfg, err := envConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rt, err := newRuntime(ctx, b, cfg)
	if err != nil {
		return err
	}
	defer rt.shutdown() //nolint:errcheck
	rt.lifecycle.Start(ctx)

	for _, n := range pages {
		select {
		case <-rt.lifecycle.Stopping():
			return rt.shutdown()
		default:
		}

		text, _ := b.Text(n)
		if text == "" {
			fmt.Fprintf(os.Stderr, "%s page %d has no text\n", faint("skip"), n)
			continue
		}

		fmt.Fprintf(os.Stderr, "%s page %d\n", keyword("narrating"), n)
		rt.session.Play(n, text)
		if err := rt.session.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		if !rt.wasCompleted(n) {
			log.Warn("Page narration did not finish", "page", n)
			fmt.Fprintf(os.Stderr, "%s page %d\n", faint("stopped"), n)
		}
	}
	return rt.shutdown()
}

// selectPages resolves --page or --pages into page numbers of b.
func selectPages(b *book.Book, page int, pages string) ([]int, error) {
	if pages == "" {
		if page == 0 {
			page = b.First()
		}
		if _, err := b.Page(page); err != nil {
			return nil, err
		}
		return []int{page}, nil
	}

	from, to, err := parseRange(pages)
	if err != nil {
		return nil, err
	}
	var out []int
	for _, p := range b.Pages {
		if p.Number >= from && p.Number <= to {
			out = append(out, p.Number)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no pages in %s", book.ErrPageNotFound, pages)
	}
	return out, nil
}

// parseRange parses "N" or "N-M".
func parseRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	from, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	if !found {
		return from, from, nil
	}
	to, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || to < from {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	return from, to, nil
}
