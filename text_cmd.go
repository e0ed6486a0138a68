package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/dgnsrekt/bookvoice/ui"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var (
	textPage     int
	textSegments bool

	textCmd = &cobra.Command{
		Use:   "text BOOK",
		Short: "Print the narration text of a book",
		Long: paragraph(fmt.Sprintf("\nPrint the text bookvoice sends for narration, per page. With %s, print the segments each page is split into.",
			keyword("--segments"))),
		Example: paragraph("bookvoice text book.yml --page 2 --segments"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := loadBook(args[0])
			if err != nil {
				return err
			}

			pages := b.Pages
			if textPage != 0 {
				p, err := b.Page(textPage)
				if err != nil {
					return err
				}
				pages = []book.Page{*p}
			}

			var seg *tts.Segmenter
			if textSegments {
				cfg, err := loadConfig(mustEnvConfig())
				if err != nil {
					return err
				}
				seg = tts.NewSegmenter(cfg.SegmenterConfig())
			}

			return printText(cmd.OutOrStdout(), pages, seg, int(width)) //nolint:gosec
		},
	}
)

func init() {
	textCmd.Flags().IntVarP(&textPage, "page", "p", 0, "only print this page")
	textCmd.Flags().BoolVar(&textSegments, "segments", false, "print the segments of each page")
}

// mustEnvConfig returns the env config, ignoring malformed values that
// the text command does not need.
func mustEnvConfig() ui.Config {
	cfg, _ := envConfig()
	return cfg
}

func printText(w io.Writer, pages []book.Page, seg *tts.Segmenter, maxWidth int) error {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	for i := range pages {
		p := &pages[i]
		text := book.ExtractText(p.Content)

		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, keyword(fmt.Sprintf("page %d", p.Number)))

		if seg == nil {
			if text == "" {
				fmt.Fprintln(w, faint("(no text)"))
				continue
			}
			fmt.Fprintln(w, text)
			continue
		}

		segments := seg.Split(text)
		if len(segments) == 0 {
			fmt.Fprintln(w, faint("(no segments)"))
			continue
		}
		for j, s := range segments {
			fmt.Fprintln(w, segmentRow(j+1, s, maxWidth))
		}
	}
	return nil
}

// segmentRow renders one numbered segment, truncated to maxWidth cells.
func segmentRow(n int, s string, maxWidth int) string {
	prefix := fmt.Sprintf("%3d %4d  ", n, len([]rune(s)))
	s = strings.Join(strings.Fields(s), " ")
	room := maxWidth - runewidth.StringWidth(prefix)
	if room < 1 {
		room = 1
	}
	return faint(prefix) + runewidth.Truncate(s, room, "…")
}
