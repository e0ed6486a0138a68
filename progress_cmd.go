package main

import (
	"fmt"
	"io"

	"github.com/dgnsrekt/bookvoice/internal/progress"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	progressReset bool

	progressCmd = &cobra.Command{
		Use:     "progress BOOK",
		Short:   "Show narrated pages and bookmarks of a book",
		Example: paragraph("bookvoice progress book.yml\nbookvoice progress book.yml --reset"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := loadBook(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(mustEnvConfig())
			if err != nil {
				return err
			}
			if !cfg.Progress.Enabled {
				return fmt.Errorf("progress tracking is disabled in %s", viperConfigName())
			}

			ctx := cmd.Context()
			store, err := openProgress(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			w := cmd.OutOrStdout()
			if progressReset {
				if err := store.Reset(ctx, b.ID); err != nil {
					return err
				}
				fmt.Fprintf(w, "Cleared progress for %s\n", keyword(b.ID))
				return nil
			}

			narrated, err := store.Narrated(ctx, b.ID)
			if err != nil {
				return err
			}
			bookmarks, err := store.Bookmarks(ctx, b.ID)
			if err != nil {
				return err
			}
			printProgress(w, len(b.Pages), narrated, bookmarks)
			return nil
		},
	}
)

func init() {
	progressCmd.Flags().BoolVar(&progressReset, "reset", false, "forget narrated pages and bookmarks of the book")
}

func printProgress(w io.Writer, total int, narrated []progress.Narration, bookmarks []progress.Bookmark) {
	fmt.Fprintf(w, "%s %d of %d pages\n", keyword("narrated"), len(narrated), total)
	for _, n := range narrated {
		plays := "once"
		if n.Count > 1 {
			plays = fmt.Sprintf("%d times", n.Count)
		}
		fmt.Fprintf(w, "  p.%-4d %s %s\n", n.Page, plays, faint(humanize.Time(n.CompletedAt)))
	}

	fmt.Fprintf(w, "%s %d\n", keyword("bookmarks"), len(bookmarks))
	for _, bm := range bookmarks {
		fmt.Fprintf(w, "  p.%-4d %s\n", bm.Page, faint(humanize.Time(bm.CreatedAt)))
	}
}

func viperConfigName() string {
	if configFile != "" {
		return configFile
	}
	return "the configuration"
}
