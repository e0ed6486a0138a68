package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit int

	searchCmd = &cobra.Command{
		Use:     "search BOOK QUERY...",
		Short:   "Fuzzy search the pages of a book",
		Example: paragraph("bookvoice search book.yml market day"),
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := loadBook(args[0])
			if err != nil {
				return err
			}

			query := strings.Join(args[1:], " ")
			matches := b.Search(query, searchLimit)
			if len(matches) == 0 {
				return fmt.Errorf("no pages match %q", query)
			}

			w := cmd.OutOrStdout()
			for _, m := range matches {
				fmt.Fprintf(w, "%s  %s\n", keyword(fmt.Sprintf("p.%-4d", m.Page)), m.Line)
			}
			return nil
		},
	}
)

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of pages to list (0 for all)")
}
