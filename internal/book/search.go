package book

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Match is a search hit: the best matching line of a page.
type Match struct {
	Page           int
	Line           string
	Score          int
	MatchedIndexes []int
}

// line is one searchable string and the page it came from
type line struct {
	page int
	text string
}

// lines implements fuzzy.Source over every text and list item of a book
type lines []line

func (l lines) String(i int) string { return l[i].text }
func (l lines) Len() int            { return len(l) }

// Search fuzzy-matches query against the book's text and list items and
// returns at most limit pages, best first. A non-positive limit returns
// every matching page.
func (b *Book) Search(query string, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	src := b.searchLines()
	seen := make(map[int]bool)
	var out []Match
	for _, m := range fuzzy.FindFrom(query, src) {
		page := src[m.Index].page
		if seen[page] {
			continue
		}
		seen[page] = true
		out = append(out, Match{
			Page:           page,
			Line:           m.Str,
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (b *Book) searchLines() lines {
	var out lines
	var walk func(page int, items []ContentItem)
	walk = func(page int, items []ContentItem) {
		for _, it := range items {
			if t := strings.TrimSpace(it.Text); t != "" {
				out = append(out, line{page: page, text: t})
			}
			for _, s := range it.Items {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, line{page: page, text: s})
				}
			}
			walk(page, it.Content)
		}
	}
	for _, p := range b.Pages {
		walk(p.Number, p.Content)
	}
	return out
}
