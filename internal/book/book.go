// Package book loads paged books and turns page content into narration text.
package book

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrPageNotFound is returned for a page number the book does not have
	ErrPageNotFound = errors.New("page not found")

	// ErrEmptyBook is returned when a book file has no pages
	ErrEmptyBook = errors.New("book has no pages")
)

// ContentItem is one node of a page's content tree.
type ContentItem struct {
	Type      string        `yaml:"type" json:"type"`
	Text      string        `yaml:"text,omitempty" json:"text,omitempty"`
	Level     int           `yaml:"level,omitempty" json:"level,omitempty"`
	Items     []string      `yaml:"items,omitempty" json:"items,omitempty"`
	Src       string        `yaml:"src,omitempty" json:"src,omitempty"`
	Alt       string        `yaml:"alt,omitempty" json:"alt,omitempty"`
	ClassName string        `yaml:"className,omitempty" json:"className,omitempty"`
	Content   []ContentItem `yaml:"content,omitempty" json:"content,omitempty"`
}

// Page is one numbered page of a book.
type Page struct {
	Number    int           `yaml:"pageNumber" json:"pageNumber"`
	SectionID string        `yaml:"sectionId" json:"sectionId"`
	Content   []ContentItem `yaml:"content" json:"content"`
}

// Book is a fixed, ordered set of pages.
type Book struct {
	ID     string `yaml:"id" json:"id"`
	Title  string `yaml:"title" json:"title"`
	Author string `yaml:"author,omitempty" json:"author,omitempty"`
	Pages  []Page `yaml:"pages" json:"pages"`

	byNumber map[int]int
}

// Section groups consecutive pages sharing a section id.
type Section struct {
	ID        string
	Title     string
	StartPage int
	Pages     int
}

// Load reads a book from a YAML or JSON file. A book without an id is
// identified by its file name.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read book: %w", err)
	}
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, id)
}

// Parse decodes a book from YAML or JSON. defaultID is used when the
// document has no id.
func Parse(data []byte, defaultID string) (*Book, error) {
	var b Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	if len(b.Pages) == 0 {
		return nil, ErrEmptyBook
	}
	if b.ID == "" {
		b.ID = defaultID
	}
	if b.Title == "" {
		b.Title = b.ID
	}

	b.byNumber = make(map[int]int, len(b.Pages))
	for i, p := range b.Pages {
		if _, dup := b.byNumber[p.Number]; dup {
			return nil, fmt.Errorf("failed to parse book: duplicate page %d", p.Number)
		}
		b.byNumber[p.Number] = i
	}
	return &b, nil
}

// Page returns the page with the given number.
func (b *Book) Page(number int) (*Page, error) {
	i := b.Index(number)
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, number)
	}
	return &b.Pages[i], nil
}

// Index returns the position of page number in Pages, or -1.
func (b *Book) Index(number int) int {
	if i, ok := b.byNumber[number]; ok {
		return i
	}
	return -1
}

// Text returns the narration text of a page.
func (b *Book) Text(number int) (string, error) {
	p, err := b.Page(number)
	if err != nil {
		return "", err
	}
	return ExtractText(p.Content), nil
}

// First returns the number of the first page.
func (b *Book) First() int { return b.Pages[0].Number }

// Last returns the number of the last page.
func (b *Book) Last() int { return b.Pages[len(b.Pages)-1].Number }

// Sections returns the sections in page order. A section is titled by its
// first heading.
func (b *Book) Sections() []Section {
	var out []Section
	for _, p := range b.Pages {
		if n := len(out); n > 0 && out[n-1].ID == p.SectionID {
			out[n-1].Pages++
			if out[n-1].Title == "" {
				out[n-1].Title = firstHeading(p.Content)
			}
			continue
		}
		out = append(out, Section{
			ID:        p.SectionID,
			Title:     firstHeading(p.Content),
			StartPage: p.Number,
			Pages:     1,
		})
	}
	return out
}

func firstHeading(items []ContentItem) string {
	for _, it := range items {
		if it.Type == "heading" && strings.TrimSpace(it.Text) != "" {
			return strings.TrimSpace(it.Text)
		}
		if h := firstHeading(it.Content); h != "" {
			return h
		}
	}
	return ""
}
