package main

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/internal/cache"
	"github.com/dgnsrekt/bookvoice/internal/progress"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const testBook = `
id: cli
title: CLI Book
pages:
  - pageNumber: 2
    content:
      - type: paragraph
        text: Second page
  - pageNumber: 3
    content: []
  - pageNumber: 5
    content:
      - type: paragraph
        text: Fifth page
`

func parseTestBook(t *testing.T) *book.Book {
	t.Helper()
	b, err := book.Parse([]byte(testBook), "cli")
	if err != nil {
		t.Fatalf("Failed to parse test book: %v", err)
	}
	return b
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in       string
		from, to int
		wantErr  bool
	}{
		{"3", 3, 3, false},
		{"3-7", 3, 7, false},
		{" 2 - 4 ", 2, 4, false},
		{"7-3", 0, 0, true},
		{"a-3", 0, 0, true},
		{"3-", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			from, to, err := parseRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseRange(%q) error = %v", tt.in, err)
			}
			if from != tt.from || to != tt.to {
				t.Errorf("parseRange(%q) = %d, %d, want %d, %d", tt.in, from, to, tt.from, tt.to)
			}
		})
	}
}

func TestSelectPages(t *testing.T) {
	b := parseTestBook(t)

	tests := []struct {
		name    string
		page    int
		pages   string
		want    []int
		wantErr error
	}{
		{"default first page", 0, "", []int{2}, nil},
		{"single page", 5, "", []int{5}, nil},
		{"unknown page", 4, "", nil, book.ErrPageNotFound},
		{"range skips gaps", 0, "1-5", []int{2, 3, 5}, nil},
		{"empty range", 0, "6-9", nil, book.ErrPageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectPages(b, tt.page, tt.pages)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectPages failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("selectPages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSegmentRow(t *testing.T) {
	row := segmentRow(1, "A   short\nsegment.", 80)
	if !strings.Contains(row, "A short segment.") {
		t.Errorf("Expected collapsed whitespace, got %q", row)
	}

	long := strings.Repeat("word ", 40)
	row = segmentRow(12, long, 40)
	if !strings.HasSuffix(row, "…") {
		t.Errorf("Expected truncated row, got %q", row)
	}
	if w := runewidth.StringWidth(row); w > 40 {
		t.Errorf("Row too wide: %d cells", w)
	}
}

func TestPrintText(t *testing.T) {
	b := parseTestBook(t)

	var buf bytes.Buffer
	if err := printText(&buf, b.Pages, nil, 80); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"page 2", "Second page.", "page 3", "(no text)", "Fifth page."} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	seg := tts.NewSegmenter(tts.DefaultSegmenterConfig())
	if err := printText(&buf, b.Pages[2:], seg, 80); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Fifth page.") {
		t.Errorf("Expected segment row, got:\n%s", buf.String())
	}
}

func TestPrintProgress(t *testing.T) {
	now := time.Now()
	var buf bytes.Buffer
	printProgress(&buf, 3,
		[]progress.Narration{{Page: 2, Count: 1, CompletedAt: now}, {Page: 5, Count: 3, CompletedAt: now}},
		[]progress.Bookmark{{Page: 5, CreatedAt: now}},
	)

	out := buf.String()
	for _, want := range []string{"2 of 3 pages", "p.2", "once", "3 times", "bookmarks 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestPrintCacheStats(t *testing.T) {
	var buf bytes.Buffer
	printCacheStats(&buf, cache.ManagerStats{
		Memory: &cache.Stats{Items: 1, Size: 2048, Capacity: 32 << 20},
		Disk:   &cache.Stats{Items: 4, Size: 1 << 20, Capacity: 512 << 20},
		Hits:   3,
		Misses: 1,
	})

	out := buf.String()
	for _, want := range []string{"1 entry", "4 entries", "2.0 kB", "75%"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("Default config does not parse: %v", err)
	}
	cfg, err := tts.LoadConfig(v)
	if err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
	if cfg.Playback.SegmentLimit != tts.DefaultSegmentLimit {
		t.Errorf("Expected segment limit %d, got %d", tts.DefaultSegmentLimit, cfg.Playback.SegmentLimit)
	}
}

func TestValidateOptions(t *testing.T) {
	t.Cleanup(func() { startPage = 0 })

	for _, cmd := range []*cobra.Command{rootCmd, playCmd, textCmd} {
		t.Run(cmd.Name(), func(t *testing.T) {
			startPage = 0
			if err := validateOptions(cmd); err != nil {
				t.Fatalf("validateOptions failed: %v", err)
			}
			if width == 0 {
				t.Error("Expected a default width")
			}
		})
	}

	startPage = -1
	if err := validateOptions(rootCmd); err == nil {
		t.Error("Expected an error for a negative start page")
	}
}
