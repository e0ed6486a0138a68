package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/muesli/reflow/wordwrap"
)

const (
	defaultWrapWidth = 80
	pagePadding      = 2
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}).
			Render

	imageStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}).
			Render

	bulletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}).
			Render
)

// renderPage lays out a page's content tree as wrapped plain text.
func renderPage(p *book.Page, width int) string {
	if p == nil {
		return ""
	}
	if width <= 0 {
		width = defaultWrapWidth
	}
	var b strings.Builder
	renderItems(&b, p.Content, width)
	return strings.TrimRight(b.String(), "\n")
}

func renderItems(b *strings.Builder, items []book.ContentItem, width int) {
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		switch it.Type {
		case "heading":
			if text != "" {
				b.WriteString(headingStyle(wordwrap.String(text, width)))
				b.WriteString("\n\n")
			}
		case "image":
			caption := strings.TrimSpace(it.Alt)
			if caption == "" {
				caption = it.Src
			}
			b.WriteString(imageStyle(wordwrap.String("[image] "+caption, width)))
			b.WriteString("\n\n")
		default:
			if text != "" {
				b.WriteString(wordwrap.String(text, width))
				b.WriteString("\n\n")
			}
		}

		if len(it.Items) > 0 {
			for _, item := range it.Items {
				writeBullet(b, strings.TrimSpace(item), width)
			}
			b.WriteString("\n")
		}
		renderItems(b, it.Content, width)
	}
}

func writeBullet(b *strings.Builder, item string, width int) {
	for i, line := range strings.Split(wordwrap.String(item, width-2), "\n") {
		if i == 0 {
			b.WriteString(bulletStyle("•") + " ")
		} else {
			b.WriteString("  ")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}
