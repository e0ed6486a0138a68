package book

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ExtractText flattens a content tree into narration text, depth first and
// in document order. Each text contributes "text. ", each item list its
// items joined by ". ", and nested content is walked recursively. The
// result is NFC-normalized and trimmed; whitespace-only input gives "".
func ExtractText(items []ContentItem) string {
	var sb strings.Builder
	writeItems(&sb, items)
	return strings.TrimSpace(norm.NFC.String(sb.String()))
}

func writeItems(sb *strings.Builder, items []ContentItem) {
	for _, it := range items {
		if t := strings.TrimSpace(it.Text); t != "" {
			sb.WriteString(t)
			sb.WriteString(". ")
		}
		var items []string
		for _, item := range it.Items {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			sb.WriteString(strings.Join(items, ". "))
			sb.WriteString(". ")
		}
		if len(it.Content) > 0 {
			writeItems(sb, it.Content)
		}
	}
}
