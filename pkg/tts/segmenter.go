package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// sentenceEndPattern matches runs of sentence-terminal punctuation,
// including the Armenian full stop (U+0589).
var sentenceEndPattern = regexp.MustCompile(`[.!?\x{0589}]+`)

// SegmenterConfig contains configuration for the text segmenter
type SegmenterConfig struct {
	// Limit is the soft length cap in characters. A segment is flushed
	// when appending the next sentence would reach or exceed it.
	Limit int
	// FastStart emits the first sentence as its own segment so the first
	// synthesis call returns quickly.
	FastStart bool
}

// DefaultSegmenterConfig returns the default segmenter configuration
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		Limit:     DefaultSegmentLimit,
		FastStart: false,
	}
}

// Segmenter splits narration text into speakable chunks bounded by
// sentence punctuation and a soft length cap.
type Segmenter struct {
	config SegmenterConfig
}

// NewSegmenter creates a segmenter. A non-positive limit selects the default.
func NewSegmenter(config SegmenterConfig) *Segmenter {
	if config.Limit <= 0 {
		config.Limit = DefaultSegmentLimit
	}
	return &Segmenter{config: config}
}

// Sentences splits text at sentence-terminal punctuation, keeping the
// punctuation with its clause. Empty fragments are dropped.
func Sentences(text string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEndPattern.FindAllStringIndex(text, -1) {
		if frag := strings.TrimSpace(text[prev:loc[1]]); frag != "" && !isPunctuationOnly(frag) {
			out = append(out, frag)
		} else if frag != "" && len(out) > 0 {
			// stray punctuation belongs to the previous clause
			out[len(out)-1] += frag
		}
		prev = loc[1]
	}
	if tail := strings.TrimSpace(text[prev:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isPunctuationOnly(s string) bool {
	return sentenceEndPattern.FindString(s) == s
}

// Split produces the ordered segments for text. The result is never empty
// for non-empty input: text without any usable sentence is returned whole.
func (s *Segmenter) Split(text string) []string {
	sentences := Sentences(text)

	var (
		segments []string
		buffer   string
	)

	flush := func() {
		if buffer != "" {
			segments = append(segments, buffer)
			buffer = ""
		}
	}

	for i, sentence := range sentences {
		if buffer == "" {
			buffer = sentence
		} else if utf8.RuneCountInString(buffer)+1+utf8.RuneCountInString(sentence) >= s.config.Limit {
			flush()
			buffer = sentence
		} else {
			buffer += " " + sentence
		}

		if i == 0 && s.config.FastStart {
			flush()
		}
	}
	flush()

	if len(segments) == 0 && strings.TrimSpace(text) != "" {
		return []string{text}
	}
	return segments
}
