// Package textsplit implements recursive character splitting: text is cut on
// the coarsest separator present (paragraph, line, sentence, word, rune) and
// the pieces are merged back into chunks of at most Size runes, with
// consecutive chunks sharing up to Overlap runes.
package textsplit

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// DefaultSeparators go from coarse to fine. The empty separator splits into
// single runes, which guarantees the size bound.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the chunks of text in document order. Chunks are trimmed of
// surrounding whitespace and never empty.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var finer []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) < s.Size {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			out = appendTrimmed(out, piece)
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most Size runes and
// carries the tail of each chunk (up to Overlap runes) into the next one.
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.Size && len(current) > 0 {
			out = appendTrimmed(out, strings.Join(current, ""))
			for total > s.Overlap || (total+n > s.Size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	return appendTrimmed(out, strings.Join(current, ""))
}

// splitKeep splits on sep and keeps sep at the start of every piece but the
// first. Empty pieces are dropped.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendTrimmed(out []string, chunk string) []string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return out
	}
	return append(out, chunk)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
