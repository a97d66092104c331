package textsplit

import (
	"fmt"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

func sampleText() string {
	var b strings.Builder
	for p := 0; p < 12; p++ {
		for s := 0; s < 9; s++ {
			fmt.Fprintf(&b, "Paragraph %d sentence %d talks about item-%03d and nothing else. ", p, s, p*10+s)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func mustNew(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", size, overlap, err)
	}
	return s
}

func TestNewRejectsBadParameters(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-1, 0},
		{100, -1},
		{100, 100},
		{100, 150},
	}
	for _, c := range cases {
		if _, err := New(c.size, c.overlap); err == nil {
			t.Errorf("New(%d, %d) expected error", c.size, c.overlap)
		}
	}
}

func TestSplitShortText(t *testing.T) {
	s := mustNew(t, DefaultSize, DefaultOverlap)

	got := s.Split("  hello world \n")
	if len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("unexpected chunks: %q", got)
	}

	if got := s.Split(" \n\n  "); len(got) != 0 {
		t.Fatalf("whitespace-only text should give no chunks, got %q", got)
	}
}

func TestSplitRespectsSizeBound(t *testing.T) {
	s := mustNew(t, DefaultSize, DefaultOverlap)
	text := sampleText()

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultSize {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if c == "" || strings.TrimSpace(c) != c {
			t.Errorf("chunk %d is not trimmed: %q", i, c)
		}
	}
}

func TestSplitCoversText(t *testing.T) {
	s := mustNew(t, 300, 50)
	text := sampleText()

	covered := make([]bool, len(text))
	from := 0
	for i, c := range s.Split(text) {
		pos := strings.Index(text[from:], c)
		if pos < 0 {
			t.Fatalf("chunk %d is not a span of the input: %q", i, c)
		}
		start := from + pos
		for j := start; j < start+len(c); j++ {
			covered[j] = true
		}
		from = start + 1
	}

	for i, r := range text {
		if !unicode.IsSpace(r) && !covered[i] {
			t.Fatalf("byte %d (%q) not covered by any chunk", i, r)
		}
	}
}

func TestSplitOverlapsConsecutiveChunks(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "w%04d ", i)
	}
	s := mustNew(t, 100, 20)

	chunks := s.Split(b.String())
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i])[0]
		if !strings.Contains(chunks[i-1], first) {
			t.Errorf("chunk %d starts with %q which is not in chunk %d", i, first, i-1)
		}
	}
}

func TestSplitPrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("alpha beta gamma. ", 33)
	p2 := strings.Repeat("delta epsilon zeta. ", 30)
	s := mustNew(t, DefaultSize, DefaultOverlap)

	got := s.Split(p1 + "\n\n" + p2)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0] != strings.TrimSpace(p1) || got[1] != strings.TrimSpace(p2) {
		t.Fatalf("chunks do not follow paragraph boundaries: %q", got)
	}
}

func TestSplitCountsRunes(t *testing.T) {
	s := mustNew(t, DefaultSize, DefaultOverlap)
	text := strings.Repeat("é", 2500)

	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	if n := utf8.RuneCountInString(chunks[0]); n != DefaultSize {
		t.Fatalf("first chunk has %d runes, want %d", n, DefaultSize)
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultSize {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	s := mustNew(t, 250, 40)
	text := sampleText()

	a := s.Split(text)
	b := s.Split(text)
	if len(a) != len(b) {
		t.Fatalf("chunk count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("chunk %d differs", i)
		}
	}
}
