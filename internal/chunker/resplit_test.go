package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func lens(pieces []string) []int {
	out := make([]int, len(pieces))
	for i, p := range pieces {
		out[i] = utf8.RuneCountInString(p)
	}
	return out
}

func TestResplit(t *testing.T) {
	s := mustSplitter(t, smallConfig())

	tests := []struct {
		name      string
		text      string
		firstLen  int
		numPieces int
	}{
		{
			name:      "paragraph nearest the midpoint",
			text:      strings.Repeat("x", 97) + "\n\n" + strings.Repeat("y", 101),
			firstLen:  99,
			numPieces: 2,
		},
		{
			name:      "equal distance prefers stronger kind",
			text:      strings.Repeat("a", 97) + ". bb\n" + strings.Repeat("c", 98),
			firstLen:  102,
			numPieces: 2,
		},
		{
			name:      "equal distance and kind prefers left",
			text:      strings.Repeat("a", 97) + ". bb. " + strings.Repeat("c", 97),
			firstLen:  98,
			numPieces: 2,
		},
		{
			name:      "terminal punctuation as last resort",
			text:      strings.Repeat("a", 120) + "," + strings.Repeat("a", 79),
			firstLen:  121,
			numPieces: 2,
		},
		{
			name:      "exact midpoint without any marker",
			text:      strings.Repeat("a", 200),
			firstLen:  100,
			numPieces: 2,
		},
		{
			name:      "whitespace is not a fallback boundary",
			text:      strings.Repeat("a", 89) + " " + strings.Repeat("b", 110),
			firstLen:  100,
			numPieces: 2,
		},
		{
			name:      "within bounds is left alone",
			text:      strings.Repeat("a", 150),
			firstLen:  150,
			numPieces: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces := s.Resplit(tt.text)
			if len(pieces) != tt.numPieces {
				t.Fatalf("expected %d pieces, got %v", tt.numPieces, lens(pieces))
			}
			if got := utf8.RuneCountInString(pieces[0]); got != tt.firstLen {
				t.Errorf("first piece has %d runes, want %d", got, tt.firstLen)
			}
			if strings.Join(pieces, "") != tt.text {
				t.Error("pieces do not reassemble the input")
			}
		})
	}
}

func TestResplit_Recurses(t *testing.T) {
	s := mustSplitter(t, smallConfig())
	pieces := s.Resplit(strings.Repeat("word ", 200))
	for _, n := range lens(pieces) {
		if n > 150 {
			t.Errorf("piece of %d runes exceeds max: %v", n, lens(pieces))
		}
	}
}

func TestResplit_DepthExhausted(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxDepth = 1
	s := mustSplitter(t, cfg)

	pieces := s.Resplit(strings.Repeat("a", 400))
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces at depth 1, got %v", lens(pieces))
	}
	for _, n := range lens(pieces) {
		if n != 200 {
			t.Errorf("expected oversized halves of 200 runes, got %v", lens(pieces))
		}
	}
}
