package chunker_test

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valpere/infinitran/internal/chunker"
)

func mustSplitter(t *testing.T, cfg chunker.Config) *chunker.Splitter {
	t.Helper()
	s, err := chunker.New(cfg)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	return s
}

func smallConfig() chunker.Config {
	return chunker.Config{TargetSize: 100, Overlap: 10, MinSize: 30, MaxSize: 150, IdealMin: 60, IdealMax: 120, MaxDepth: 3}
}

func TestConfig_Validate(t *testing.T) {
	base := chunker.DefaultConfig()
	tests := []struct {
		name    string
		mutate  func(*chunker.Config)
		wantErr bool
	}{
		{"default", func(*chunker.Config) {}, false},
		{"zero min", func(c *chunker.Config) { c.MinSize = 0 }, true},
		{"target below twice min", func(c *chunker.Config) { c.TargetSize = 900 }, true},
		{"max below target", func(c *chunker.Config) { c.MaxSize = 1999 }, true},
		{"overlap equals min", func(c *chunker.Config) { c.Overlap = 500 }, true},
		{"negative overlap", func(c *chunker.Config) { c.Overlap = -1 }, true},
		{"ideal outside bounds", func(c *chunker.Config) { c.IdealMax = 3500 }, true},
		{"zero depth", func(c *chunker.Config) { c.MaxDepth = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreset(t *testing.T) {
	for _, name := range []string{"", "default", "compact", "wide", "WIDE"} {
		cfg, err := chunker.Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q is invalid: %v", name, err)
		}
	}
	if _, err := chunker.Preset("huge"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestSplit_ShortSection(t *testing.T) {
	s := mustSplitter(t, chunker.DefaultConfig())
	chunks := s.Split(3, "Just a short paragraph.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Section != 3 || c.Overlap != 0 || c.Joint != "" || c.Text != "Just a short paragraph." {
		t.Errorf("unexpected chunk %#v", c)
	}
}

func TestSplit_Blank(t *testing.T) {
	s := mustSplitter(t, chunker.DefaultConfig())
	if chunks := s.Split(0, " \n "); chunks != nil {
		t.Errorf("expected no chunks, got %#v", chunks)
	}
}

// A 4,500-character single section with size 2,000 and overlap 200 yields
// about ceil((4500-200)/(2000-200)) chunks, all within bounds.
func TestSplit_SingleSectionScenario(t *testing.T) {
	var sb strings.Builder
	for i := 0; sb.Len() < 4500; i++ {
		fmt.Fprintf(&sb, "Sentence %03d is a simple line of text. ", i)
	}
	body := sb.String()[:4500]

	cfg := chunker.DefaultConfig()
	s := mustSplitter(t, cfg)
	chunks := s.Split(0, body)

	want := int(math.Ceil(float64(4500-cfg.Overlap) / float64(cfg.TargetSize-cfg.Overlap)))
	if len(chunks) < want-1 || len(chunks) > want+1 {
		t.Fatalf("expected %d±1 chunks, got %d", want, len(chunks))
	}
	for _, c := range chunks {
		if !s.Validate(c.Text) {
			t.Errorf("chunk %d out of bounds: %d runes", c.Index, c.Len())
		}
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Overlap == 0 || chunks[i].Overlap > cfg.Overlap {
			t.Errorf("chunk %d overlap %d not in (0, %d]", i, chunks[i].Overlap, cfg.Overlap)
		}
		if !strings.HasSuffix(chunks[i-1].Text, chunks[i].Lead()) {
			t.Errorf("chunk %d lead is not the tail of chunk %d", i, i-1)
		}
		if chunks[i-1].Joint != " " {
			t.Errorf("chunk %d joint = %q, want a space", i-1, chunks[i-1].Joint)
		}
	}
}

func TestSplit_BodiesReassemble(t *testing.T) {
	s := mustSplitter(t, chunker.DefaultConfig())
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		body := generateBody(rng, 500+rng.Intn(12000))
		var sb strings.Builder
		for _, c := range s.Split(0, body) {
			sb.WriteString(c.Body())
		}
		if sb.String() != body {
			t.Fatalf("bodies do not reassemble the section (case %d)", i)
		}
	}
}

func TestSplit_BoundsProperty(t *testing.T) {
	for _, name := range []string{"default", "compact", "wide"} {
		cfg, _ := chunker.Preset(name)
		s := mustSplitter(t, cfg)
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 40; i++ {
			body := generateBody(rng, 200+rng.Intn(20000))
			if utf8.RuneCountInString(body) < cfg.MinSize {
				continue
			}
			for _, c := range s.Split(0, body) {
				if !s.Validate(c.Text) {
					t.Fatalf("preset %s case %d: chunk %d has %d runes, bounds [%d, %d]",
						name, i, c.Index, c.Len(), cfg.MinSize, cfg.MaxSize)
				}
			}
		}
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	s := mustSplitter(t, smallConfig())
	para := strings.Repeat("word ", 10) + "end."
	body := strings.Join([]string{para, para, para, para, para}, "\n\n")

	chunks := s.Split(0, body)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.Joint != "\n\n" || !strings.HasSuffix(c.Text, "\n\n") {
			t.Errorf("chunk %d should end on a paragraph break: %q", c.Index, c.Text)
		}
	}
}

func TestSplit_KeepsFencesWhole(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 1700 {
		sb.WriteString("Prose sentence before the code. ")
	}
	sb.WriteString("\n\n```go\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&sb, "func f%02d() {}\n\n// spacer comment line %02d\n", i, i)
	}
	sb.WriteString("```\n\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("Prose sentence after the code. ")
	}
	body := sb.String()

	s := mustSplitter(t, chunker.DefaultConfig())
	for _, c := range s.Split(0, body) {
		if n := strings.Count(c.Body(), "```"); n%2 != 0 {
			t.Errorf("chunk %d cuts through a fenced block (%d fence markers)", c.Index, n)
		}
	}
}

func TestSplit_CJK(t *testing.T) {
	body := strings.Repeat("这是一个用于测试的中文句子，没有空格。", 300)
	s := mustSplitter(t, chunker.DefaultConfig())
	chunks := s.Split(0, body)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if !s.Validate(c.Text) {
			t.Errorf("chunk %d out of bounds: %d runes", c.Index, c.Len())
		}
		if c.Joint != "" {
			t.Errorf("CJK joint should be empty, got %q", c.Joint)
		}
	}
	if !strings.HasSuffix(chunks[0].Text, "。") {
		t.Error("first chunk should end on a sentence")
	}
}

func TestSplit_NoBoundariesFallsBackToResplit(t *testing.T) {
	s := mustSplitter(t, smallConfig())
	body := strings.Repeat("x", 400)
	chunks := s.Split(0, body)

	var sb strings.Builder
	for _, c := range chunks {
		if c.Len() > 150 {
			t.Errorf("chunk %d has %d runes, above max", c.Index, c.Len())
		}
		sb.WriteString(c.Body())
	}
	if sb.String() != body {
		t.Error("resplit pieces do not reassemble the body")
	}
}

func TestSplitDocument_Indices(t *testing.T) {
	s := mustSplitter(t, smallConfig())
	long := strings.Repeat("Alpha beta gamma delta. ", 20)
	sections := chunker.SplitByHeadings("Lead para.\n\n# One\n" + long + "\n# Two\n\n# Three\n" + long)
	chunks := s.SplitDocument(sections)

	prevSection := -1
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Section < prevSection {
			t.Errorf("chunk %d goes back to section %d", i, c.Section)
		}
		if c.Section == 2 {
			t.Error("empty section must not produce chunks")
		}
		prevSection = c.Section
	}
}

func TestValidateAndPreferred(t *testing.T) {
	s := mustSplitter(t, chunker.DefaultConfig())
	tests := []struct {
		name      string
		text      string
		valid     bool
		preferred bool
	}{
		{"ideal ending on sentence", strings.Repeat("a", 1999) + ".", true, true},
		{"ideal ending on line", strings.Repeat("a", 1999) + "\n", true, true},
		{"ideal without boundary", strings.Repeat("a", 2000), true, false},
		{"valid not ideal", strings.Repeat("a", 599) + ".", true, false},
		{"too short", strings.Repeat("a", 499), false, false},
		{"too long", strings.Repeat("a", 3001), false, false},
		{"cjk sentence", strings.Repeat("字", 1999) + "。", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Validate(tt.text); got != tt.valid {
				t.Errorf("Validate = %v, want %v", got, tt.valid)
			}
			if got := s.Preferred(tt.text); got != tt.preferred {
				t.Errorf("Preferred = %v, want %v", got, tt.preferred)
			}
		})
	}
}

func TestChunk_LeadAndBody(t *testing.T) {
	c := chunker.Chunk{Text: "héllo wörld", Overlap: 6}
	if c.Lead() != "héllo " || c.Body() != "wörld" {
		t.Errorf("Lead=%q Body=%q", c.Lead(), c.Body())
	}
	if c.Len() != 11 {
		t.Errorf("Len = %d, want 11", c.Len())
	}
}

// generateBody builds prose of roughly n runes mixing Latin paragraphs,
// CJK paragraphs and line-broken lists.
func generateBody(rng *rand.Rand, n int) string {
	words := []string{"alpha", "beta", "gamma", "delta", "translation", "context", "window", "chunk", "boundary", "model"}
	var sb strings.Builder
	for utf8.RuneCountInString(sb.String()) < n {
		switch rng.Intn(4) {
		case 0:
			for i := 0; i < 3+rng.Intn(8); i++ {
				sb.WriteString("这是一个中文句子")
				sb.WriteString(strings.Repeat("内容", rng.Intn(10)))
				sb.WriteString("。")
			}
		case 1:
			for i := 0; i < 2+rng.Intn(5); i++ {
				fmt.Fprintf(&sb, "- item %s %s\n", words[rng.Intn(len(words))], words[rng.Intn(len(words))])
			}
		default:
			for i := 0; i < 2+rng.Intn(8); i++ {
				for j := 0; j < 5+rng.Intn(15); j++ {
					if j > 0 {
						sb.WriteString(" ")
					}
					sb.WriteString(words[rng.Intn(len(words))])
				}
				sb.WriteString(". ")
			}
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
