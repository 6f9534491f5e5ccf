// Package chunker segments a markdown document for translation. Stage one
// (SplitByHeadings) cuts the document into heading-delimited sections; stage
// two (Splitter) cuts each section body into size-bounded chunks at the
// strongest nearby boundary: paragraph break, line break, then Latin or CJK
// sentence end. Consecutive chunks of a section share an overlap that the
// translator sees as context only. Over-long units are split again around
// their midpoint by Resplit.
//
// All sizes are counted in runes.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config bounds chunk sizes. TargetSize is what the greedy pass aims for;
// every chunk lies within [MinSize, MaxSize] unless the whole section is
// shorter than MinSize or no boundary is left after MaxDepth resplits.
type Config struct {
	TargetSize int `mapstructure:"chunk_size" json:"chunk_size"`
	Overlap    int `mapstructure:"overlap" json:"overlap"`
	MinSize    int `mapstructure:"min_size" json:"min_size"`
	MaxSize    int `mapstructure:"max_size" json:"max_size"`
	IdealMin   int `mapstructure:"ideal_min" json:"ideal_min"`
	IdealMax   int `mapstructure:"ideal_max" json:"ideal_max"`
	MaxDepth   int `mapstructure:"max_depth" json:"max_depth"`
}

// DefaultConfig returns the canonical bounds.
func DefaultConfig() Config {
	return Config{
		TargetSize: 2000,
		Overlap:    200,
		MinSize:    500,
		MaxSize:    3000,
		IdealMin:   1500,
		IdealMax:   2500,
		MaxDepth:   4,
	}
}

// Preset names accepted by Preset.
const (
	PresetDefault = "default"
	PresetCompact = "compact"
	PresetWide    = "wide"
)

// Preset returns a named tuning preset. "compact" suits models with small
// context windows, "wide" suits long-context models.
func Preset(name string) (Config, error) {
	switch strings.ToLower(name) {
	case "", PresetDefault:
		return DefaultConfig(), nil
	case PresetCompact:
		return Config{TargetSize: 1000, Overlap: 100, MinSize: 250, MaxSize: 1500, IdealMin: 750, IdealMax: 1250, MaxDepth: 4}, nil
	case PresetWide:
		return Config{TargetSize: 4000, Overlap: 400, MinSize: 1000, MaxSize: 6000, IdealMin: 3000, IdealMax: 5000, MaxDepth: 4}, nil
	}
	return Config{}, fmt.Errorf("unknown chunking preset %q", name)
}

// Validate checks the relations the splitter depends on.
func (c Config) Validate() error {
	switch {
	case c.MinSize <= 0:
		return fmt.Errorf("min_size must be positive, got %d", c.MinSize)
	case c.TargetSize < 2*c.MinSize:
		return fmt.Errorf("chunk_size (%d) must be at least twice min_size (%d)", c.TargetSize, c.MinSize)
	case c.MaxSize < c.TargetSize:
		return fmt.Errorf("max_size (%d) must not be below chunk_size (%d)", c.MaxSize, c.TargetSize)
	case c.Overlap < 0 || c.Overlap >= c.MinSize:
		return fmt.Errorf("overlap (%d) must be in [0, min_size)", c.Overlap)
	case c.IdealMin < c.MinSize || c.IdealMax < c.IdealMin || c.IdealMax > c.MaxSize:
		return fmt.Errorf("ideal range [%d, %d] must lie within [%d, %d]", c.IdealMin, c.IdealMax, c.MinSize, c.MaxSize)
	case c.MaxDepth < 1:
		return fmt.Errorf("max_depth must be at least 1, got %d", c.MaxDepth)
	}
	return nil
}

// Chunk is one translation unit. Index is the document-wide sequence
// number and the only ordering key used when reassembling output.
type Chunk struct {
	Index   int
	Section int
	// Text includes the leading overlap copied from the previous chunk.
	Text string
	// Overlap is the rune length of that leading copy.
	Overlap int
	// Joint separates this chunk's body from the next chunk's body in the
	// source: "\n\n", "\n", " " or "". Empty for the last chunk of a section.
	Joint string
}

func (c Chunk) Len() int { return utf8.RuneCountInString(c.Text) }

// Lead returns the overlap copied from the previous chunk.
func (c Chunk) Lead() string {
	if c.Overlap <= 0 {
		return ""
	}
	return string([]rune(c.Text)[:c.Overlap])
}

// Body returns the part of the chunk that is new to this chunk.
func (c Chunk) Body() string {
	if c.Overlap <= 0 {
		return c.Text
	}
	return string([]rune(c.Text)[c.Overlap:])
}

type Splitter struct {
	cfg Config
}

func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

func (s *Splitter) Config() Config { return s.cfg }

// Validate reports whether text is within [MinSize, MaxSize].
func (s *Splitter) Validate(text string) bool {
	n := utf8.RuneCountInString(text)
	return n >= s.cfg.MinSize && n <= s.cfg.MaxSize
}

// Preferred is the stronger acceptance: within the ideal range and ending on
// a paragraph, line or sentence boundary.
func (s *Splitter) Preferred(text string) bool {
	runes := []rune(text)
	n := len(runes)
	return s.Validate(text) && n >= s.cfg.IdealMin && n <= s.cfg.IdealMax && endsOnBoundary(runes)
}

// SplitDocument chunks every section and numbers the chunks in document
// order.
func (s *Splitter) SplitDocument(sections []Section) []Chunk {
	var chunks []Chunk
	for _, sec := range sections {
		for _, c := range s.Split(sec.Index, sec.Body) {
			c.Index = len(chunks)
			chunks = append(chunks, c)
		}
	}
	return chunks
}

type span struct {
	start, lead, end int
}

// Split chunks a single section body. Returned indices are local to the
// section.
func (s *Splitter) Split(section int, body string) []Chunk {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	runes := []rune(body)
	var chunks []Chunk
	for _, sp := range s.greedy(runes) {
		piece := runes[sp.start:sp.end]
		tail := ""
		if sp.end < len(runes) {
			tail = joint(runes, sp.end)
		}
		if len(piece) <= s.cfg.MaxSize {
			chunks = append(chunks, Chunk{Section: section, Text: string(piece), Overlap: sp.lead, Joint: tail})
			continue
		}

		ranges := s.resplitRanges(piece)
		for i, r := range ranges {
			c := Chunk{Section: section, Text: string(piece[r[0]:r[1]]), Joint: tail}
			if i == 0 && sp.lead < r[1]-r[0] {
				c.Overlap = sp.lead
			}
			if i+1 < len(ranges) {
				c.Joint = joint(piece, r[1])
			}
			chunks = append(chunks, c)
		}
	}
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// greedy walks the body producing spans of about TargetSize runes. Every
// cut leaves at least MinSize new runes for the rest of the section so
// that the last chunk is never undersized.
func (s *Splitter) greedy(runes []rune) []span {
	n := len(runes)
	cuts := scanCuts(runes)
	fences := fenceRanges(string(runes))

	var spans []span
	start, lead := 0, 0
	for {
		if n-start <= s.cfg.TargetSize {
			spans = append(spans, span{start, lead, n})
			return spans
		}

		lo := start + s.cfg.MinSize
		hi := min(start+s.cfg.TargetSize, n-s.cfg.MinSize)
		fwd := min(start+s.cfg.MaxSize, n-s.cfg.MinSize)

		end, ok := pickBackward(cuts, fences, lo, hi)
		if !ok {
			end, ok = pickForward(cuts, fences, hi+1, fwd, numKinds)
		}
		if !ok {
			// No boundary within MaxSize: run to the next one and let the
			// resplitter break the oversized unit.
			end, ok = pickForward(cuts, fences, fwd+1, n-s.cfg.MinSize, 1)
			if !ok {
				end = n
			}
		}

		spans = append(spans, span{start, lead, end})
		if end >= n {
			return spans
		}
		next := s.leadStart(runes, end)
		start, lead = next, end-next
	}
}

// leadStart returns where the overlap for the chunk after end begins,
// snapped forward to a word start when possible.
func (s *Splitter) leadStart(runes []rune, end int) int {
	if s.cfg.Overlap == 0 {
		return end
	}
	from := end - s.cfg.Overlap
	for i := from; i < end-1; i++ {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return from
}

// pickBackward returns the last cut in [lo, hi] of the strongest kind
// present.
func pickBackward(cuts []cut, fences [][2]int, lo, hi int) (int, bool) {
	for kind := 0; kind < numKinds; kind++ {
		for i := len(cuts) - 1; i >= 0; i-- {
			c := cuts[i]
			if c.pos < lo {
				break
			}
			if c.pos <= hi && c.kind == kind && !insideFence(fences, c.pos) {
				return c.pos, true
			}
		}
	}
	return 0, false
}

// pickForward returns the first cut in [lo, hi], considering kinds in
// priority order when byKind covers more than one kind.
func pickForward(cuts []cut, fences [][2]int, lo, hi, byKind int) (int, bool) {
	if lo > hi {
		return 0, false
	}
	for kind := 0; kind < byKind; kind++ {
		for _, c := range cuts {
			if c.pos > hi {
				break
			}
			if c.pos >= lo && (byKind == 1 || c.kind == kind) && !insideFence(fences, c.pos) {
				return c.pos, true
			}
		}
	}
	return 0, false
}
