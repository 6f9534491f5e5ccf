package chunker

// Resplit breaks an over-long unit into pieces no longer than MaxSize,
// cutting near the midpoint each time. Recursion stops at MaxDepth; a piece
// still too long at that depth is returned as it is.
func (s *Splitter) Resplit(text string) []string {
	runes := []rune(text)
	ranges := s.resplitRanges(runes)
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = string(runes[r[0]:r[1]])
	}
	return out
}

func (s *Splitter) resplitRanges(runes []rune) [][2]int {
	var out [][2]int
	s.resplit(runes, 0, len(runes), 0, &out)
	return out
}

func (s *Splitter) resplit(runes []rune, from, to, depth int, out *[][2]int) {
	if to-from <= s.cfg.MaxSize || depth >= s.cfg.MaxDepth {
		*out = append(*out, [2]int{from, to})
		return
	}
	p := from + s.splitPoint(runes[from:to])
	s.resplit(runes, from, p, depth+1, out)
	s.resplit(runes, p, to, depth+1, out)
}

// splitPoint picks the cut for one unit. Within a symmetric window around
// the midpoint it takes the boundary closest to the midpoint (ties: stronger
// kind, then the left one). Without boundaries it falls back to the nearest
// terminal punctuation in the window, then to the exact midpoint.
// The window keeps both halves at least MinSize long when possible.
func (s *Splitter) splitPoint(seg []rune) int {
	n := len(seg)
	mid := n / 2
	radius := min(n/4, mid-s.cfg.MinSize)
	if radius < 0 {
		radius = 0
	}
	lo, hi := mid-radius, mid+radius

	fences := fenceRanges(string(seg))
	best, bestKind, bestDist := -1, 0, 0
	for _, c := range scanCuts(seg) {
		if c.kind > kindSentenceCJK || c.pos < lo || c.pos > hi || c.pos <= 0 || c.pos >= n {
			continue
		}
		if insideFence(fences, c.pos) {
			continue
		}
		d := abs(c.pos - mid)
		if best < 0 || d < bestDist || (d == bestDist && c.kind < bestKind) {
			best, bestKind, bestDist = c.pos, c.kind, d
		}
	}
	if best >= 0 {
		return best
	}

	if p, ok := nearest(seg, mid, radius, isTerminal); ok {
		return p
	}
	if mid == 0 {
		return 1
	}
	return mid
}

// nearest finds the position after the rune closest to mid matching fn.
func nearest(seg []rune, mid, radius int, fn func(rune) bool) (int, bool) {
	for d := 0; d <= radius; d++ {
		for _, p := range [2]int{mid - d, mid + d} {
			if p > 0 && p < len(seg) && fn(seg[p-1]) {
				return p, true
			}
		}
	}
	return 0, false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
