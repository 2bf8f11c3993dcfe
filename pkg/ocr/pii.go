package ocr

import (
	"image"
	"regexp"
	"sort"
	"strings"
)

// Word is one recognised word and where it was found
type Word struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64
	Block      int
	Par        int
	Line       int
}

// Match is a run of words that together look like personal data
type Match struct {
	Label  string
	Text   string
	Bounds image.Rectangle
}

type pattern struct {
	label string
	re    *regexp.Regexp
	check func(string) bool
}

// patterns in priority order; when two overlap the earlier label wins
var patterns = []pattern{
	{label: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{label: "iban", re: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`)},
	{label: "card", re: regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`), check: luhn},
	{label: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{label: "phone", re: regexp.MustCompile(`\+?\(?\d[\d ().\-]{6,}\d`), check: enoughDigits(7)},
	{label: "url", re: regexp.MustCompile(`https?://[^\s]+|www\.[^\s]+`)},
}

type span struct {
	start, end int
	label      string
}

// FindPII groups words into text lines and returns every run that matches
// a personal data pattern. Bounds are the union of the matched words.
func FindPII(words []Word) []Match {
	var matches []Match
	for _, line := range groupLines(words) {
		matches = append(matches, matchLine(line)...)
	}
	return matches
}

// groupLines splits words into text lines, preserving reading order. Words
// share a line when their block, paragraph and line numbers match and their
// boxes sit on the same row, so words without line numbers are still kept
// apart by position.
func groupLines(words []Word) [][]Word {
	type key struct{ block, par, line int }
	var keys []key
	var lines [][]Word

	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		k := key{w.Block, w.Par, w.Line}
		i := -1
		for j, line := range lines {
			if keys[j] == k && sameRow(line[len(line)-1].Bounds, w.Bounds) {
				i = j
				break
			}
		}
		if i < 0 {
			i = len(lines)
			keys = append(keys, k)
			lines = append(lines, nil)
		}
		lines[i] = append(lines[i], w)
	}
	return lines
}

// sameRow reports whether the vertical centre of either box falls within
// the other
func sameRow(a, b image.Rectangle) bool {
	ca := (a.Min.Y + a.Max.Y) / 2
	cb := (b.Min.Y + b.Max.Y) / 2
	return (cb >= a.Min.Y && cb <= a.Max.Y) || (ca >= b.Min.Y && ca <= b.Max.Y)
}

func matchLine(line []Word) []Match {
	// join words with single spaces and remember each word's offsets
	var sb strings.Builder
	offsets := make([][2]int, len(line))
	for i, w := range line {
		if i > 0 {
			sb.WriteByte(' ')
		}
		start := sb.Len()
		sb.WriteString(strings.TrimSpace(w.Text))
		offsets[i] = [2]int{start, sb.Len()}
	}
	text := sb.String()

	var spans []span
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if p.check != nil && !p.check(text[loc[0]:loc[1]]) {
				continue
			}
			spans = append(spans, span{loc[0], loc[1], p.label})
		}
	}
	spans = mergeSpans(spans)

	matches := make([]Match, 0, len(spans))
	for _, s := range spans {
		var bounds image.Rectangle
		for i, off := range offsets {
			if off[0] < s.end && s.start < off[1] {
				bounds = bounds.Union(line[i].Bounds)
			}
		}
		if bounds.Empty() {
			continue
		}
		matches = append(matches, Match{Label: s.label, Text: text[s.start:s.end], Bounds: bounds})
	}
	return matches
}

// mergeSpans joins overlapping spans. The label of the highest priority
// pattern is kept, which is the one found first.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	priority := map[string]int{}
	for i, p := range patterns {
		priority[p.label] = i
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start >= last.end {
			merged = append(merged, s)
			continue
		}
		if s.end > last.end {
			last.end = s.end
		}
		if priority[s.label] < priority[last.label] {
			last.label = s.label
		}
	}
	return merged
}

// luhn validates card numbers, ignoring spaces and dashes
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c == ' ' || c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}

func enoughDigits(want int) func(string) bool {
	return func(s string) bool {
		n := 0
		for _, c := range s {
			if c >= '0' && c <= '9' {
				n++
			}
		}
		return n >= want
	}
}
