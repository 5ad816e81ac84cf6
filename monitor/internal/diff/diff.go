// Package diff summarizes the pricing-relevant difference between two
// normalized page snapshots as a short list of "+ " / "- " lines.
package diff

import (
	"regexp"
	"strings"
)

const (
	// MaxChanges bounds the number of lines returned by Focus.Diff.
	MaxChanges = 12

	// MaxLineRunes bounds the displayed length of one emitted unit. Longer
	// units are shown as an excerpt around the changed text.
	MaxLineRunes = 280

	AddedPrefix   = "+ "
	RemovedPrefix = "- "
)

// DefaultFocus matches units that look like pricing or plan content.
var DefaultFocus = regexp.MustCompile(`(?i)[$€£¥₹%]|plan|pricing|price|month|year|annual|pro|starter|basic|premium|business|enterprise`)

// unitSplit separates candidate units: a newline or a run of two or more
// whitespace characters, Unicode spaces included.
var unitSplit = regexp.MustCompile(`\n|[\s\p{Z}\x{FEFF}]{2,}`)

// Differ produces a bounded, human-readable change summary.
type Differ interface {
	Diff(old, new string) []string
}

// Focus is the default Differ. The zero value uses DefaultFocus, MaxChanges
// and MaxLineRunes.
type Focus struct {
	Pattern      *regexp.Regexp
	MaxChanges   int
	MaxLineRunes int
}

var _ Differ = Focus{}

// Diff returns additions (units only in new, in new's order) followed by
// removals (units only in old, in old's order), restricted to focus units
// and capped. Identical inputs yield an empty, non-nil slice.
func (f Focus) Diff(old, new string) []string {
	pattern := f.Pattern
	if pattern == nil {
		pattern = DefaultFocus
	}
	limit := f.MaxChanges
	if limit <= 0 {
		limit = MaxChanges
	}
	width := f.MaxLineRunes
	if width <= 0 {
		width = MaxLineRunes
	}

	oldUnits := focusUnits(old, pattern)
	newUnits := focusUnits(new, pattern)
	added := missingFrom(newUnits, toSet(oldUnits))
	removed := missingFrom(oldUnits, toSet(newUnits))

	changes := make([]string, 0, limit)
	for _, u := range added {
		if len(changes) == limit {
			return changes
		}
		changes = append(changes, AddedPrefix+excerpt(u, removed, width))
	}
	for _, u := range removed {
		if len(changes) == limit {
			return changes
		}
		changes = append(changes, RemovedPrefix+excerpt(u, added, width))
	}
	return changes
}

// Units splits text into trimmed, non-empty candidate units.
func Units(text string) []string {
	parts := unitSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// focusUnits returns the distinct units matching pattern, first occurrence
// order.
func focusUnits(text string, pattern *regexp.Regexp) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, u := range Units(text) {
		if !pattern.MatchString(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func toSet(units []string) map[string]struct{} {
	m := make(map[string]struct{}, len(units))
	for _, u := range units {
		m[u] = struct{}{}
	}
	return m
}

func missingFrom(units []string, set map[string]struct{}) []string {
	var out []string
	for _, u := range units {
		if _, ok := set[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// excerpt cuts u to a width-rune window marked with ellipses. The window is
// centred on the first rune where u departs from its closest counterpart,
// the unit in others sharing the longest prefix with it, so a price change
// deep inside a long unit stays visible.
func excerpt(u string, others []string, width int) string {
	r := []rune(u)
	if len(r) <= width {
		return u
	}
	at := 0
	for _, o := range others {
		if n := commonPrefix(r, []rune(o)); n > at {
			at = n
		}
	}
	start := min(max(at-width/2, 0), len(r)-width)
	end := start + width
	out := string(r[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(r) {
		out += "…"
	}
	return out
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
