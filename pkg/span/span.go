// Package span holds the byte-range type used across matching and
// extraction, plus the shared overlap resolution policy.
package span

import "sort"

// Span is a half-open byte range [Start, End) into some text.
type Span struct {
	Start int
	End   int
}

// Len returns the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Slice returns the text covered by the span, clamped to the text bounds.
func (s Span) Slice(text string) string {
	a, b := s.Start, s.End
	if a < 0 {
		a = 0
	}
	if b > len(text) {
		b = len(text)
	}
	if a >= b {
		return ""
	}
	return text[a:b]
}

// Spanner is anything carrying a byte range.
type Spanner interface {
	Span() Span
}

// Resolve picks a non-overlapping subset of candidates: longer spans win,
// ties go to the earlier start, and among survivors first come first kept.
// The result is ordered by start offset.
func Resolve[T Spanner](candidates []T) []T {
	if len(candidates) == 0 {
		return nil
	}
	order := make([]T, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].Span(), order[j].Span()
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Start < b.Start
	})

	kept := make([]T, 0, len(order))
	for _, c := range order {
		cs := c.Span()
		ok := true
		for _, k := range kept {
			if cs.Overlaps(k.Span()) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Span().Start < kept[j].Span().Start
	})
	return kept
}
