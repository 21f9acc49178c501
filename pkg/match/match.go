// Package match finds known entity phrases in free text. Matching is
// case-insensitive, tolerant of arbitrary whitespace inside a phrase, and
// restricted to whole-word boundaries. Overlapping hits are resolved with
// the shared longest-match policy.
package match

import (
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/storyarkivist/refengine/pkg/span"
	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// Phrase is one matchable surface: an entity title or an alias.
// Norm is the canonical form produced by textnorm.NormalizePhrase.
// AliasID 0 means the phrase is the entity's title.
type Phrase struct {
	Norm     string
	EntityID int64
	AliasID  int64
}

// Match is one resolved occurrence of a phrase, with byte offsets into the
// original (unfolded) text.
type Match struct {
	Start  int
	End    int
	Phrase Phrase
}

// Span satisfies span.Spanner.
func (m Match) Span() span.Span { return span.Span{Start: m.Start, End: m.End} }

// FindDetailed returns every phrase occurrence that survives overlap
// resolution, ordered by start offset. Offsets point into text, not into
// its folded form, so a phrase spanning a line break still reports the
// original byte range.
func FindDetailed(text string, phrases []Phrase) []Match {
	if len(phrases) == 0 || text == "" {
		return nil
	}
	folded := textnorm.Fold(text)
	if folded.Text == "" {
		return nil
	}

	var hits []Match
	for _, p := range phrases {
		if p.Norm == "" {
			continue
		}
		for from := 0; ; {
			i := strings.Index(folded.Text[from:], p.Norm)
			if i < 0 {
				break
			}
			ns := from + i
			ne := ns + len(p.Norm)
			from = ns + 1
			os, oe := folded.OrigStart(ns), folded.OrigEnd(ne)
			if !textnorm.WholeWord(text, os, oe) {
				continue
			}
			hits = append(hits, Match{Start: os, End: oe, Phrase: p})
		}
	}
	return span.Resolve(hits)
}

// Find returns the deduplicated, ascending entity IDs referenced by text.
func Find(text string, phrases []Phrase) []int64 {
	ms := FindDetailed(text, phrases)
	if len(ms) == 0 {
		return nil
	}
	bm := roaring64.New()
	for _, m := range ms {
		bm.Add(uint64(m.Phrase.EntityID))
	}
	out := make([]int64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int64(it.Next()))
	}
	return out
}

// Prefilter narrows a phrase list to those that could possibly occur in
// text, using a cheap substring test on the folded form. Word boundaries
// are ignored here, so it never drops a phrase the full matcher would
// accept.
func Prefilter(text string, phrases []Phrase) []Phrase {
	if len(phrases) == 0 {
		return nil
	}
	folded := textnorm.Fold(text).Text
	out := make([]Phrase, 0, len(phrases))
	for _, p := range phrases {
		if p.Norm != "" && strings.Contains(folded, p.Norm) {
			out = append(out, p)
		}
	}
	return out
}
