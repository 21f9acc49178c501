// Package index holds the in-memory alias index for one project: every
// active alias and entity title, deduplicated by normalized form. A single
// Aho-Corasick automaton over the normalized phrases serves both exact
// dictionary lookup and the fast preview scan. The precise whole-word
// matcher in pkg/match consumes the same phrase list.
package index

import (
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/storyarkivist/refengine/pkg/match"
	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// Entry ties a normalized phrase to its source alias.
type Entry struct {
	Norm     string
	Text     string // surface as stored
	EntityID int64
	AliasID  int64 // 0 for entity titles
}

// Index is an immutable snapshot of a project's matchable surfaces.
// Rebuild it whenever aliases change.
type Index struct {
	entries []Entry
	byNorm  map[string][]Entry
	phrases []match.Phrase

	patterns []string
	ac       ahocorasick.AhoCorasick
	hasAC    bool
}

// Row is the raw input: one alias or title surface per row.
type Row struct {
	Text     string
	EntityID int64
	AliasID  int64
}

// Build normalizes, deduplicates and indexes the given rows. Rows whose
// surface normalizes to the empty string are dropped. Duplicate
// (norm, entity) pairs keep the first row seen, so titles shadow aliases
// with the same surface.
func Build(rows []Row) *Index {
	idx := &Index{byNorm: make(map[string][]Entry)}

	type key struct {
		norm     string
		entityID int64
	}
	seen := make(map[key]bool)

	for _, r := range rows {
		norm := textnorm.NormalizePhrase(r.Text)
		if norm == "" {
			continue
		}
		k := key{norm, r.EntityID}
		if seen[k] {
			continue
		}
		seen[k] = true

		e := Entry{Norm: norm, Text: r.Text, EntityID: r.EntityID, AliasID: r.AliasID}
		idx.entries = append(idx.entries, e)
		if len(idx.byNorm[norm]) == 0 {
			idx.patterns = append(idx.patterns, norm)
		}
		idx.byNorm[norm] = append(idx.byNorm[norm], e)
		idx.phrases = append(idx.phrases, match.Phrase{
			Norm:     norm,
			EntityID: r.EntityID,
			AliasID:  r.AliasID,
		})
	}

	if len(idx.patterns) > 0 {
		builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
			AsciiCaseInsensitive: true,
			MatchOnlyWholeWords:  true,
			MatchKind:            ahocorasick.LeftMostLongestMatch,
		})
		idx.ac = builder.Build(idx.patterns)
		idx.hasAC = true
	}
	return idx
}

// Len returns the number of indexed entries after dedup.
func (x *Index) Len() int { return len(x.entries) }

// Phrases returns the phrase list for the precise matcher. Callers must
// not mutate it.
func (x *Index) Phrases() []match.Phrase { return x.phrases }

// Entries returns every indexed entry. Callers must not mutate it.
func (x *Index) Entries() []Entry { return x.entries }

// Lookup resolves a surface form to the entries sharing its normalized
// form. It answers "is this exact phrase a known alias" without scanning.
func (x *Index) Lookup(surface string) []Entry {
	return x.byNorm[textnorm.NormalizePhrase(surface)]
}

// Hit is one automaton match from QuickScan.
type Hit struct {
	Start   int
	End     int
	Surface string
	Entries []Entry
}

// QuickScan runs the automaton over the raw text and reports leftmost-
// longest hits. It is cheaper than the full matcher but only approximate:
// it sees the text as-is, so an alias split across a line break or odd
// spacing will not hit. Use it for live previews, not for reconciliation.
func (x *Index) QuickScan(text string) []Hit {
	if !x.hasAC || text == "" {
		return nil
	}
	var out []Hit
	lastEnd := 0
	for _, m := range x.ac.FindAll(text) {
		// The iterator resumes one byte past each match start, so a
		// shorter pattern contained in an accepted match still comes
		// out. Drop anything overlapping the previous hit.
		if m.Start() < lastEnd {
			continue
		}
		surface := text[m.Start():m.End()]
		entries := x.byNorm[textnorm.NormalizePhrase(surface)]
		if len(entries) == 0 {
			continue
		}
		lastEnd = m.End()
		out = append(out, Hit{
			Start:   m.Start(),
			End:     m.End(),
			Surface: surface,
			Entries: entries,
		})
	}
	return out
}
