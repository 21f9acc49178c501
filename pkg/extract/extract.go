// Package extract proposes new-entity candidates from draft text. Three
// passes feed one pipeline: a named-entity tagger (primary), a
// capitalization heuristic (always on), and an optional noun-phrase chunk
// pass for very lenient sweeps. Surfaces already registered as aliases are
// skipped, and overlapping proposals keep the longest span.
package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/storyarkivist/refengine/pkg/match"
	"github.com/storyarkivist/refengine/pkg/span"
	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// Candidate sources.
const (
	SourceNER       = "ner"
	SourceHeuristic = "heuristic"
	SourceChunk     = "chunk"
	SourceQuick     = "quick"
)

// Candidate is one proposed surface with its span in the input text.
type Candidate struct {
	Surface    string
	Start      int
	End        int
	Kind       string
	Source     string
	Confidence float64
}

// Span satisfies span.Spanner.
func (c Candidate) Span() span.Span { return span.Span{Start: c.Start, End: c.End} }

// Result is the outcome of one extraction run. Degraded means the tagger
// failed and only the heuristic passes contributed.
type Result struct {
	Candidates []Candidate
	Degraded   bool
}

// Options tunes the extractor.
type Options struct {
	// Chunks enables the noun-phrase pass. It is noisy and off by default.
	Chunks bool
}

// Extractor runs the candidate pipeline.
type Extractor struct {
	tagger Tagger
	opts   Options
	log    *zap.Logger
}

// New builds an Extractor. A nil tagger falls back to DefaultTagger, a nil
// logger to zap.NewNop.
func New(tagger Tagger, opts Options, log *zap.Logger) *Extractor {
	if tagger == nil {
		tagger = DefaultTagger()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{tagger: tagger, opts: opts, log: log}
}

// Extract runs all passes over text. known lists the phrases already
// registered as entities or aliases; their surfaces are never proposed
// again, and chunk proposals overlapping a known occurrence are dropped.
// A tagger failure degrades the run instead of failing it.
func (x *Extractor) Extract(text string, known []match.Phrase) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	knownNorms := make(map[string]bool, len(known))
	for _, p := range known {
		knownNorms[p.Norm] = true
	}

	knownSpans := match.FindDetailed(text, known)

	var res Result
	ents, err := x.tagger.Entities(text)
	if err != nil {
		res.Degraded = true
		x.log.Warn("entity tagger failed, falling back to heuristics", zap.Error(err))
	} else {
		res.Candidates = append(res.Candidates, taggerPass(text, ents, knownNorms)...)
	}

	// The heuristic and chunk passes only see raw capitalization, so
	// fragments of a known occurrence ("Black", "Gate" inside a known
	// "Black Gate") would come back as proposals without the span filter.
	for _, c := range heuristicPass(text, knownNorms) {
		if insideAnyMatch(c, knownSpans) {
			continue
		}
		res.Candidates = append(res.Candidates, c)
	}

	if x.opts.Chunks {
		for _, c := range chunkPass(text) {
			if insideAnyMatch(c, knownSpans) {
				continue
			}
			res.Candidates = append(res.Candidates, c)
		}
	}

	// Drop surfaces that are known phrases outright.
	kept := res.Candidates[:0]
	for _, c := range res.Candidates {
		if knownNorms[textnorm.NormalizePhrase(c.Surface)] {
			continue
		}
		kept = append(kept, c)
	}

	// Dedup exact surface and span.
	type key struct {
		surface string
		start   int
		end     int
	}
	seen := make(map[key]bool, len(kept))
	uniq := kept[:0]
	for _, c := range kept {
		k := key{strings.ToLower(strings.TrimSpace(c.Surface)), c.Start, c.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, c)
	}

	res.Candidates = span.Resolve(uniq)
	return res
}

// Quick runs only the heuristic pass, for live as-you-type suggestions.
// No tagger, no persistence, cheap enough for every keystroke.
func Quick(text string, known []match.Phrase) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	knownNorms := make(map[string]bool, len(known))
	for _, p := range known {
		knownNorms[p.Norm] = true
	}
	knownSpans := match.FindDetailed(text, known)
	var cands []Candidate
	for _, c := range heuristicPass(text, knownNorms) {
		if insideAnyMatch(c, knownSpans) {
			continue
		}
		c.Source = SourceQuick
		cands = append(cands, c)
	}
	return span.Resolve(cands)
}

func insideAnyMatch(c Candidate, ms []match.Match) bool {
	cs := c.Span()
	for _, m := range ms {
		if m.Span().Overlaps(cs) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

var detWords = map[string]bool{"the": true, "a": true, "an": true}

// normTail lowercases, collapses whitespace and strips one leading
// determiner. It is the key used to decide whether a surface is already
// known and to group variants of the same name.
func normTail(surface string) string {
	low := textnorm.NormalizePhrase(surface)
	for det := range detWords {
		if strings.HasPrefix(low, det+" ") {
			return low[len(det)+1:]
		}
	}
	return low
}

// stripPossessive removes a trailing 's, straight or curly.
func stripPossessive(surface string) (string, bool) {
	s := strings.TrimRight(surface, " \t\n")
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimRight(s[:len(s)-len(suffix)], " \t\n"), true
		}
	}
	return surface, false
}

// possessiveSuffixLen returns the byte length of a trailing 's, or 0.
func possessiveSuffixLen(s string) int {
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(s, suffix) {
			return len(suffix)
		}
	}
	return 0
}

// sentenceInitial reports whether the previous non-space character ends a
// sentence (or there is none).
func sentenceInitial(text string, start int) bool {
	j := start
	for j > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:j])
		if !unicode.IsSpace(r) {
			return r == '.' || r == '!' || r == '?' || r == '…'
		}
		j -= size
	}
	return true
}

// titleCaseBonus rewards multi-word capitalized surfaces. Lowercase
// connectors between capitalized words do not hurt.
func titleCaseBonus(surface string) float64 {
	parts := strings.Fields(surface)
	if len(parts) == 0 {
		return 0
	}
	caps := 0
	for _, w := range parts {
		if startsUpper(w) {
			caps++
		}
	}
	if caps >= 2 {
		return 0.15
	}
	if caps == 1 && len(parts) == 1 {
		return 0.10
	}
	return 0
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func clampConf(c float64) float64 {
	if c < 0.35 {
		return 0.35
	}
	if c > 0.95 {
		return 0.95
	}
	return c
}
