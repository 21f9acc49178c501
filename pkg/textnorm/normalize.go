// Package textnorm provides the canonical text normalization shared by the
// phrase index, the span matcher, and the content-hash cache keys.
// Phrases and haystacks must be normalized identically or matching breaks.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizePhrase trims, lowercases, turns newlines into spaces and
// collapses internal whitespace runs to a single space. This is the join
// key for alias/title matching everywhere in the engine.
func NormalizePhrase(s string) string {
	return Fold(s).Text
}

// ContentHash returns a stable hex digest of the text with line endings
// normalized to \n and trailing whitespace stripped per line. Two texts
// that differ only in line endings or trailing spaces hash identically.
func ContentHash(s string) string {
	sum := sha256.Sum256([]byte(CanonicalContent(s)))
	return hex.EncodeToString(sum[:])
}

// CanonicalContent normalizes line endings to \n and strips trailing
// whitespace from each line.
func CanonicalContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// Folded is a lowercased, whitespace-collapsed view of a text that keeps a
// byte mapping back to the original, so matches found against Text can be
// reported as offsets into the original string.
type Folded struct {
	Text string

	starts []int // normalized byte -> original byte offset of its rune
	ends   []int // normalized byte -> original byte offset just past its rune
}

// Fold lowercases text and collapses every whitespace run (including
// newlines) to a single space, dropping leading and trailing whitespace.
func Fold(text string) Folded {
	var b strings.Builder
	b.Grow(len(text))
	starts := make([]int, 0, len(text))
	ends := make([]int, 0, len(text))

	pendingWS := -1 // original offset of the first byte of a pending run
	emitted := false

	for i, r := range text {
		if unicode.IsSpace(r) {
			if pendingWS < 0 {
				pendingWS = i
			}
			continue
		}
		if pendingWS >= 0 && emitted {
			b.WriteByte(' ')
			starts = append(starts, pendingWS)
			ends = append(ends, i)
		}
		pendingWS = -1

		lower := unicode.ToLower(r)
		b.WriteRune(lower)
		size := utf8.RuneLen(r)
		for k := 0; k < utf8.RuneLen(lower); k++ {
			starts = append(starts, i)
			ends = append(ends, i+size)
		}
		emitted = true
	}

	return Folded{Text: b.String(), starts: starts, ends: ends}
}

// OrigStart maps a normalized byte offset to the original text.
func (f Folded) OrigStart(i int) int {
	if i < 0 || i >= len(f.starts) {
		if n := len(f.ends); n > 0 {
			return f.ends[n-1]
		}
		return 0
	}
	return f.starts[i]
}

// OrigEnd maps a normalized end offset (exclusive) to the original text.
func (f Folded) OrigEnd(e int) int {
	if e <= 0 || e > len(f.ends) {
		return 0
	}
	return f.ends[e-1]
}

// WholeWord reports whether the span [s,e) in text sits on word boundaries:
// not immediately preceded or followed by a letter, digit or underscore.
func WholeWord(text string, s, e int) bool {
	if s > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:s])
		if isWordRune(r) {
			return false
		}
	}
	if e < len(text) {
		r, _ := utf8.DecodeRuneInString(text[e:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
