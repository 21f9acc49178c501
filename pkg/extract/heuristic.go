package extract

import (
	"regexp"
	"strings"
)

var reToken = regexp.MustCompile(`[\w'-]+`)

// stopCaps are capitalized words that never name an entity on their own:
// calendar words, structural headings, a few interjections. Compared
// case-insensitively.
var stopCaps = map[string]bool{
	"JANUARY": true, "FEBRUARY": true, "MARCH": true, "APRIL": true,
	"MAY": true, "JUNE": true, "JULY": true, "AUGUST": true,
	"SEPTEMBER": true, "OCTOBER": true, "NOVEMBER": true, "DECEMBER": true,
	"MONDAY": true, "TUESDAY": true, "WEDNESDAY": true, "THURSDAY": true,
	"FRIDAY": true, "SATURDAY": true, "SUNDAY": true,
	"I": true, "AM": true, "PM": true, "NO": true, "YES": true,
	"CHAPTER": true, "ACT": true, "PART": true, "PROLOGUE": true, "EPILOGUE": true,
}

// Lowercase connectors allowed inside a title-cased n-gram.
var titleConnectors = map[string]bool{
	"of": true, "the": true, "and": true, "de": true, "del": true, "von": true,
}

type token struct {
	text  string
	start int
	end   int
}

// heuristicPass proposes capitalized n-grams (1..3 tokens) that sit
// mid-sentence. Unigrams need a possessive cue or at least two occurrences
// before they count; longer grams score higher, repeats raise confidence.
func heuristicPass(text string, knownNorms map[string]bool) []Candidate {
	if text == "" {
		return nil
	}

	var tokens []token
	for _, loc := range reToken.FindAllStringIndex(text, -1) {
		tokens = append(tokens, token{text[loc[0]:loc[1]], loc[0], loc[1]})
	}

	cands := make(map[string]*Candidate)
	var order []string
	add := func(surface string, s, e int, bonus float64) {
		key := strings.ToLower(strings.TrimSpace(surface))
		if knownNorms[key] {
			return
		}
		words := strings.Fields(surface)
		if len(words) == 1 && stopCaps[strings.ToUpper(surface)] {
			return
		}
		if c, ok := cands[key]; ok {
			c.Confidence = clampConf(c.Confidence + 0.05)
			return
		}
		cands[key] = &Candidate{
			Surface:    surface,
			Start:      s,
			End:        e,
			Source:     SourceHeuristic,
			Confidence: 0.45 + 0.15*float64(len(words)-1) + bonus,
		}
		order = append(order, key)
	}

	capCounts := make(map[string]int)
	titleLike := func(w string) bool {
		return w != "" && (startsUpper(w) || titleConnectors[strings.ToLower(w)])
	}

	for i, tok := range tokens {
		if !startsUpper(tok.text) {
			continue
		}
		if sentenceInitial(text, tok.start) {
			continue
		}

		capCounts[tok.text]++

		// N-grams never span a sentence boundary.
		gapClean := func(a, b token) bool {
			return !strings.ContainsAny(text[a.end:b.start], ".!?…")
		}
		if i+1 < len(tokens) {
			t2 := tokens[i+1]
			if titleLike(t2.text) && gapClean(tok, t2) {
				add(tok.text+" "+t2.text, tok.start, t2.end, 0.1)
			}
		}
		if i+2 < len(tokens) {
			t2, t3 := tokens[i+1], tokens[i+2]
			if titleLike(t2.text) && titleLike(t3.text) && gapClean(tok, t2) && gapClean(t2, t3) {
				add(tok.text+" "+t2.text+" "+t3.text, tok.start, t3.end, 0.15)
			}
		}

		// A possessive on a lone capital is a strong cue. A straight
		// apostrophe stays inside the token ("Mira's"); a curly one
		// splits it, leaving a bare "s" token right after.
		if n := possessiveSuffixLen(tok.text); n > 0 && len(tok.text) > n {
			add(tok.text[:len(tok.text)-n], tok.start, tok.end-n, 0.1)
		} else if i+1 < len(tokens) && tokens[i+1].text == "s" &&
			text[tok.end:tokens[i+1].start] == "’" {
			add(tok.text, tok.start, tok.end, 0.1)
		}
	}

	// Unigrams earn a slot once they repeat.
	for _, tok := range tokens {
		count := capCounts[tok.text]
		if count < 2 || stopCaps[strings.ToUpper(tok.text)] || knownNorms[strings.ToLower(tok.text)] {
			continue
		}
		delete(capCounts, tok.text)
		bonus := 0.0
		if count >= 3 {
			bonus = 0.05
		}
		add(tok.text, tok.start, tok.end, bonus)
	}

	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *cands[key])
	}
	return out
}
