package extract

import (
	"regexp"
	"strings"
)

// Labels worth keeping from the tagger, and labels whose matches are noise
// for fiction (dates, amounts, ordinals).
var (
	nerKeep = map[string]bool{
		"PERSON": true, "ORG": true, "GPE": true, "LOC": true, "FAC": true,
		"PRODUCT": true, "WORK_OF_ART": true, "EVENT": true, "NORP": true,
		"LANGUAGE": true,
	}
	nerDrop = map[string]bool{
		"DATE": true, "TIME": true, "MONEY": true, "PERCENT": true,
		"ORDINAL": true, "CARDINAL": true, "QUANTITY": true,
	}
	kindFromLabel = map[string]string{
		"PERSON":      "character",
		"ORG":         "organization",
		"GPE":         "place",
		"LOC":         "place",
		"FAC":         "place",
		"WORK_OF_ART": "object",
		"PRODUCT":     "object",
		"EVENT":       "concept",
		"NORP":        "culture",
		"LANGUAGE":    "language",
	}
)

var (
	reOwnerConn = regexp.MustCompile(`\b(for|of)\b`)
	reAmpersand = regexp.MustCompile(`\w\s*&\s*\w`)
)

type rawEnt struct {
	surface string
	start   int
	end     int
	label   string
}

// taggerPass turns tagger hits into candidates: owner relations are split
// apart, lowercase determiners are stripped, variants of the same name are
// grouped under a det-less canonical form, and each survivor is scored.
func taggerPass(text string, ents []TaggedEntity, knownNorms map[string]bool) []Candidate {
	var raw []rawEnt

	for _, ent := range ents {
		if nerDrop[ent.Label] || !nerKeep[ent.Label] {
			continue
		}
		start, end := ent.Start, ent.End
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		surface := text[start:end]

		// Owner relations first: "Black Gate for Solara's" becomes two
		// candidates and swallows the long span.
		if parts := ownerSplit(text, start, end); len(parts) > 0 {
			for _, p := range parts {
				if knownNorms[normTail(p.surface)] {
					continue
				}
				raw = append(raw, rawEnt{p.surface, p.start, p.end, ent.Label})
			}
			continue
		}

		// Det-less variant when the surface begins with a lowercase
		// determiner, then the original.
		if head, rest := splitHead(surface); detWords[strings.ToLower(head)] && isLower(head) && rest > 0 {
			s2 := start + rest
			for s2 < end && isSpaceByte(text[s2]) {
				s2++
			}
			if s2 < end {
				surf2 := text[s2:end]
				if !knownNorms[normTail(surf2)] {
					raw = append(raw, rawEnt{surf2, s2, end, ent.Label})
				}
			}
		}
		if !knownNorms[normTail(surface)] {
			raw = append(raw, rawEnt{surface, start, end, ent.Label})
		}
	}

	// Group by det-less tail, preserving first-seen order.
	groups := make(map[string][]rawEnt)
	var order []string
	for _, r := range raw {
		tail := normTail(r.surface)
		if len(groups[tail]) == 0 {
			order = append(order, tail)
		}
		groups[tail] = append(groups[tail], r)
	}

	var out []Candidate
	for _, tail := range order {
		if tail == "" {
			continue
		}
		items := groups[tail]

		hasLowerDet := false
		var detless []rawEnt
		for _, it := range items {
			head, _ := splitHead(it.surface)
			if detWords[strings.ToLower(head)] && isLower(head) {
				hasLowerDet = true
			}
			if strings.ToLower(strings.TrimSpace(it.surface)) == tail {
				detless = append(detless, it)
			}
		}

		// Prefer the det-less canonical when lowercase-det variants exist;
		// keep "The ..." when that is the only form seen.
		pool := items
		if hasLowerDet || len(detless) > 0 {
			if len(detless) > 0 {
				pool = detless
			}
		}
		rep := pool[0]
		for _, it := range pool[1:] {
			if it.start < rep.start {
				rep = it
			}
		}

		surface := text[rep.start:rep.end]
		repEnd := rep.end
		if base, had := stripPossessive(surface); had && base != "" {
			surface = base
			repEnd = rep.start + len(base)
		}
		kind := kindFromLabel[rep.label]
		conf := scoreTaggedEntity(text, surface, rep.start, rep.label)

		if strings.Contains(surface, "&") && reAmpersand.MatchString(surface) {
			conf = clampConf(conf + 0.08)
			if kind == "" {
				kind = "organization"
			}
		}

		out = append(out, Candidate{
			Surface:    surface,
			Start:      rep.start,
			End:        repEnd,
			Kind:       kind,
			Source:     SourceNER,
			Confidence: conf,
		})
	}
	return out
}

// scoreTaggedEntity starts from the tagger baseline and rewards a kept
// label, title-case structure, and a mid-sentence position (sentence-
// initial capitals prove nothing).
func scoreTaggedEntity(text, surface string, start int, label string) float64 {
	score := 0.70
	if nerKeep[label] {
		score += 0.05
	}
	score += titleCaseBonus(surface)
	if !sentenceInitial(text, start) {
		score += 0.05
	}
	return clampConf(score)
}

type splitPart struct {
	surface string
	start   int
	end     int
}

// ownerSplit breaks "X for Y" (always) and "X of Y's" (possessive only)
// into two name candidates when both sides look like titles and the right
// side starts with a capital. Offsets stay anchored in text.
func ownerSplit(text string, start, end int) []splitPart {
	sub := text[start:end]
	for _, loc := range reOwnerConn.FindAllStringSubmatchIndex(sub, -1) {
		conn := sub[loc[2]:loc[3]]
		left := strings.TrimSpace(sub[:loc[2]])
		right := strings.TrimSpace(sub[loc[3]:])
		if left == "" || right == "" || !startsUpper(right) {
			continue
		}

		rightStripped, hadPoss := stripPossessive(right)
		if conn == "of" && !hadPoss {
			continue
		}
		if !looksLikeTitle(left) || !looksLikeTitle(rightStripped) {
			continue
		}

		e1 := start + loc[2]
		for e1 > start && isSpaceByte(text[e1-1]) {
			e1--
		}
		s2 := start + loc[3]
		for s2 < end && isSpaceByte(text[s2]) {
			s2++
		}
		trimmed := strings.TrimRight(sub, " \t\n")
		e2 := start + len(trimmed) - possessiveSuffixLen(trimmed)
		return []splitPart{
			{left, start, e1},
			{rightStripped, s2, e2},
		}
	}
	return nil
}

func looksLikeTitle(s string) bool {
	for _, p := range strings.Fields(s) {
		if startsUpper(p) {
			return true
		}
	}
	return false
}

// splitHead returns the first whitespace-delimited word as written and the
// byte offset just past it.
func splitHead(surface string) (string, int) {
	i := strings.IndexAny(surface, " \t\n")
	if i < 0 {
		return surface, len(surface)
	}
	return surface[:i], i
}

func isLower(s string) bool {
	return s != "" && s == strings.ToLower(s)
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
