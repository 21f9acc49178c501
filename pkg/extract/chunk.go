package extract

import (
	"strings"
	"unicode"
)

// The chunk pass is a rule-based noun-phrase sweep: tokenize, tag with a
// small closed-class lexicon, then take Det? Adj* Noun+ runs. Anything not
// in a closed class and not shaped like a verb or adverb counts as a noun,
// which is the right bias for surfacing invented names.

type chunkPOS int

const (
	posNoun chunkPOS = iota
	posPronoun
	posDeterminer
	posAdjective
	posVerbish
	posClosed
	posPunct
)

var chunkDeterminers = map[string]bool{
	"the": true, "a": true, "an": true, "this": true, "that": true,
	"these": true, "those": true, "his": true, "her": true, "its": true,
	"their": true, "my": true, "your": true, "our": true,
}

var chunkPronouns = map[string]bool{
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "me": true, "him": true, "them": true, "us": true,
	"who": true, "whom": true, "it's": true, "himself": true, "herself": true,
	"itself": true, "themselves": true, "someone": true, "something": true,
	"anyone": true, "anything": true, "nothing": true, "everyone": true,
}

// Words that head a phrase too generic to name anything.
var genericHeads = map[string]bool{
	"thing": true, "something": true, "someone": true, "time": true,
	"day": true, "way": true, "man": true, "woman": true, "people": true,
	"place": true,
}

var chunkClosed = map[string]bool{
	"and": true, "or": true, "but": true, "nor": true, "so": true, "yet": true,
	"of": true, "in": true, "on": true, "at": true, "by": true, "to": true,
	"for": true, "with": true, "from": true, "into": true, "over": true,
	"under": true, "through": true, "about": true, "after": true,
	"before": true, "between": true, "against": true, "during": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "am": true, "do": true, "does": true,
	"did": true, "have": true, "has": true, "had": true, "will": true,
	"would": true, "can": true, "could": true, "shall": true, "should": true,
	"may": true, "might": true, "must": true, "not": true, "no": true,
	"if": true, "as": true, "than": true, "then": true, "there": true,
	"here": true, "when": true, "where": true, "while": true, "because": true,
}

var adjectiveSuffixes = []string{
	"ous", "ful", "ive", "able", "ible", "less", "ish", "est",
}

// Frequent irregular past forms the suffix rules cannot catch.
var irregularVerbs = map[string]bool{
	"stood": true, "said": true, "went": true, "came": true, "saw": true,
	"took": true, "made": true, "knew": true, "thought": true, "found": true,
	"gave": true, "told": true, "got": true, "ran": true, "sat": true,
	"held": true, "kept": true, "left": true, "felt": true, "met": true,
	"heard": true, "brought": true, "began": true, "wrote": true,
	"spoke": true, "drew": true, "wore": true, "rode": true, "rose": true,
	"fell": true, "flew": true, "threw": true, "grew": true, "broke": true,
	"chose": true, "drove": true, "led": true, "lay": true, "paid": true,
	"sent": true, "set": true, "shook": true, "sang": true, "slept": true,
	"spent": true, "swept": true, "swam": true, "woke": true, "won": true,
}

func tagChunkToken(tok token, prev *token) chunkPOS {
	low := strings.ToLower(tok.text)
	r := []rune(tok.text)[0]
	switch {
	case !unicode.IsLetter(r) && !unicode.IsDigit(r):
		return posPunct
	case chunkDeterminers[low]:
		return posDeterminer
	case chunkPronouns[low]:
		return posPronoun
	case chunkClosed[low]:
		return posClosed
	}
	// -ly adverbs, common irregular pasts, and lowercase -ed forms read as
	// verbal. -ing forms only after a closed-class word ("was running")
	// since gerunds often head names ("the Crossing").
	if strings.HasSuffix(low, "ly") || irregularVerbs[low] {
		return posVerbish
	}
	if !startsUpper(tok.text) && strings.HasSuffix(low, "ed") && len(low) > 3 {
		return posVerbish
	}
	if strings.HasSuffix(low, "ing") && len(low) > 4 &&
		prev != nil && chunkClosed[strings.ToLower(prev.text)] {
		return posVerbish
	}
	if !startsUpper(tok.text) {
		for _, suf := range adjectiveSuffixes {
			if strings.HasSuffix(low, suf) {
				return posAdjective
			}
		}
	}
	return posNoun
}

// chunkPass emits every Det? Adj* Noun+ run whose head is neither a
// pronoun nor a generic noun. Confidence is flat: these are weak signals
// meant for a deliberately lenient sweep.
func chunkPass(text string) []Candidate {
	var tokens []token
	for _, loc := range reToken.FindAllStringIndex(text, -1) {
		tokens = append(tokens, token{text[loc[0]:loc[1]], loc[0], loc[1]})
	}

	tags := make([]chunkPOS, len(tokens))
	for i := range tokens {
		var prev *token
		if i > 0 {
			prev = &tokens[i-1]
		}
		tags[i] = tagChunkToken(tokens[i], prev)
	}

	var out []Candidate
	i := 0
	for i < len(tokens) {
		start := i
		if i < len(tokens) && tags[i] == posDeterminer {
			i++
		}
		for i < len(tokens) && tags[i] == posAdjective {
			i++
		}
		nounStart := i
		for i < len(tokens) && (tags[i] == posNoun || tags[i] == posPronoun) {
			i++
		}
		if i == nounStart {
			i = start + 1
			continue
		}

		head := tokens[i-1]
		if tags[i-1] == posPronoun || genericHeads[strings.ToLower(head.text)] {
			continue
		}
		// Sentence boundaries end a phrase even when the tokens line up.
		if crossesSentence(text, tokens[start].start, head.end) {
			continue
		}
		out = append(out, Candidate{
			Surface:    text[tokens[start].start:head.end],
			Start:      tokens[start].start,
			End:        head.end,
			Source:     SourceChunk,
			Confidence: 0.5,
		})
	}
	return out
}

// crossesSentence reports whether [s,e) contains a sentence terminator.
func crossesSentence(text string, s, e int) bool {
	return strings.ContainsAny(text[s:e], ".!?…")
}
