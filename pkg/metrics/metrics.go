// Package metrics computes cheap prose statistics for a text snapshot:
// word, sentence and paragraph counts, dialogue share, reading time and an
// estimated paperback page count. Markup is stripped first so headings and
// link URLs do not inflate the numbers.
package metrics

import (
	"math"
	"regexp"
	"strings"
)

// Result holds the measurements for one text.
type Result struct {
	Words          int
	Chars          int
	Sentences      int
	Paragraphs     int
	AvgSentenceLen float64
	TypeTokenRatio float64
	DialogueWords  int
	DialogueRatio  float64
	ReadingSeconds int
	Pages          float64
}

const wordsPerMinute = 250
const wordsPerPage = 300.0

var (
	reCodeFence    = regexp.MustCompile("(?s)```.*?```")
	reIndentedCode = regexp.MustCompile(`(?m)^(?: {4}|\t).*$`)
	reImage        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	reLink         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reHeading      = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s*`)
	reBlockquote   = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	reBullet       = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	reOrdered      = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	reEmphasis     = regexp.MustCompile(`[*_]{1,3}`)
	reHTMLTag      = regexp.MustCompile(`<[^>]+>`)
	reWhitespace   = regexp.MustCompile(`\s+`)

	reWord      = regexp.MustCompile(`[\w'-]+`)
	reParaSplit = regexp.MustCompile(`\n\s*\n`)
	reQuoted    = regexp.MustCompile(`"([^"]+)"|'([^']+)'|“([^”]+)”|‘([^’]+)’`)
)

// StripMarkup reduces lightweight markup to plain text for counting.
// Offsets are not preserved, so anchored work must use the original text.
func StripMarkup(md string) string {
	s := reCodeFence.ReplaceAllString(md, "")
	s = reIndentedCode.ReplaceAllString(s, "")
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reHeading.ReplaceAllString(s, "")
	s = reBlockquote.ReplaceAllString(s, "")
	s = reBullet.ReplaceAllString(s, "")
	s = reOrdered.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "")
	s = reHTMLTag.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Compute measures text. Paragraphs are counted on the raw text (blank-line
// separated), everything else on the stripped plain form.
func Compute(text string) Result {
	plain := StripMarkup(text)

	var paragraphs int
	for _, p := range reParaSplit.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}

	sentences := splitSentences(plain)
	words := reWord.FindAllString(plain, -1)
	wc := len(words)
	sc := len(sentences)

	var avg float64
	if sc > 0 {
		total := 0
		for _, s := range sentences {
			total += len(reWord.FindAllString(s, -1))
		}
		avg = float64(total) / float64(sc)
	}

	types := make(map[string]bool, wc)
	for _, w := range words {
		types[strings.ToLower(w)] = true
	}
	var ttr float64
	if wc > 0 {
		ttr = float64(len(types)) / float64(wc)
	}

	var quoted []string
	for _, m := range reQuoted.FindAllStringSubmatch(text, -1) {
		quoted = append(quoted, m[1]+m[2]+m[3]+m[4])
	}
	dialogueWords := len(reWord.FindAllString(strings.Join(quoted, " "), -1))
	var dialogueRatio float64
	if wc > 0 {
		dialogueRatio = float64(dialogueWords) / float64(wc)
	}

	return Result{
		Words:          wc,
		Chars:          len(plain),
		Sentences:      sc,
		Paragraphs:     paragraphs,
		AvgSentenceLen: avg,
		TypeTokenRatio: ttr,
		DialogueWords:  dialogueWords,
		DialogueRatio:  dialogueRatio,
		ReadingSeconds: int(math.Round(float64(wc) / wordsPerMinute * 60)),
		Pages:          float64(wc) / wordsPerPage,
	}
}

// splitSentences breaks plain text after terminal punctuation followed by
// whitespace. Go regexps have no lookbehind, so the split is done by hand.
func splitSentences(plain string) []string {
	if plain == "" {
		return nil
	}
	var out []string
	start := 0
	runes := []byte(plain)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		// Consume the whole terminal run ("?!", "...").
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '!' || runes[j] == '?') {
			j++
		}
		if j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
			s := strings.TrimSpace(plain[start:j])
			if s != "" {
				out = append(out, s)
			}
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
				j++
			}
			start = j
		}
		i = j - 1
	}
	if tail := strings.TrimSpace(plain[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
