package extract

import (
	"sync"

	prose "github.com/tsawler/prose/v3"
)

// TaggedEntity is one named-entity hit from a tagger, with byte offsets
// into the input text.
type TaggedEntity struct {
	Text       string
	Label      string
	Start      int
	End        int
	Confidence float64
}

// Tagger produces named entities for a text. Implementations may be slow
// or fail entirely; the extractor degrades to heuristics when they do.
type Tagger interface {
	Entities(text string) ([]TaggedEntity, error)
}

// proseTagger wraps the prose NLP library.
type proseTagger struct{}

func (proseTagger) Entities(text string) ([]TaggedEntity, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}
	var out []TaggedEntity
	for _, ent := range doc.Entities() {
		out = append(out, TaggedEntity{
			Text:       ent.Text,
			Label:      ent.Label,
			Start:      ent.Start,
			End:        ent.End,
			Confidence: ent.Confidence,
		})
	}
	return out, nil
}

var (
	defaultTaggerOnce sync.Once
	defaultTagger     Tagger
)

// DefaultTagger returns the shared prose-backed tagger.
func DefaultTagger() Tagger {
	defaultTaggerOnce.Do(func() {
		defaultTagger = proseTagger{}
	})
	return defaultTagger
}
