package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyarkivist/refengine/internal/store"
	"github.com/storyarkivist/refengine/pkg/extract"
)

type stubTagger struct {
	ents map[string]string
}

func (s stubTagger) Entities(text string) ([]extract.TaggedEntity, error) {
	var out []extract.TaggedEntity
	for surface, label := range s.ents {
		if i := strings.Index(text, surface); i >= 0 {
			out = append(out, extract.TaggedEntity{Text: surface, Label: label, Start: i, End: i + len(surface)})
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, tagger extract.Tagger) *Engine {
	t.Helper()
	if tagger == nil {
		tagger = stubTagger{}
	}
	e, err := New(store.NewMemStore(), Config{Tagger: tagger})
	require.NoError(t, err)
	return e
}

func seedWorld(t *testing.T, e *Engine) (aldric, gate *store.Entity, doc *store.Document) {
	t.Helper()
	var err error
	aldric, err = e.CreateEntity("novel", "Aldric", "character")
	require.NoError(t, err)
	gate, err = e.CreateEntity("novel", "Black Gate", "place")
	require.NoError(t, err)
	doc, err = e.Store().CreateDocument("novel", "Chapter 1")
	require.NoError(t, err)
	return
}

func TestSaveDraftReconciles(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, gate, doc := seedWorld(t, e)

	ver, refs, err := e.SaveDraft("novel", doc.ID, "Aldric waited by the BLACK\ngate.")
	require.NoError(t, err)
	assert.Equal(t, 1, ver.Number)
	assert.Equal(t, []int64{aldric.ID, gate.ID}, refs)

	// Document-level set mirrors the latest version.
	docRefs, err := e.Store().DocumentReferences(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, refs, docRefs)
}

func TestRecomputeReplacesNotMerges(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, gate, doc := seedWorld(t, e)

	_, refs, err := e.SaveDraft("novel", doc.ID, "Aldric and the Black Gate.")
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID, gate.ID}, refs)

	// A new draft mentioning only one entity drops the other entirely.
	_, refs, err = e.SaveDraft("novel", doc.ID, "Only Aldric now.")
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, refs)

	docRefs, err := e.Store().DocumentReferences(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, docRefs)

	// The old version's set is untouched.
	v1, err := e.Store().VersionReferences(doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID, gate.ID}, v1)
}

func TestRecomputeOldVersionDoesNotTouchDocumentSet(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, gate, doc := seedWorld(t, e)

	_, _, err := e.SaveDraft("novel", doc.ID, "Aldric and the Black Gate.")
	require.NoError(t, err)
	_, _, err = e.SaveDraft("novel", doc.ID, "Only Aldric now.")
	require.NoError(t, err)

	refs, err := e.RecomputeReferences("novel", doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID, gate.ID}, refs)

	docRefs, err := e.Store().DocumentReferences(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, docRefs)
}

func TestRecomputeMissingTargets(t *testing.T) {
	e := newTestEngine(t, nil)
	_, _, doc := seedWorld(t, e)

	_, err := e.RecomputeReferences("novel", 9999, ActiveVersion)
	assert.ErrorIs(t, err, ErrNotFound)

	// Document exists but has no versions yet.
	_, err = e.RecomputeReferences("novel", doc.ID, ActiveVersion)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.RecomputeReferences("novel", doc.ID, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing was written for the missing version.
	refs, err := e.Store().VersionReferences(doc.ID, 7)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestAliasChangeInvalidatesResolution(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, _, _ := seedWorld(t, e)

	text := "The Wolf rode north."
	refs, err := e.ResolveText("novel", text)
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = e.AddAlias(aldric.ID, "the Wolf")
	require.NoError(t, err)

	// Same text, fresh answer: the cache keyed on this hash was dropped.
	refs, err = e.ResolveText("novel", text)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, refs)
}

func TestRetireAliasStopsMatching(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, _, _ := seedWorld(t, e)

	alias, err := e.AddAlias(aldric.ID, "the Wolf")
	require.NoError(t, err)
	refs, err := e.ResolveText("novel", "The Wolf rode north.")
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, refs)

	require.NoError(t, e.RetireAlias("novel", alias.ID))
	refs, err = e.ResolveText("novel", "The Wolf rode north.")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestBlankSurfacesRejected(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, _, _ := seedWorld(t, e)

	_, err := e.CreateEntity("novel", "   \n", "character")
	assert.ErrorIs(t, err, ErrBlankSurface)
	_, err = e.AddAlias(aldric.ID, " \t ")
	assert.ErrorIs(t, err, ErrBlankSurface)
}

func TestFindMentionsOffsets(t *testing.T) {
	e := newTestEngine(t, nil)
	aldric, _, _ := seedWorld(t, e)

	text := "It was ALDRIC."
	ms, err := e.FindMentions("novel", text)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, aldric.ID, ms[0].Phrase.EntityID)
	assert.Equal(t, "ALDRIC", text[ms[0].Start:ms[0].End])
}

func TestQuickScan(t *testing.T) {
	e := newTestEngine(t, nil)
	_, gate, _ := seedWorld(t, e)

	hits, err := e.QuickScan("novel", "They saw the Black Gate.")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Black Gate", hits[0].Surface)
	assert.Equal(t, gate.ID, hits[0].Entries[0].EntityID)
}

func TestCandidateLifecycle(t *testing.T) {
	tagger := stubTagger{ents: map[string]string{
		"Mira":     "PERSON",
		"Vethmoor": "GPE",
	}}
	e := newTestEngine(t, tagger)
	aldric, _, doc := seedWorld(t, e)

	_, _, err := e.SaveDraft("novel", doc.ID, "Aldric met Mira outside Vethmoor.")
	require.NoError(t, err)

	cands, degraded, err := e.RecomputeCandidates("novel", doc.ID, ActiveVersion)
	require.NoError(t, err)
	assert.False(t, degraded)
	require.Len(t, cands, 2)
	assert.Equal(t, "Mira", cands[0].Surface)
	assert.Equal(t, "Vethmoor", cands[1].Surface)
	assert.Equal(t, store.CandidatePending, cands[0].Status)

	// Accept Mira: becomes an entity, so re-extraction skips her surface.
	mira, err := e.AcceptCandidate(cands[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Mira", mira.Name)
	assert.Equal(t, "character", mira.Kind)

	// Dismiss Vethmoor: stays dismissed across re-runs.
	require.NoError(t, e.DismissCandidate(cands[1].ID))

	cands, _, err = e.RecomputeCandidates("novel", doc.ID, ActiveVersion)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, store.CandidateAccepted, cands[0].Status)
	assert.Equal(t, store.CandidateDismissed, cands[1].Status)

	// Mira now resolves as a reference.
	refs, err := e.RecomputeReferences("novel", doc.ID, ActiveVersion)
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID, mira.ID}, refs)
}

func TestLinkCandidate(t *testing.T) {
	tagger := stubTagger{ents: map[string]string{"the Wolf": "PERSON"}}
	e := newTestEngine(t, tagger)
	aldric, _, doc := seedWorld(t, e)

	_, _, err := e.SaveDraft("novel", doc.ID, "They whispered about the Wolf again.")
	require.NoError(t, err)
	cands, _, err := e.RecomputeCandidates("novel", doc.ID, ActiveVersion)
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	require.NoError(t, e.LinkCandidate(cands[0].ID, aldric.ID))

	got, err := e.Store().GetCandidate(cands[0].ID)
	require.NoError(t, err)
	assert.Equal(t, store.CandidateLinked, got.Status)
	assert.Equal(t, aldric.ID, got.EntityID)

	// The linked surface now matches as an alias of Aldric.
	refs, err := e.ResolveText("novel", "Once more the Wolf vanished.")
	require.NoError(t, err)
	assert.Equal(t, []int64{aldric.ID}, refs)
}

func TestCandidateOpsMissing(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.AcceptCandidate(404, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, e.LinkCandidate(404, 1), ErrNotFound)
	assert.ErrorIs(t, e.DismissCandidate(404), ErrNotFound)
}

func TestQuickCandidates(t *testing.T) {
	e := newTestEngine(t, nil)
	seedWorld(t, e)

	got, err := e.QuickCandidates("novel", "The road to Vethmoor was long. None left Vethmoor.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Vethmoor", got[0].Surface)
	assert.Equal(t, extract.SourceQuick, got[0].Source)

	// Known entities never come back as candidates.
	got, err = e.QuickCandidates("novel", "It was Aldric. Again Aldric.")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMetricsCached(t *testing.T) {
	e := newTestEngine(t, nil)
	_, _, doc := seedWorld(t, e)

	text := "Aldric rode north. \"Open the gate,\" he said."
	_, _, err := e.SaveDraft("novel", doc.ID, text)
	require.NoError(t, err)

	m, err := e.Metrics(doc.ID, ActiveVersion)
	require.NoError(t, err)
	assert.Equal(t, 8, m.Words)
	assert.Equal(t, 2, m.Sentences)
	assert.Equal(t, 3, m.DialogueWords)

	// Second call returns the cached row, byte for byte.
	again, err := e.Metrics(doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, m, again)

	// The same text measured directly shares the hash and the cache.
	direct, err := e.MetricsForText(text)
	require.NoError(t, err)
	assert.Equal(t, m.Hash, direct.Hash)

	_, err = e.Metrics(doc.ID, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
