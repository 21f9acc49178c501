package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var phrases = []Phrase{
	{Norm: "aldric", EntityID: 1},
	{Norm: "the wolf", EntityID: 1, AliasID: 11},
	{Norm: "black gate", EntityID: 2},
	{Norm: "gate", EntityID: 3},
	{Norm: "mira", EntityID: 4},
}

func TestFindWholeWordOnly(t *testing.T) {
	// "Aldrich" must not match "aldric", "gateway" must not match "gate".
	ids := Find("Aldrich walked through the gateway.", phrases)
	assert.Empty(t, ids)

	ids = Find("Aldric walked through the gate.", phrases)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestFindCaseAndWhitespace(t *testing.T) {
	text := "They reached the BLACK\n   gate at dusk."
	ms := FindDetailed(text, phrases)
	require.Len(t, ms, 1)
	assert.Equal(t, int64(2), ms[0].Phrase.EntityID)
	assert.Equal(t, "BLACK\n   gate", text[ms[0].Start:ms[0].End])
}

func TestFindLongestWins(t *testing.T) {
	// "black gate" covers "gate", so entity 3 gets no hit there.
	ms := FindDetailed("the black gate stood open", phrases)
	require.Len(t, ms, 1)
	assert.Equal(t, int64(2), ms[0].Phrase.EntityID)

	// A free-standing "gate" elsewhere still counts.
	ids := Find("the black gate and the other gate", phrases)
	assert.Equal(t, []int64{2, 3}, ids)
}

func TestFindAliasAttribution(t *testing.T) {
	ms := FindDetailed("The Wolf smiled.", phrases)
	require.Len(t, ms, 1)
	assert.Equal(t, int64(1), ms[0].Phrase.EntityID)
	assert.Equal(t, int64(11), ms[0].Phrase.AliasID)
}

func TestFindDedupesEntities(t *testing.T) {
	ids := Find("Aldric, always Aldric. The Wolf they called him.", phrases)
	assert.Equal(t, []int64{1}, ids)
}

func TestFindOrderedByOffset(t *testing.T) {
	ms := FindDetailed("Mira met Aldric at the Black Gate.", phrases)
	require.Len(t, ms, 3)
	assert.Equal(t, int64(4), ms[0].Phrase.EntityID)
	assert.Equal(t, int64(1), ms[1].Phrase.EntityID)
	assert.Equal(t, int64(2), ms[2].Phrase.EntityID)
	assert.Less(t, ms[0].Start, ms[1].Start)
	assert.Less(t, ms[1].Start, ms[2].Start)
}

func TestFindEmptyInputs(t *testing.T) {
	assert.Nil(t, Find("", phrases))
	assert.Nil(t, Find("some text", nil))
	assert.Nil(t, FindDetailed("   \n\t  ", phrases))
}

func TestPrefilterNeverDropsRealMatches(t *testing.T) {
	text := "They reached the BLACK\ngate at dusk with Mira."
	kept := Prefilter(text, phrases)

	// The substring pass may keep extras but must keep every true hit.
	full := Find(text, phrases)
	filtered := Find(text, kept)
	assert.Equal(t, full, filtered)

	// And it does narrow: "aldric" and "the wolf" are nowhere in the text.
	for _, p := range kept {
		assert.NotEqual(t, "aldric", p.Norm)
		assert.NotEqual(t, "the wolf", p.Norm)
	}
}
