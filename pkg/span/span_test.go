package span

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type tagged struct {
	s    Span
	name string
}

func (t tagged) Span() Span { return t.s }

func TestSpanOverlaps(t *testing.T) {
	a := Span{Start: 0, End: 5}
	assert.True(t, a.Overlaps(Span{Start: 4, End: 8}))
	assert.False(t, a.Overlaps(Span{Start: 5, End: 8}))
	assert.True(t, a.Contains(Span{Start: 1, End: 5}))
	assert.False(t, a.Contains(Span{Start: 1, End: 6}))
}

func TestResolveLongestWins(t *testing.T) {
	// "the Black" (0,9) vs "Black Gate" (4,14): the longer one wins,
	// regardless of which starts first.
	got := Resolve([]tagged{
		{Span{0, 9}, "the Black"},
		{Span{4, 14}, "Black Gate"},
	})
	assert.Len(t, got, 1)
	assert.Equal(t, "Black Gate", got[0].name)
}

func TestResolveTieEarliestStart(t *testing.T) {
	got := Resolve([]tagged{
		{Span{5, 10}, "later"},
		{Span{0, 5}, "earlier"},
	})
	// No overlap, both survive, ordered by start.
	assert.Equal(t, []string{"earlier", "later"}, []string{got[0].name, got[1].name})

	got = Resolve([]tagged{
		{Span{3, 8}, "late"},
		{Span{0, 5}, "early"},
	})
	assert.Len(t, got, 1)
	assert.Equal(t, "early", got[0].name)
}

func TestResolveChains(t *testing.T) {
	// A long middle span knocks out both neighbors it overlaps, letting
	// the outer short spans survive.
	got := Resolve([]tagged{
		{Span{0, 4}, "a"},
		{Span{2, 12}, "big"},
		{Span{10, 14}, "b"},
		{Span{20, 24}, "c"},
	})
	assert.Len(t, got, 2)
	assert.Equal(t, "big", got[0].name)
	assert.Equal(t, "c", got[1].name)
}

func TestResolveEmpty(t *testing.T) {
	assert.Nil(t, Resolve[tagged](nil))
}
