package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomSelector_DistinctLegsAndPairs(t *testing.T) {
	s := NewRandomSelector([]string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "ETHUSDT"}, 1)

	pairs, err := s.NextCandidates(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, pairs, 4)

	seen := map[string]bool{}
	for _, p := range pairs {
		assert.True(t, p.Valid(), "pair %s has identical legs", p)
		k := unorderedKey(p)
		assert.False(t, seen[k], "duplicate pair %s", p)
		seen[k] = true
	}
}

func TestRandomSelector_CapsAtUniverseSize(t *testing.T) {
	s := NewRandomSelector([]string{"A", "B", "C"}, 2)

	pairs, err := s.NextCandidates(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pairs, 3)
}

func TestRandomSelector_EmptyUniverse(t *testing.T) {
	_, err := NewRandomSelector([]string{"A", "A"}, 1).NextCandidates(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
}

func TestRandomSelector_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRandomSelector([]string{"A", "B"}, 1).NextCandidates(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCategorySelector_StaysWithinCategory(t *testing.T) {
	cats := map[string][]string{
		"l1":    {"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		"meme":  {"DOGEUSDT", "SHIBUSDT"},
		"alone": {"XRPUSDT"},
	}
	s := NewCategorySelector(cats, 3)
	assert.Equal(t, []string{"l1", "meme"}, s.Categories())

	member := map[string]string{}
	for name, syms := range cats {
		for _, sym := range syms {
			member[sym] = name
		}
	}

	pairs, err := s.NextCandidates(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, pairs, 4)
	for _, p := range pairs {
		assert.True(t, p.Valid())
		assert.Equal(t, member[p.SymbolA], member[p.SymbolB], "pair %s crosses categories", p)
		assert.NotContains(t, []string{p.SymbolA, p.SymbolB}, "XRPUSDT")
	}
}

func TestCategorySelector_NoUsableCategory(t *testing.T) {
	s := NewCategorySelector(map[string][]string{"x": {"A"}}, 1)
	_, err := s.NextCandidates(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEmptyUniverse)
}
