package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder returns a caller-supplied vector regardless of input
// text, letting tests control scores precisely.
type fixedEmbedder struct {
	dim int
	vec []float32
	err error
}

func (f fixedEmbedder) ID() string     { return "fixed" }
func (f fixedEmbedder) Dimension() int { return f.dim }
func (f fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func entriesFixture() []TwoTierEntry {
	return []TwoTierEntry{
		{MessageID: 1, ProjectID: 1, FastEmbedding: []float32{1, 0}, QualityEmbedding: []float32{1, 0, 0}, HasQuality: true},
		{MessageID: 2, ProjectID: 1, FastEmbedding: []float32{0, 1}, QualityEmbedding: []float32{0, 1, 0}, HasQuality: true},
		{MessageID: 3, ProjectID: 1, FastEmbedding: []float32{0.7, 0.7}, HasQuality: false},
	}
}

func TestSearchFastReturnsTopKByDotProduct(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	results := idx.SearchFast([]float32{1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].MessageID)
}

func TestSearchFastDimensionMismatchExcludesEntry(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	results := idx.SearchFast([]float32{1, 0, 0}, 3)
	assert.Empty(t, results, "every fixture entry has a 2-dim fast embedding; a 3-dim query should match none")
}

func TestSearchQualitySkipsDocsWithoutQuality(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	results := idx.SearchQuality([]float32{1, 0, 0}, 3)
	for _, r := range results {
		assert.NotEqual(t, int64(3), r.MessageID, "doc 3 has no quality embedding and must never appear in a quality search")
	}
}

func TestBlendScoreWeightExtremes(t *testing.T) {
	assert.InDelta(t, float32(0.25), BlendScore(0.25, 0.75, 0), 1e-6)
	assert.InDelta(t, float32(0.75), BlendScore(0.25, 0.75, 1), 1e-6)
	assert.InDelta(t, float32(0.5), BlendScore(0.25, 0.75, 0.5), 1e-6)
}

func TestNormalizeScoresMinMax(t *testing.T) {
	out := normalizeScores([]float32{1, 2, 3})
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 0.5, out[1], 1e-6)
	assert.InDelta(t, 1, out[2], 1e-6)
}

func TestNormalizeScoresDegenerateAllEqual(t *testing.T) {
	out := normalizeScores([]float32{5, 5, 5})
	for _, v := range out {
		assert.Zero(t, v)
	}
}

func TestSearcherFastOnlyModeEmitsOnlyInitialPhase(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:        idx,
		FastEmbedder: fixedEmbedder{dim: 2, vec: []float32{1, 0}},
		Config:       TwoTierConfig{FastOnly: true},
		Now:          func() time.Time { return time.Unix(0, 0) },
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, PhaseInitial, phases[0].Kind)
}

func TestSearcherQualityOnlyModeEmitsOnlyRefinedPhase(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:           idx,
		FastEmbedder:    fixedEmbedder{dim: 2, vec: []float32{1, 0}},
		QualityEmbedder: fixedEmbedder{dim: 3, vec: []float32{1, 0, 0}},
		Config:          TwoTierConfig{QualityOnly: true},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, PhaseRefined, phases[0].Kind)
}

func TestSearcherProducesInitialThenRefinedPhases(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:           idx,
		FastEmbedder:    fixedEmbedder{dim: 2, vec: []float32{1, 0}},
		QualityEmbedder: fixedEmbedder{dim: 3, vec: []float32{1, 0, 0}},
		Config:          TwoTierConfig{QualityWeight: 0.7, MaxRefinementDocs: 100},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, PhaseInitial, phases[0].Kind)
	assert.Equal(t, PhaseRefined, phases[1].Kind)
}

func TestSearcherRefinementBudgetZeroPreservesInitialOrder(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:           idx,
		FastEmbedder:    fixedEmbedder{dim: 2, vec: []float32{1, 0}},
		QualityEmbedder: fixedEmbedder{dim: 3, vec: []float32{0, 1, 0}},
		Config:          TwoTierConfig{QualityWeight: 0.7, MaxRefinementDocs: 0},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)

	initial := phases[0].Results
	refined := phases[1].Results
	require.Equal(t, len(initial), len(refined))
	for i := range initial {
		assert.Equal(t, initial[i].MessageID, refined[i].MessageID)
		assert.Equal(t, initial[i].Score, refined[i].Score)
	}
}

func TestSearcherMissingQualityEmbedderYieldsRefinementFailed(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:        idx,
		FastEmbedder: fixedEmbedder{dim: 2, vec: []float32{1, 0}},
		Config:       TwoTierConfig{QualityWeight: 0.7, MaxRefinementDocs: 100},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, PhaseRefinementFailed, phases[1].Kind)
	assert.NotEmpty(t, phases[1].Error)
}

func TestSearcherQualityOnlyEmbedErrorYieldsRefinementFailed(t *testing.T) {
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:           idx,
		QualityEmbedder: fixedEmbedder{dim: 3, err: assert.AnError},
		Config:          TwoTierConfig{QualityOnly: true},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, phases, 1)
	assert.Equal(t, PhaseRefinementFailed, phases[0].Kind)
}

func TestDocsWithoutQualityKeepFastScoreZeroWeighted(t *testing.T) {
	// Doc 3 has no quality embedding; BlendScore must be applied with
	// weight 0 for it even though QualityWeight is nonzero, so its
	// refined position tracks its normalized fast score only.
	idx := NewTwoTierIndex(entriesFixture())
	s := &Searcher{
		Index:           idx,
		FastEmbedder:    fixedEmbedder{dim: 2, vec: []float32{0.7, 0.7}},
		QualityEmbedder: fixedEmbedder{dim: 3, vec: []float32{1, 0, 0}},
		Config:          TwoTierConfig{QualityWeight: 0.9, MaxRefinementDocs: 100},
	}
	phases, err := s.Search(context.Background(), "query", 3)
	require.NoError(t, err)

	refined := phases[1].Results
	var foundDoc3 bool
	for _, r := range refined {
		if r.MessageID == 3 {
			foundDoc3 = true
		}
	}
	assert.True(t, foundDoc3)
}

func TestIsZeroVector(t *testing.T) {
	assert.True(t, IsZeroVector([]float32{0, 0, 0}))
	assert.False(t, IsZeroVector([]float32{0, 0.01, 0}))
}
