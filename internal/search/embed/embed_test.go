package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedderIsDeterministic(t *testing.T) {
	e := NewFastEmbedder(32)
	v1, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestHashingEmbedderDifferentTextDiffers(t *testing.T) {
	e := NewFastEmbedder(32)
	v1, err := e.Embed(context.Background(), "deploy database outage")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "unrelated calendar invite")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestHashingEmbedderFastAndQualityTiersDiffer(t *testing.T) {
	fast := NewFastEmbedder(16)
	quality := NewQualityEmbedder(16)
	vf, err := fast.Embed(context.Background(), "same text")
	require.NoError(t, err)
	vq, err := quality.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.NotEqual(t, vf, vq, "fast and quality embedders use different salts and should not collapse to the same vector")
}

func TestHashingEmbedderEmptyTextYieldsZeroVector(t *testing.T) {
	e := NewFastEmbedder(8)
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestHashingEmbedderIsL2Normalized(t *testing.T) {
	e := NewFastEmbedder(64)
	v, err := e.Embed(context.Background(), "a reasonably long sentence with several distinct tokens")
	require.NoError(t, err)

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-4)
}

func TestHashingEmbedderRejectsNonPositiveDimension(t *testing.T) {
	e := NewFastEmbedder(0)
	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestHashingEmbedderDimensionAndID(t *testing.T) {
	fast := NewFastEmbedder(256)
	quality := NewQualityEmbedder(384)
	assert.Equal(t, 256, fast.Dimension())
	assert.Equal(t, 384, quality.Dimension())
	assert.NotEqual(t, fast.ID(), quality.ID())
}

func TestCountTokens(t *testing.T) {
	n, err := CountTokens("the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestCountTokensEmptyString(t *testing.T) {
	n, err := CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)
}
