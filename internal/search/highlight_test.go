package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlightWrapsExactCaseInsensitiveMatch(t *testing.T) {
	out := Highlight("the Deploy failed in staging", []string{"deploy"})
	assert.Equal(t, "the <mark>Deploy</mark> failed in staging", out)
}

func TestHighlightNoMatchReturnsEscapedText(t *testing.T) {
	out := Highlight("nothing matches here", []string{"rollback"})
	assert.Equal(t, "nothing matches here", out)
	assert.NotContains(t, out, markOpen)
}

func TestHighlightEscapesHTML(t *testing.T) {
	out := Highlight("<script>alert(1)</script> deploy", []string{"deploy"})
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, "<mark>deploy</mark>")
}

func TestHighlightMergesOverlappingSpans(t *testing.T) {
	out := Highlight("redeployment plan", []string{"deploy", "deployment"})
	assert.Equal(t, 1, strings.Count(out, markOpen), "overlapping matches should merge into a single <mark> span")
}

func TestHighlightIgnoresTermsShorterThanMinLen(t *testing.T) {
	out := Highlight("a deploy to staging", []string{"a"})
	assert.NotContains(t, out, markOpen)
}

func TestHighlightBoundsWindowWithEllipsis(t *testing.T) {
	long := strings.Repeat("x", 500) + " deploy " + strings.Repeat("y", 500)
	out := Highlight(long, []string{"deploy"})
	assert.True(t, strings.HasPrefix(out, "…"))
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Contains(t, out, "<mark>deploy</mark>")
	assert.Less(t, len(out), len(long))
}

func TestHighlightNoTermsReturnsWindowUnmarked(t *testing.T) {
	out := Highlight("plain body text", nil)
	assert.Equal(t, "plain body text", out)
}
