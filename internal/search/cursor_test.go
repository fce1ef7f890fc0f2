package search

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := EncodeRecencyCursor(1_700_000_000_000_000, 42)
	sortValue, messageID, err := c.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(42), messageID)
	assert.NotEmpty(t, sortValue)
}

func TestCursorIsEmpty(t *testing.T) {
	var c Cursor
	assert.True(t, c.IsEmpty())
	assert.False(t, EncodeRecencyCursor(1, 1).IsEmpty())
}

func TestCursorDecodeEmptyIsZeroValue(t *testing.T) {
	var c Cursor
	sortValue, messageID, err := c.Decode()
	require.NoError(t, err)
	assert.Empty(t, sortValue)
	assert.Zero(t, messageID)
}

func TestCursorDecodeMalformedReturnsInvalidArgument(t *testing.T) {
	bad := Cursor("not-valid-base64!!!")
	_, _, err := bad.Decode()
	require.Error(t, err)
}

// TestRecencyCursorOrderingMatchesNumericOrder verifies that padInt64's
// zero-padding preserves numeric order under plain string comparison —
// the property the cursor tuple comparator depends on.
func TestRecencyCursorOrderingMatchesNumericOrder(t *testing.T) {
	values := []int64{0, 1, 9, 10, 999, 1_000, 1_700_000_000_000_000}
	padded := make([]string, len(values))
	for i, v := range values {
		padded[i] = padInt64(v)
	}

	shuffled := append([]string(nil), padded...)
	sort.Strings(shuffled)
	assert.Equal(t, padded, shuffled, "padded strings should already be in ascending numeric order")
}

func TestRecencyCursorDistinctTimestampsYieldDistinctCursors(t *testing.T) {
	a := EncodeRecencyCursor(100, 1)
	b := EncodeRecencyCursor(200, 1)
	assert.NotEqual(t, a, b)
}

func TestRelevanceCursorRoundTrip(t *testing.T) {
	c := EncodeRelevanceCursor(0.123456789012, 7)
	sortValue, messageID, err := c.Decode()
	require.NoError(t, err)
	assert.Equal(t, int64(7), messageID)
	assert.Contains(t, sortValue, "0.123456789012")
}
