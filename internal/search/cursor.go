package search

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// Cursor is an opaque, forward-only pagination token encoding
// (primary-sort-value, row-id) (spec.md §4.4). It is stable under
// concurrent inserts because every comparison uses this tuple, never
// a row offset: a new row landing ahead of the cursor's position
// cannot shift already-returned rows out from under a caller chaining
// next_cursor calls.
type Cursor string

// cursorPayload is the decoded form. SortValue is carried as a string
// so the same cursor shape works for both ranking modes: recency
// compares on CreatedAtUsec (formatted so lexical and numeric order
// agree), relevance compares on a formatted score.
type cursorPayload struct {
	SortValue string `json:"v"`
	MessageID int64  `json:"id"`
}

// EncodeCursor builds an opaque cursor from the sort value and row id
// of the last row on the current page.
func EncodeCursor(sortValue string, messageID int64) Cursor {
	raw, _ := json.Marshal(cursorPayload{SortValue: sortValue, MessageID: messageID})
	return Cursor(base64.RawURLEncoding.EncodeToString(raw))
}

// EncodeRecencyCursor formats a usec timestamp so lexical string
// comparison matches numeric order (fixed-width, zero-padded).
func EncodeRecencyCursor(createdAtUsec int64, messageID int64) Cursor {
	return EncodeCursor(padInt64(createdAtUsec), messageID)
}

// EncodeRelevanceCursor formats a relevance score losslessly ('g'
// with the shortest round-tripping precision, not a fixed decimal
// width): truncating a bm25 score that re-parses and compares against
// the live query's rank column can return the previous page's
// boundary row again, violating cursor monotonicity's no-duplicates
// guarantee on ties near the truncation boundary.
func EncodeRelevanceCursor(score float64, messageID int64) Cursor {
	return EncodeCursor(strconv.FormatFloat(score, 'g', -1, 64), messageID)
}

// Decode parses an opaque cursor, returning an *errs.Error with code
// InvalidArgument on a malformed token so callers can reject a forged
// or corrupted cursor the same way they reject any other bad input.
func (c Cursor) Decode() (sortValue string, messageID int64, err error) {
	if c == "" {
		return "", 0, nil
	}
	raw, decodeErr := base64.RawURLEncoding.DecodeString(string(c))
	if decodeErr != nil {
		return "", 0, errs.Wrap(decodeErr, errs.InvalidArgument, "search: malformed cursor")
	}
	var payload cursorPayload
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr != nil {
		return "", 0, errs.Wrap(jsonErr, errs.InvalidArgument, "search: malformed cursor")
	}
	return payload.SortValue, payload.MessageID, nil
}

// IsEmpty reports whether the cursor denotes "start of results".
func (c Cursor) IsEmpty() bool { return c == "" }

// padInt64 zero-pads a usec timestamp to a fixed width so that string
// comparison of two encoded cursors agrees with their numeric order.
// 20 digits comfortably covers any int64.
func padInt64(v int64) string {
	s := strconv.FormatInt(v, 10)
	if v < 0 {
		// Negative timestamps are not produced by this system's clock,
		// but padding still has to preserve order if one ever appears.
		return "-" + strings.Repeat("0", 20-len(s)) + s[1:]
	}
	return strings.Repeat("0", 20-len(s)) + s
}
