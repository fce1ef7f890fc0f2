// Package search implements the lexical planner, cursor-stable
// pagination, two-tier semantic reranker, and snippet highlighting for
// the broker's search subsystem (spec.md §4.4).
package search

// RankingMode selects how matched rows are ordered before the cursor
// boundary is applied.
type RankingMode string

const (
	RankRelevance RankingMode = "relevance"
	RankRecency   RankingMode = "recency"
)

// Direction filters messages by the caller's relationship to them.
type Direction string

const (
	DirectionAny      Direction = "any"
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Query is the full input to a search call (spec.md §4.4 query model).
type Query struct {
	ProjectSlug string
	Text        string

	Importances []string
	Direction   Direction
	Agent       string
	ThreadID    string
	AckRequired *bool

	AfterUsec  *int64
	BeforeUsec *int64

	Rank  RankingMode
	Limit int
	After Cursor

	Explain bool
}

// Hit is one row of a search result page.
type Hit struct {
	MessageID     int64
	ProjectID     int64
	ThreadID      string
	Subject       string
	Body          string
	Importance    string
	SenderAgentID int64
	CreatedAtUsec int64
	Score         float64
	Snippet       string
}

// Page is a page of search results plus the cursor to fetch the next
// page, if any.
type Page struct {
	Hits       []Hit
	NextCursor Cursor
	Explain    *Explanation
}

// Explanation is populated when Query.Explain is set, surfacing the
// compiled plan for debugging without changing result semantics.
type Explanation struct {
	MatchExpression string
	Predicates      []string
	Rank            RankingMode
}
