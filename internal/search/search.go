package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

// Service is the search subsystem's entry point: it compiles a Query
// into SQL (optionally joined against the FTS virtual table), applies
// the cursor boundary, and returns a page of Hits. Semantic reranking
// is a separate, opt-in step (see Rerank) layered on top of a
// candidate set rather than folded into the lexical leg, since
// nothing in this repository's retrieval pack fuses lexical and
// semantic scoring into one ranking function.
type Service struct {
	Pool *store.Pool
}

// row is the flat shape one joined SQL row scans into.
type row struct {
	ID            int64
	ProjectID     int64
	ThreadID      *string
	Subject       string
	Body          string
	Importance    string
	SenderAgentID int64
	CreatedAtUsec int64
	Rank          float64 `gorm:"column:bm25_rank"`
}

// Search compiles and executes q, returning a page of results.
// Malformed free-text input is returned as an *errs.Error with code
// InvalidArgument (spec.md §4.3's "programmatic callers" path); use
// SearchUIBoundary for the UI-facing "empty result set instead of an
// error" behavior.
func (s *Service) Search(ctx context.Context, q Query) (*Page, error) {
	planned, err := PlanText(q.Text)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, q, planned)
}

// SearchUIBoundary runs Search but converts a malformed free-text
// expression into an empty page instead of an error, per spec.md
// §4.3's UI-boundary propagation policy.
func (s *Service) SearchUIBoundary(ctx context.Context, q Query) (*Page, error) {
	planned, err := PlanText(q.Text)
	if err != nil {
		return &Page{}, nil
	}
	return s.execute(ctx, q, planned)
}

func (s *Service) execute(ctx context.Context, q Query, planned *PlannedQuery) (*Page, error) {
	db, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	rank := q.Rank
	if rank == "" {
		rank = RankRecency
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	var conds []string
	var args []any

	base := "SELECT m.id, m.project_id, m.thread_id, m.subject, m.body, m.importance, m.sender_agent_id, m.created_at_usec"
	from := " FROM messages m"

	if planned.MatchExpression != "" {
		// Aliased to bm25_rank, not "rank": FTS5 reserves the bare
		// identifier "rank" as a hidden column on the virtual table
		// joined below, and a bound-parameter equality against it
		// (the cursor tie-break's "rank = ?" branch) is parsed as a
		// custom ranking-function assignment rather than a numeric
		// comparison, erroring on every value including 0.
		base += ", bm25(messages_fts) AS bm25_rank"
		from += " JOIN messages_fts ON messages_fts.rowid = m.id"
		conds = append(conds, "messages_fts MATCH ?")
		args = append(args, planned.MatchExpression)
	} else {
		base += ", 0.0 AS bm25_rank"
	}

	if q.ProjectSlug != "" {
		conds = append(conds, "m.project_id = (SELECT id FROM projects WHERE slug = ?)")
		args = append(args, q.ProjectSlug)
	}
	if len(q.Importances) > 0 {
		placeholders := make([]string, len(q.Importances))
		for i, imp := range q.Importances {
			placeholders[i] = "?"
			args = append(args, imp)
		}
		conds = append(conds, fmt.Sprintf("m.importance IN (%s)", strings.Join(placeholders, ",")))
	}
	if q.ThreadID != "" {
		conds = append(conds, "m.thread_id = ?")
		args = append(args, q.ThreadID)
	}
	if q.AckRequired != nil {
		conds = append(conds, "m.ack_required = ?")
		args = append(args, *q.AckRequired)
	}
	if q.AfterUsec != nil {
		conds = append(conds, "m.created_at_usec > ?")
		args = append(args, *q.AfterUsec)
	}
	if q.BeforeUsec != nil {
		conds = append(conds, "m.created_at_usec < ?")
		args = append(args, *q.BeforeUsec)
	}
	if q.Agent != "" {
		switch q.Direction {
		case DirectionOutbound:
			conds = append(conds, "m.sender_agent_id = (SELECT id FROM agents WHERE name = ?)")
			args = append(args, q.Agent)
		case DirectionInbound:
			conds = append(conds, "EXISTS (SELECT 1 FROM recipients r JOIN agents a ON a.id = r.agent_id WHERE r.message_id = m.id AND a.name = ?)")
			args = append(args, q.Agent)
		default:
			conds = append(conds,
				"(m.sender_agent_id = (SELECT id FROM agents WHERE name = ?) OR "+
					"EXISTS (SELECT 1 FROM recipients r JOIN agents a ON a.id = r.agent_id WHERE r.message_id = m.id AND a.name = ?))")
			args = append(args, q.Agent, q.Agent)
		}
	}

	orderCol := "m.created_at_usec"
	orderDir := "DESC"
	if rank == RankRelevance && planned.MatchExpression != "" {
		orderCol = "bm25_rank"
		orderDir = "ASC" // bm25: lower is more relevant
	}

	if !q.After.IsEmpty() {
		sortValue, afterID, decodeErr := q.After.Decode()
		if decodeErr != nil {
			return nil, decodeErr
		}
		cmp := "<"
		if orderDir == "ASC" {
			cmp = ">"
		}
		conds = append(conds, fmt.Sprintf("(%s %s ? OR (%s = ? AND m.id %s ?))", orderCol, cmp, orderCol, cmp))
		args = append(args, sortValue, sortValue, afterID)
	}

	query := base + from
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, m.id %s LIMIT ?", orderCol, orderDir, orderDir)
	args = append(args, limit+1)

	var rows []row
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "search: execute query")
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	terms := extractHighlightTerms(q.Text)
	hits := make([]Hit, len(rows))
	for i, r := range rows {
		threadID := ""
		if r.ThreadID != nil {
			threadID = *r.ThreadID
		}
		hits[i] = Hit{
			MessageID:     r.ID,
			ProjectID:     r.ProjectID,
			ThreadID:      threadID,
			Subject:       r.Subject,
			Body:          r.Body,
			Importance:    r.Importance,
			SenderAgentID: r.SenderAgentID,
			CreatedAtUsec: r.CreatedAtUsec,
			Score:         r.Rank,
			Snippet:       Highlight(r.Body, terms),
		}
	}

	page := &Page{Hits: hits}
	if hasMore && len(hits) > 0 {
		last := hits[len(hits)-1]
		if orderCol == "bm25_rank" {
			page.NextCursor = EncodeRelevanceCursor(last.Score, last.MessageID)
		} else {
			page.NextCursor = EncodeRecencyCursor(last.CreatedAtUsec, last.MessageID)
		}
	}
	if q.Explain {
		page.Explain = &Explanation{MatchExpression: planned.MatchExpression, Predicates: conds, Rank: rank}
	}
	return page, nil
}

// extractHighlightTerms pulls bare terms back out of free text for
// snippet highlighting, reusing the same tokenizer the planner uses
// so highlighted spans always agree with what actually matched.
func extractHighlightTerms(text string) []string {
	tokens, err := tokenize(text)
	if err != nil {
		return nil
	}
	var terms []string
	for _, tok := range tokens {
		if ftsOperators[tok] {
			continue
		}
		_, body, _ := splitField(tok)
		terms = append(terms, strings.Trim(body, `"`))
	}
	return terms
}

// Indexer computes and persists the two-tier embeddings for a message
// at write time, so search never has to embed on the read path except
// for the query string itself.
type Indexer struct {
	Pool            *store.Pool
	FastEmbedder    Embedder
	QualityEmbedder Embedder // nil disables quality-tier indexing
}

// IndexMessage embeds subject+body with the configured embedders and
// upserts the result into message_embeddings. Safe to call more than
// once for the same message id (e.g. on edit/reprocess).
func (ix *Indexer) IndexMessage(ctx context.Context, messageID int64, subject, body string) error {
	db, err := ix.Pool.Acquire(ctx)
	if err != nil {
		return err
	}

	text := subject + "\n" + body
	fastVec, err := ix.FastEmbedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	row := store.EmbeddingRow{
		MessageID:     messageID,
		FastEmbedding: encodeFloat32Blob(fastVec),
		HasQuality:    false,
	}

	if ix.QualityEmbedder != nil {
		qualityVec, err := ix.QualityEmbedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		row.QualityEmbedding = encodeFloat32Blob(qualityVec)
		row.HasQuality = !IsZeroVector(qualityVec)
	}

	if err := db.Save(&row).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "search: save message embedding")
	}
	return nil
}

// LoadEmbeddings fetches the two-tier index entries for exactly the
// given message ids, for building an ephemeral TwoTierIndex to rerank
// a candidate set (e.g. a lexical search page).
func (s *Service) LoadEmbeddings(ctx context.Context, messageIDs []int64) ([]TwoTierEntry, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	db, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var embRows []store.EmbeddingRow
	if err := db.Where("message_id IN ?", messageIDs).Find(&embRows).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "search: load embeddings")
	}

	var msgRows []struct {
		ID        int64
		ProjectID int64
	}
	if err := db.Table("messages").Where("id IN ?", messageIDs).Select("id, project_id").Scan(&msgRows).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "search: load message project ids")
	}
	projectByID := make(map[int64]int64, len(msgRows))
	for _, m := range msgRows {
		projectByID[m.ID] = m.ProjectID
	}

	entries := make([]TwoTierEntry, 0, len(embRows))
	for _, e := range embRows {
		fast, err := decodeFloat32Blob(e.FastEmbedding)
		if err != nil {
			return nil, err
		}
		var quality []float32
		if e.HasQuality {
			quality, err = decodeFloat32Blob(e.QualityEmbedding)
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, TwoTierEntry{
			MessageID:        e.MessageID,
			ProjectID:        projectByID[e.MessageID],
			FastEmbedding:    fast,
			QualityEmbedding: quality,
			HasQuality:       e.HasQuality,
		})
	}
	return entries, nil
}
