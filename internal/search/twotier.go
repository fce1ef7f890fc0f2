package search

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/metrics"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/telemetry"
)

// TwoTierConfig mirrors config.SearchConfig's tunables as the shape
// the reranker itself consumes, grounded on
// original_source/crates/mcp-agent-mail-search-core/src/two_tier.rs's
// TwoTierConfig.
type TwoTierConfig struct {
	QualityWeight     float32
	MaxRefinementDocs int
	FastOnly          bool
	QualityOnly       bool
}

// Embedder turns free text into a fixed-dimension vector. See
// internal/search/embed for the fast/quality implementations.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ID() string
}

// TwoTierEntry is one document's pair of embeddings in the index.
type TwoTierEntry struct {
	MessageID        int64
	ProjectID        int64
	FastEmbedding    []float32
	QualityEmbedding []float32
	HasQuality       bool
}

// ScoredResult is a single ranked hit.
type ScoredResult struct {
	MessageID int64
	ProjectID int64
	Score     float32
}

// PhaseKind discriminates a SearchPhase's variant.
type PhaseKind int

const (
	PhaseInitial PhaseKind = iota
	PhaseRefined
	PhaseRefinementFailed
)

// SearchPhase is one step of the progressive search contract
// (spec.md §4.4): Initial (fast embedder, always first unless
// quality-only), Refined (quality embedder blended in), or
// RefinementFailed (quality embedding failed; Initial results stand).
type SearchPhase struct {
	Kind      PhaseKind
	Results   []ScoredResult
	LatencyMS int64
	Error     string
}

// TwoTierIndex holds fast/quality embeddings for a fixed set of
// documents, row-aligned by position.
type TwoTierIndex struct {
	entries []TwoTierEntry
}

// NewTwoTierIndex builds an index from entries. Unlike the original's
// build(), dimension validation is the caller's responsibility (the
// embed package guarantees fixed dimensions per embedder), so this
// constructor never fails.
func NewTwoTierIndex(entries []TwoTierEntry) *TwoTierIndex {
	return &TwoTierIndex{entries: append([]TwoTierEntry(nil), entries...)}
}

func (idx *TwoTierIndex) Len() int { return len(idx.entries) }

// searchByVector scores every entry against queryVec using the
// supplied embedding selector and returns the top-k by descending
// score, ties broken by original index for determinism. A dimension
// mismatch against any given entry yields a zero score for that entry
// rather than failing the whole search (spec.md §4.4: "dimension
// mismatches return empty results" — applied per-candidate here so
// one malformed row cannot suppress the rest of the index).
func (idx *TwoTierIndex) searchByVector(queryVec []float32, k int, selectEmbedding func(TwoTierEntry) ([]float32, bool)) []ScoredResult {
	if len(idx.entries) == 0 || k <= 0 || len(queryVec) == 0 {
		return nil
	}

	type scored struct {
		result ScoredResult
		pos    int
	}
	all := make([]scored, 0, len(idx.entries))
	for i, e := range idx.entries {
		vec, ok := selectEmbedding(e)
		if !ok {
			continue
		}
		all = append(all, scored{
			result: ScoredResult{MessageID: e.MessageID, ProjectID: e.ProjectID, Score: dotProduct(vec, queryVec)},
			pos:    i,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].result.Score != all[j].result.Score {
			return all[i].result.Score > all[j].result.Score
		}
		return all[i].pos < all[j].pos
	})

	if k > len(all) {
		k = len(all)
	}
	out := make([]ScoredResult, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].result
	}
	return out
}

// SearchFast scores the index with a fast-dimension query vector. A
// dimension mismatch between queryVec and an entry's fast embedding
// excludes that entry rather than failing the call.
func (idx *TwoTierIndex) SearchFast(queryVec []float32, k int) []ScoredResult {
	return idx.searchByVector(queryVec, k, func(e TwoTierEntry) ([]float32, bool) {
		if len(e.FastEmbedding) != len(queryVec) {
			return nil, false
		}
		return e.FastEmbedding, true
	})
}

// SearchQuality scores the index with a quality-dimension query
// vector, over only the documents that have a real quality embedding.
func (idx *TwoTierIndex) SearchQuality(queryVec []float32, k int) []ScoredResult {
	return idx.searchByVector(queryVec, k, func(e TwoTierEntry) ([]float32, bool) {
		if !e.HasQuality || len(e.QualityEmbedding) != len(queryVec) {
			return nil, false
		}
		return e.QualityEmbedding, true
	})
}

// qualityScoreFor returns the dot product of queryVec against
// messageID's quality embedding, and whether that document carries a
// real (non-fallback) quality embedding of matching dimension.
func (idx *TwoTierIndex) qualityScoreFor(messageID int64, queryVec []float32) (float32, bool) {
	for _, e := range idx.entries {
		if e.MessageID != messageID {
			continue
		}
		if !e.HasQuality || len(e.QualityEmbedding) != len(queryVec) {
			return 0, false
		}
		return dotProduct(e.QualityEmbedding, queryVec), true
	}
	return 0, false
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeScores rescales scores to [0, 1] by min-max. A degenerate
// (all-equal) input maps every value to 0, matching the original's
// normalize_scores behavior of treating a zero-range set as
// uninformative rather than dividing by zero.
func normalizeScores(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float32, len(scores))
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}

// BlendScore blends a fast and quality score with weight w (0 = fast
// only, 1 = quality only): (1-w)*fast + w*quality.
func BlendScore(fast, quality, w float32) float32 {
	return (1-w)*fast + w*quality
}

// Searcher coordinates fast and quality embedders over an index to
// realize the progressive search contract.
type Searcher struct {
	Index           *TwoTierIndex
	FastEmbedder    Embedder
	QualityEmbedder Embedder // nil if no quality model is configured
	Config          TwoTierConfig
	Now             func() time.Time
	Metrics         *metrics.Collector // nil disables metric recording
}

func (s *Searcher) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Search runs the progressive contract and returns every phase it
// produced, in order. Go's caller-pull model (rather than the
// original's push iterator) is used because every phase here is
// already materialized synchronously; a streaming caller can still
// range over the returned slice incrementally.
func (s *Searcher) Search(ctx context.Context, query string, k int) (_ []SearchPhase, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "search.Search")
	span.SetAttributes(
		attribute.Int("agentmail.search_k", k),
		attribute.Bool("agentmail.fast_only", s.Config.FastOnly),
		attribute.Bool("agentmail.quality_only", s.Config.QualityOnly),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.Config.QualityOnly {
		return []SearchPhase{s.runQualityOnlyPhase(ctx, query, k)}, nil
	}

	start := s.now()
	queryVec, err := s.FastEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	fastResults := s.Index.SearchFast(queryVec, k)
	initialLatency := elapsedMS(start, s.now())
	if s.Metrics != nil {
		s.Metrics.RecordSearch("initial", time.Duration(initialLatency)*time.Millisecond)
	}
	initial := SearchPhase{
		Kind:      PhaseInitial,
		Results:   fastResults,
		LatencyMS: initialLatency,
	}

	if s.Config.FastOnly {
		return []SearchPhase{initial}, nil
	}

	return []SearchPhase{initial, s.runRefinementPhase(ctx, query, k, fastResults)}, nil
}

// SearchFastOnly runs only the fast phase and returns its results
// directly, for callers that never want to wait on refinement.
func (s *Searcher) SearchFastOnly(ctx context.Context, query string, k int) ([]ScoredResult, error) {
	queryVec, err := s.FastEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Index.SearchFast(queryVec, k), nil
}

// SearchQualityOnly runs only the quality phase directly over quality
// vectors, skipping Initial entirely.
func (s *Searcher) SearchQualityOnly(ctx context.Context, query string, k int) ([]ScoredResult, error) {
	if s.QualityEmbedder == nil {
		return nil, errs.New(errs.Unavailable, "search: quality embedder not available")
	}
	queryVec, err := s.QualityEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Index.SearchQuality(queryVec, k), nil
}

func (s *Searcher) runQualityOnlyPhase(ctx context.Context, query string, k int) SearchPhase {
	start := s.now()
	results, err := s.SearchQualityOnly(ctx, query, k)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.RecordSearchRefinementFailure()
		}
		return SearchPhase{Kind: PhaseRefinementFailed, Error: err.Error()}
	}
	elapsed := elapsedMS(start, s.now())
	if s.Metrics != nil {
		s.Metrics.RecordSearch("quality_only", time.Duration(elapsed)*time.Millisecond)
	}
	return SearchPhase{Kind: PhaseRefined, Results: results, LatencyMS: elapsed}
}

func (s *Searcher) runRefinementPhase(ctx context.Context, query string, k int, fastResults []ScoredResult) SearchPhase {
	if s.QualityEmbedder == nil {
		if s.Metrics != nil {
			s.Metrics.RecordSearchRefinementFailure()
		}
		return SearchPhase{Kind: PhaseRefinementFailed, Error: "quality embedder unavailable"}
	}

	start := s.now()
	queryVec, err := s.QualityEmbedder.Embed(ctx, query)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.RecordSearchRefinementFailure()
		}
		return SearchPhase{Kind: PhaseRefinementFailed, Error: err.Error()}
	}

	results := s.buildRefinedResults(queryVec, k, fastResults)
	elapsed := elapsedMS(start, s.now())
	if s.Metrics != nil {
		s.Metrics.RecordSearch("refinement", time.Duration(elapsed)*time.Millisecond)
	}
	return SearchPhase{Kind: PhaseRefined, Results: results, LatencyMS: elapsed}
}

// buildRefinedResults implements the blend step of the progressive
// contract: the first min(MaxRefinementDocs, len(fastResults))
// candidates get a blended score (quality weight zeroed for docs
// without a real quality embedding); any candidates beyond the budget
// keep their fast-phase score untouched; the whole set is re-sorted
// and truncated to k.
func (s *Searcher) buildRefinedResults(queryVec []float32, k int, fastResults []ScoredResult) []ScoredResult {
	if len(fastResults) == 0 {
		return nil
	}

	limit := s.Config.MaxRefinementDocs
	if limit > len(fastResults) {
		limit = len(fastResults)
	}
	if limit <= 0 {
		out := append([]ScoredResult(nil), fastResults...)
		return truncate(out, k)
	}

	fastScores := make([]float32, limit)
	qualityScores := make([]float32, limit)
	hasQuality := make([]bool, limit)
	for i := 0; i < limit; i++ {
		fastScores[i] = fastResults[i].Score
		score, ok := s.Index.qualityScoreFor(fastResults[i].MessageID, queryVec)
		qualityScores[i] = score
		hasQuality[i] = ok
	}

	fastNorm := normalizeScores(fastScores)
	qualityNorm := normalizeScores(qualityScores)

	blended := make([]ScoredResult, 0, len(fastResults))
	for i := 0; i < limit; i++ {
		w := s.Config.QualityWeight
		if !hasQuality[i] {
			w = 0
		}
		blended = append(blended, ScoredResult{
			MessageID: fastResults[i].MessageID,
			ProjectID: fastResults[i].ProjectID,
			Score:     BlendScore(fastNorm[i], qualityNorm[i], w),
		})
	}
	blended = append(blended, fastResults[limit:]...)

	sort.SliceStable(blended, func(i, j int) bool { return blended[i].Score > blended[j].Score })
	return truncate(blended, k)
}

func truncate(results []ScoredResult, k int) []ScoredResult {
	if k >= 0 && k < len(results) {
		return results[:k]
	}
	return results
}

func elapsedMS(start, end time.Time) int64 {
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}

// IsZeroVector reports whether every component is within float32
// epsilon of zero, the same "fallback quality embedding" detector the
// original uses to decide has_quality when a caller didn't set the
// flag explicitly.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if float64(math.Abs(float64(x))) >= epsilon {
			return false
		}
	}
	return true
}

const epsilon = 1e-7
