// Package embed provides the fast/quality embedder interfaces the
// two-tier reranker consumes, plus deterministic local
// implementations. The core never calls a live embedding API: per
// SPEC_FULL.md's domain-stack decision, embedding/rerank providers sit
// behind an interface shaped like the teacher's
// llm/embedding.Provider (Embed/Name/Dimensions), and production here
// is wired to a local, dependency-free implementation so search
// behavior never depends on network availability.
package embed

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// Embedder matches internal/search.Embedder's shape; it is redeclared
// here (rather than imported) so this package has no dependency on
// internal/search, keeping the embedding boundary one-directional.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ID() string
}

// tokenizerEncoding is shared by both local embedders and by any
// caller wanting the same token count search uses to validate query
// length, so the lexical planner and this package never disagree
// about what "a token" means.
const tokenizerEncoding = "cl100k_base"

// CountTokens returns the cl100k_base token count of text, the same
// tokenizer writepipeline uses for its size-bound checks (SPEC_FULL.md
// domain stack: "search query tokenizer shared with subject/body
// size-bound checks").
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.GetEncoding(tokenizerEncoding)
	if err != nil {
		return 0, errs.Wrap(err, errs.Internal, "embed: load tokenizer encoding")
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// HashingEmbedder is a deterministic, local, dependency-free embedder:
// it tokenizes text (lowercased, unicode-letter/digit runs) and
// accumulates each token's FNV-1a hash, spread across the output
// dimension via a second hash per slot, then L2-normalizes the
// result. Identical text always produces an identical vector;
// semantically related text produces related vectors only to the
// extent shared tokens collide, which is sufficient for exercising
// the two-tier contract deterministically in tests and in the absence
// of a configured external provider.
type HashingEmbedder struct {
	id  string
	dim int
}

// NewFastEmbedder builds the default fast-tier local embedder.
func NewFastEmbedder(dimension int) *HashingEmbedder {
	return &HashingEmbedder{id: "local-hashing-fast", dim: dimension}
}

// NewQualityEmbedder builds the default quality-tier local embedder.
// It is a distinct instance (different salt) from the fast embedder
// so the two tiers don't degenerate into the same ranking.
func NewQualityEmbedder(dimension int) *HashingEmbedder {
	return &HashingEmbedder{id: "local-hashing-quality", dim: dimension}
}

func (e *HashingEmbedder) ID() string     { return e.id }
func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed never fails for non-empty dim; it returns an all-zero vector
// for empty or whitespace-only text, which normalizeScores and the
// two-tier blend treat as an uninformative score rather than a panic.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.dim <= 0 {
		return nil, errs.New(errs.InvalidArgument, "embed: embedder dimension must be positive")
	}
	vec := make([]float32, e.dim)
	for _, tok := range tokenizeForEmbedding(text) {
		slot, weight := tokenHashSlot(e.id, tok, e.dim)
		vec[slot] += weight
	}
	normalizeL2(vec)
	return vec, nil
}

// tokenizeForEmbedding lowercases and splits on runs of non-letter/
// non-digit characters, discarding empty tokens.
func tokenizeForEmbedding(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// tokenHashSlot maps a (salt, token) pair to an output dimension slot
// and a signed unit weight, the hashing-trick feature construction.
func tokenHashSlot(salt, token string, dim int) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(salt))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()

	slot := int(sum % uint64(dim))

	var signBuf [8]byte
	binary.LittleEndian.PutUint64(signBuf[:], sum)
	sign := float32(1)
	if signBuf[7]&1 == 1 {
		sign = -1
	}
	return slot, sign
}

func normalizeL2(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
