// Package hybrid produces one ranked list by combining dense vector search
// with lexical keyword search using Reciprocal Rank Fusion.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
)

// RRFK is the smoothing constant in the fused score weight/(rank+k).
const RRFK = 60

// Default list weights. They need not sum to 1.
const (
	DefaultVectorWeight  = 0.7
	DefaultKeywordWeight = 0.3
)

// Searcher abstracts the two retrieval paths of the vector store.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int, filter *semantic.Filter) ([]domain.SearchResult, error)
	KeywordSearch(ctx context.Context, query string, limit int, filter *semantic.Filter) ([]domain.SearchResult, error)
}

// Options configures one hybrid search.
type Options struct {
	Limit          int
	VectorWeight   float64
	KeywordWeight  float64
	ScoreThreshold float64
	Filter         *semantic.Filter
}

func (o *Options) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.VectorWeight == 0 && o.KeywordWeight == 0 {
		o.VectorWeight = DefaultVectorWeight
		o.KeywordWeight = DefaultKeywordWeight
	}
}

// RankedResult is the pre-fusion intermediate: a hit plus its 1-based rank
// within its source list.
type RankedResult struct {
	domain.SearchResult
	Rank   int
	Source string // "vector" or "keyword"
}

// Engine runs hybrid retrieval against a Searcher.
type Engine struct {
	store  Searcher
	logger *slog.Logger
}

// New creates a hybrid search engine.
func New(store Searcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Search runs vector and keyword retrieval over the same scoped filter and
// fuses the two ranked lists. A keyword failure degrades to vector-only
// ranking; it never fails the overall search.
func (e *Engine) Search(ctx context.Context, query string, embedding []float32, opts Options) ([]domain.SearchResult, error) {
	opts.applyDefaults()

	vec, err := e.store.Search(ctx, embedding, opts.Limit, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid: vector search: %w", err)
	}

	kw, err := e.store.KeywordSearch(ctx, query, opts.Limit, opts.Filter)
	if err != nil {
		e.logger.Warn("hybrid: keyword search failed, falling back to vector-only", "err", err)
		kw = nil
	}

	fused := Fuse(rank(vec, "vector"), rank(kw, "keyword"), opts.VectorWeight, opts.KeywordWeight, RRFK)

	out := fused[:0]
	for _, r := range fused {
		if float64(r.Similarity) >= opts.ScoreThreshold {
			out = append(out, r)
		}
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// rank assigns 1-based positions within a source list.
func rank(results []domain.SearchResult, source string) []RankedResult {
	ranked := make([]RankedResult, len(results))
	for i, r := range results {
		ranked[i] = RankedResult{SearchResult: r, Rank: i + 1, Source: source}
	}
	return ranked
}

// Fuse merges two ranked lists with Reciprocal Rank Fusion: each point's
// fused score is the sum over the lists it appears in of weight/(rank+k).
// A point present in both lists contributes the fused sum, never a pick of
// the max, and is emitted exactly once. Output is sorted descending by
// fused score with the fused value stored as Similarity.
func Fuse(vector, keyword []RankedResult, vectorWeight, keywordWeight float64, k int) []domain.SearchResult {
	scores := make(map[string]float64, len(vector)+len(keyword))
	byID := make(map[string]domain.SearchResult, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	accumulate := func(list []RankedResult, weight float64) {
		for _, r := range list {
			if _, seen := scores[r.ID]; !seen {
				order = append(order, r.ID)
				byID[r.ID] = r.SearchResult
			}
			scores[r.ID] += weight / float64(r.Rank+k)
		}
	}
	accumulate(vector, vectorWeight)
	accumulate(keyword, keywordWeight)

	out := make([]domain.SearchResult, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.Similarity = float32(scores[id])
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}
