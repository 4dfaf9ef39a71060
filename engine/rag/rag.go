// Package rag orchestrates the retrieval pipeline. Query side: ensure the
// collection, embed the query, run hybrid or plain vector search, then
// optionally rerank and truncate. Ingest side: chunked documents are
// embedded in one batched call and upserted in bounded groups.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/hybrid"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
	"github.com/MinuteMind/minute-mvp/pkg/embed"
	"github.com/MinuteMind/minute-mvp/pkg/metrics"
)

// UpsertBatchSize bounds how many points go into one upsert request.
const UpsertBatchSize = 100

// Store abstracts the vector store client.
type Store interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	Search(ctx context.Context, embedding []float32, limit int, filter *semantic.Filter) ([]domain.SearchResult, error)
	KeywordSearch(ctx context.Context, query string, limit int, filter *semantic.Filter) ([]domain.SearchResult, error)
	Scroll(ctx context.Context, filter *semantic.Filter, limit int) ([]domain.SearchResult, error)
	Count(ctx context.Context, filter *semantic.Filter) (uint64, error)
	DeleteByFilter(ctx context.Context, filter *semantic.Filter) error
	SetPayload(ctx context.Context, payload map[string]string, filter *semantic.Filter) error
}

// HybridSearcher abstracts the fusion engine.
type HybridSearcher interface {
	Search(ctx context.Context, query string, embedding []float32, opts hybrid.Options) ([]domain.SearchResult, error)
}

// Reranker abstracts cross-encoder reranking. Implementations absorb their
// own failures and always return a usable ordering.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []domain.SearchResult, topK int) []domain.SearchResult
}

// Service is the RAG orchestration service.
type Service struct {
	store    Store
	embedder embed.Provider
	hybrid   HybridSearcher
	reranker Reranker
	logger   *slog.Logger
	reg      *metrics.Registry
}

// New creates a RAG Service. hybridEngine may be nil, in which case one is
// built over the store. reg may be nil to disable instrumentation.
func New(store Store, embedder embed.Provider, hybridEngine HybridSearcher, reranker Reranker, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if hybridEngine == nil {
		hybridEngine = hybrid.New(store, logger)
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		hybrid:   hybridEngine,
		reranker: reranker,
		logger:   logger,
		reg:      reg,
	}
}

// SearchOptions configures one search call.
type SearchOptions struct {
	Limit          int
	UseHybrid      bool
	UseReranking   bool
	ScoreThreshold float64
	VectorWeight   float64
	KeywordWeight  float64
	// Filters are ad-hoc payload conditions appended to the tenant filter:
	// arrays become any-of matches, scalars exact matches. Range maps
	// (gte/lte/gt/lt) are unsupported and skipped with a warning.
	Filters map[string]any
}

// DefaultSearchOptions returns the defaults the search tool exposes.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: 5, UseHybrid: true, UseReranking: true}
}

// Search runs the end-to-end query pipeline for one tenant-scoped query.
func (s *Service) Search(ctx context.Context, query string, tenant domain.Tenant, opts SearchOptions) ([]domain.SearchResult, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	start := time.Now()
	s.reg.Counter("rag_search_total", "Total search requests").Inc()

	if err := s.store.EnsureCollection(ctx, s.embedder.Dimensions()); err != nil {
		s.reg.Counter("rag_search_errors_total", "Failed search requests").Inc()
		return nil, domain.E("rag.Search", domain.Internal, "vector store unavailable", err)
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.reg.Counter("rag_search_errors_total", "Failed search requests").Inc()
		return nil, domain.E("rag.Search", domain.Internal, "query embedding failed", err)
	}

	filter := s.buildFilter(tenant, opts.Filters)

	// Over-fetch for reranking headroom.
	fetch := opts.Limit
	if opts.UseHybrid || opts.UseReranking {
		fetch = opts.Limit * 2
	}

	var results []domain.SearchResult
	if opts.UseHybrid {
		results, err = s.hybrid.Search(ctx, query, embedding, hybrid.Options{
			Limit:          fetch,
			VectorWeight:   opts.VectorWeight,
			KeywordWeight:  opts.KeywordWeight,
			ScoreThreshold: opts.ScoreThreshold,
			Filter:         filter,
		})
	} else {
		results, err = s.store.Search(ctx, embedding, fetch, filter)
	}
	if err != nil {
		s.reg.Counter("rag_search_errors_total", "Failed search requests").Inc()
		return nil, domain.E("rag.Search", domain.Internal, "search failed", err)
	}

	if opts.UseReranking && len(results) > 0 && s.reranker != nil {
		// Reranking failures are absorbed inside the reranker; the
		// pre-rerank ordering survives an outage.
		results = s.reranker.Rerank(ctx, query, results, opts.Limit)
	} else if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.reg.Histogram("rag_search_duration_seconds", "Search latency", nil).Since(start)
	s.logger.Info("rag search done", "results", len(results), "hybrid", opts.UseHybrid, "rerank", opts.UseReranking)
	return results, nil
}

// buildFilter always includes the caller's scoping identifiers as
// conjunctive match conditions, then appends ad-hoc filters.
func (s *Service) buildFilter(tenant domain.Tenant, adhoc map[string]any) *semantic.Filter {
	f := semantic.NewFilter()
	if tenant.UserID != "" {
		f.Match(semantic.FieldUserID, tenant.UserID)
	}
	if tenant.OrganizationID != "" {
		f.Match(semantic.FieldOrgID, tenant.OrganizationID)
	}
	if tenant.ProjectID != "" {
		f.Match(semantic.FieldProjectID, tenant.ProjectID)
	}

	for key, val := range adhoc {
		switch tv := val.(type) {
		case []string:
			f.MatchAny(key, tv)
		case []any:
			vals := make([]string, 0, len(tv))
			for _, item := range tv {
				vals = append(vals, fmt.Sprint(item))
			}
			f.MatchAny(key, vals)
		case map[string]any:
			// Range filters (gte/lte/gt/lt) are not implemented; skipping
			// silently would misapply the query, so log and drop.
			s.logger.Warn("rag: range filter not supported, skipping", "field", key)
		case string:
			f.Match(key, tv)
		default:
			f.Match(key, fmt.Sprint(val))
		}
	}
	return f
}
