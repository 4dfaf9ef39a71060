// Package searchtool is the thin adapter between LLM agents and the RAG
// service: it validates untrusted input, enforces tenant scoping, and
// formats results for LLM consumption.
package searchtool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/rag"
	"github.com/google/uuid"
)

// MaxLimit bounds the number of results a caller may request.
const MaxLimit = 50

// DefaultLimit applies when the caller omits limit.
const DefaultLimit = 5

// Searcher is the RAG service surface the tool depends on.
type Searcher interface {
	Search(ctx context.Context, query string, tenant domain.Tenant, opts rag.SearchOptions) ([]domain.SearchResult, error)
}

// Request is the untrusted external input.
type Request struct {
	Query          string         `json:"query"`
	Limit          int            `json:"limit,omitempty"`
	UseHybrid      *bool          `json:"useHybrid,omitempty"`
	UseReranking   *bool          `json:"useReranking,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	ProjectID      string         `json:"projectId,omitempty"`
	Filters        map[string]any `json:"filters,omitempty"`
}

// FormattedResult is the flat shape handed to an LLM caller.
type FormattedResult struct {
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Response is the tool's envelope, displayable without further templating.
type Response struct {
	Results      []FormattedResult `json:"results"`
	Count        int               `json:"count"`
	Query        string            `json:"query"`
	UseHybrid    bool              `json:"useHybrid"`
	UseReranking bool              `json:"useReranking"`
	Message      string            `json:"message"`
}

// Tool validates, scopes, searches, and formats.
type Tool struct {
	svc    Searcher
	logger *slog.Logger
}

// New creates a search tool over a RAG service.
func New(svc Searcher, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{svc: svc, logger: logger}
}

// validate normalises the request and rejects malformed input with
// per-field bad-request messages. Unscoped requests are rejected before
// any store access: they could leak cross-tenant data.
func validate(req *Request) error {
	if req.Query == "" {
		return domain.E("searchtool", domain.BadRequest, "query must not be empty", nil)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return domain.E("searchtool", domain.BadRequest,
			fmt.Sprintf("limit must be between 1 and %d", MaxLimit), nil)
	}
	if req.UserID == "" && req.OrganizationID == "" {
		return domain.E("searchtool", domain.BadRequest,
			"either userId or organizationId must be provided", nil)
	}
	if req.ProjectID != "" {
		if _, err := uuid.Parse(req.ProjectID); err != nil {
			return domain.E("searchtool", domain.BadRequest, "projectId must be a valid UUID", nil)
		}
	}
	return nil
}

// Execute runs one validated, tenant-scoped search. Internal failures come
// back as taxonomy errors with safe messages; store error text never
// reaches the caller.
func (t *Tool) Execute(ctx context.Context, req Request) (Response, error) {
	if err := validate(&req); err != nil {
		return Response{}, err
	}

	useHybrid := req.UseHybrid == nil || *req.UseHybrid
	useReranking := req.UseReranking == nil || *req.UseReranking

	tenant := domain.Tenant{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		ProjectID:      req.ProjectID,
	}

	results, err := t.svc.Search(ctx, req.Query, tenant, rag.SearchOptions{
		Limit:        req.Limit,
		UseHybrid:    useHybrid,
		UseReranking: useReranking,
		Filters:      req.Filters,
	})
	if err != nil {
		t.logger.Error("searchtool: search failed", "err", err)
		return Response{}, domain.E("searchtool", domain.KindOf(err), domain.SafeMessage(err), err)
	}

	formatted := make([]FormattedResult, len(results))
	for i, r := range results {
		formatted[i] = format(r)
	}

	return Response{
		Results:      formatted,
		Count:        len(formatted),
		Query:        req.Query,
		UseHybrid:    useHybrid,
		UseReranking: useReranking,
		Message:      message(len(formatted), req.Query),
	}, nil
}

// format flattens a SearchResult: score prefers the reranked score, and
// metadata gains a human-readable source line.
func format(r domain.SearchResult) FormattedResult {
	meta := make(map[string]string, len(r.Metadata)+3)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta["content_type"] = r.ContentType.String()
	if r.ContentID != "" {
		meta["content_id"] = r.ContentID
	}
	meta["source"] = r.ContentType.SourceLabel(r.Metadata)
	return FormattedResult{
		Content:  r.ContentText,
		Score:    r.FinalScore(),
		Metadata: meta,
	}
}

func message(count int, query string) string {
	if count == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}
	if count == 1 {
		return fmt.Sprintf("Found 1 result for %q.", query)
	}
	return fmt.Sprintf("Found %d results for %q.", count, query)
}
