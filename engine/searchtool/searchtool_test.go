package searchtool

import (
	"context"
	"errors"
	"testing"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/rag"
)

type fakeSearcher struct {
	calls   int
	gotOpts rag.SearchOptions
	gotTen  domain.Tenant
	results []domain.SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, tenant domain.Tenant, opts rag.SearchOptions) ([]domain.SearchResult, error) {
	f.calls++
	f.gotOpts = opts
	f.gotTen = tenant
	return f.results, f.err
}

func TestExecuteRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{UserID: "u1"}},
		{"unscoped", Request{Query: "q"}},
		{"limit too high", Request{Query: "q", UserID: "u1", Limit: MaxLimit + 1}},
		{"negative limit", Request{Query: "q", UserID: "u1", Limit: -1}},
		{"bad project id", Request{Query: "q", UserID: "u1", ProjectID: "not-a-uuid"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &fakeSearcher{}
			tool := New(svc, nil)

			_, err := tool.Execute(context.Background(), c.req)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if domain.KindOf(err) != domain.BadRequest {
				t.Errorf("expected BadRequest, got %v", domain.KindOf(err))
			}
			if svc.calls != 0 {
				t.Error("rejected request must not reach the service")
			}
		})
	}
}

func TestExecuteDefaults(t *testing.T) {
	svc := &fakeSearcher{}
	tool := New(svc, nil)

	resp, err := tool.Execute(context.Background(), Request{Query: "roadmap", OrganizationID: "org1"})
	if err != nil {
		t.Fatal(err)
	}
	if svc.gotOpts.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, svc.gotOpts.Limit)
	}
	if !svc.gotOpts.UseHybrid || !svc.gotOpts.UseReranking {
		t.Error("hybrid and reranking must default on")
	}
	if !resp.UseHybrid || !resp.UseReranking {
		t.Error("response must echo the effective settings")
	}
	if svc.gotTen.OrganizationID != "org1" {
		t.Errorf("tenant not forwarded: %+v", svc.gotTen)
	}
}

func TestExecuteExplicitToggles(t *testing.T) {
	off := false
	svc := &fakeSearcher{}
	tool := New(svc, nil)

	_, err := tool.Execute(context.Background(), Request{
		Query: "q", UserID: "u1", UseHybrid: &off, UseReranking: &off, Limit: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if svc.gotOpts.UseHybrid || svc.gotOpts.UseReranking {
		t.Error("explicit false toggles were ignored")
	}
	if svc.gotOpts.Limit != 7 {
		t.Errorf("explicit limit ignored, got %d", svc.gotOpts.Limit)
	}
}

func TestExecuteFormatsResults(t *testing.T) {
	reranked := float32(0.95)
	svc := &fakeSearcher{results: []domain.SearchResult{
		{
			ID:            "p1",
			ContentType:   domain.ContentSummary,
			ContentID:     "rec-1",
			ContentText:   "Q4 revenue grew 12%",
			Similarity:    0.7,
			RerankedScore: &reranked,
			Metadata:      map[string]string{"recording_title": "Q4 Review"},
		},
		{
			ID:          "p2",
			ContentType: domain.ContentOrgInstructions,
			ContentText: "Answer in English",
			Similarity:  0.4,
		},
	}}
	tool := New(svc, nil)

	resp, err := tool.Execute(context.Background(), Request{Query: "revenue", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Results) != 2 {
		t.Fatalf("unexpected count: %+v", resp)
	}
	if resp.Message != `Found 2 results for "revenue".` {
		t.Errorf("unexpected message: %q", resp.Message)
	}

	first := resp.Results[0]
	if first.Score != 0.95 {
		t.Errorf("score must prefer the reranked value, got %f", first.Score)
	}
	if first.Metadata["source"] != `Summary of "Q4 Review"` {
		t.Errorf("unexpected source label: %q", first.Metadata["source"])
	}
	if first.Metadata["content_type"] != "summary" || first.Metadata["content_id"] != "rec-1" {
		t.Errorf("identity metadata missing: %v", first.Metadata)
	}

	second := resp.Results[1]
	if second.Score != 0.4 {
		t.Errorf("unreranked score must fall back to similarity, got %f", second.Score)
	}
	if second.Metadata["source"] != "Organization instructions" {
		t.Errorf("unexpected source label: %q", second.Metadata["source"])
	}
	if _, ok := second.Metadata["content_id"]; ok {
		t.Error("empty content id must be omitted")
	}
}

func TestExecuteNoResultsMessage(t *testing.T) {
	tool := New(&fakeSearcher{}, nil)

	resp, err := tool.Execute(context.Background(), Request{Query: "nothing here", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Count != 0 {
		t.Errorf("expected zero results, got %d", resp.Count)
	}
	if resp.Message != `No results found for "nothing here".` {
		t.Errorf("unexpected message: %q", resp.Message)
	}
}

func TestExecuteMapsServiceErrors(t *testing.T) {
	svc := &fakeSearcher{err: errors.New("qdrant: connection refused")}
	tool := New(svc, nil)

	_, err := tool.Execute(context.Background(), Request{Query: "q", UserID: "u1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.KindOf(err) != domain.Internal {
		t.Errorf("expected Internal, got %v", domain.KindOf(err))
	}
	if msg := domain.SafeMessage(err); msg != "internal error" {
		t.Errorf("store error text must not leak, got %q", msg)
	}
}

func TestExecuteAcceptsValidProjectID(t *testing.T) {
	svc := &fakeSearcher{}
	tool := New(svc, nil)

	_, err := tool.Execute(context.Background(), Request{
		Query: "q", UserID: "u1",
		ProjectID: "2c3e4f50-6a7b-4c8d-9e0f-1a2b3c4d5e6f",
	})
	if err != nil {
		t.Fatal(err)
	}
	if svc.gotTen.ProjectID != "2c3e4f50-6a7b-4c8d-9e0f-1a2b3c4d5e6f" {
		t.Errorf("project scope not forwarded: %+v", svc.gotTen)
	}
}
