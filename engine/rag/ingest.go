package rag

import (
	"context"
	"fmt"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
	"github.com/MinuteMind/minute-mvp/pkg/fn"
	"github.com/google/uuid"
)

// BatchReport summarises a batched ingest: how many points were written and
// how many were lost to upsert failures.
type BatchReport struct {
	Succeeded int
	Failed    int
}

// AddDocument embeds one document and upserts one point.
func (s *Service) AddDocument(ctx context.Context, doc domain.Document, tenant domain.Tenant) error {
	report, err := s.AddDocumentBatch(ctx, []domain.Document{doc}, tenant)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return domain.E("rag.AddDocument", domain.Internal, "document upsert failed", nil)
	}
	return nil
}

// AddDocumentBatch embeds all contents in one batched provider call, then
// upserts in groups of UpsertBatchSize. A vector/document count mismatch is
// fatal for the whole batch. Per-group upsert failures are logged and do
// not abort the remaining groups, but the returned error aggregates them:
// a partially failed batch is reported as a failure with counts.
func (s *Service) AddDocumentBatch(ctx context.Context, docs []domain.Document, tenant domain.Tenant) (BatchReport, error) {
	if err := tenant.Validate(); err != nil {
		return BatchReport{}, err
	}
	if len(docs) == 0 {
		return BatchReport{}, nil
	}

	if err := s.store.EnsureCollection(ctx, s.embedder.Dimensions()); err != nil {
		return BatchReport{}, domain.E("rag.AddDocumentBatch", domain.Internal, "vector store unavailable", err)
	}

	contents := fn.Map(docs, func(d domain.Document) string { return d.Content })
	embeddings, err := s.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return BatchReport{}, domain.E("rag.AddDocumentBatch", domain.Internal, "batch embedding failed", err)
	}
	if len(embeddings) != len(docs) {
		return BatchReport{}, domain.E("rag.AddDocumentBatch", domain.Internal,
			fmt.Sprintf("embedding count mismatch: %d vectors for %d documents", len(embeddings), len(docs)), nil)
	}

	records := make([]semantic.VectorRecord, len(docs))
	for i, d := range docs {
		records[i] = semantic.VectorRecord{
			ID:        pointID(tenant, d),
			Embedding: embeddings[i],
			Payload:   payloadFor(d, tenant),
		}
	}

	var report BatchReport
	for i, group := range fn.Chunk(records, UpsertBatchSize) {
		if err := s.store.Upsert(ctx, group); err != nil {
			report.Failed += len(group)
			s.logger.Error("rag: batch upsert failed", "group", i, "size", len(group), "err", err)
			s.reg.Counter("rag_ingest_errors_total", "Failed point upserts").Add(int64(len(group)))
			continue
		}
		report.Succeeded += len(group)
	}
	s.reg.Counter("rag_ingest_points_total", "Points upserted").Add(int64(report.Succeeded))

	if report.Failed > 0 {
		return report, domain.E("rag.AddDocumentBatch", domain.Internal,
			fmt.Sprintf("batch partially failed: %d succeeded, %d failed", report.Succeeded, report.Failed), nil)
	}
	return report, nil
}

// pointID derives a deterministic UUID from tenant, content id, and chunk
// index so retrying a partially failed batch overwrites instead of
// duplicating points.
func pointID(tenant domain.Tenant, doc domain.Document) string {
	contentID := doc.Metadata[semantic.FieldContentID]
	if contentID == "" {
		contentID = doc.Content
	}
	key := fmt.Sprintf("%s|%s|%s|%s", tenant.UserID, tenant.OrganizationID, contentID, doc.Metadata["chunk_index"])
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// payloadFor builds the point payload: tenant keys, content, and every
// metadata key the caller stamped.
func payloadFor(doc domain.Document, tenant domain.Tenant) map[string]any {
	payload := make(map[string]any, len(doc.Metadata)+4)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[semantic.FieldContent] = doc.Content
	if tenant.UserID != "" {
		payload[semantic.FieldUserID] = tenant.UserID
	}
	if tenant.OrganizationID != "" {
		payload[semantic.FieldOrgID] = tenant.OrganizationID
	}
	if tenant.ProjectID != "" && payload[semantic.FieldProjectID] == nil {
		payload[semantic.FieldProjectID] = tenant.ProjectID
	}
	return payload
}

// DeleteUserData erases every point belonging to the tenant. Used for
// compliance erasure.
func (s *Service) DeleteUserData(ctx context.Context, tenant domain.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	f := semantic.NewFilter()
	if tenant.UserID != "" {
		f.Match(semantic.FieldUserID, tenant.UserID)
	}
	if tenant.OrganizationID != "" {
		f.Match(semantic.FieldOrgID, tenant.OrganizationID)
	}
	if err := s.store.DeleteByFilter(ctx, f); err != nil {
		return domain.E("rag.DeleteUserData", domain.Internal, "tenant erasure failed", err)
	}
	return nil
}

// DeleteByOrganizationAndContentType purges one content type for an
// organization, e.g. stale organization instructions before a reindex.
func (s *Service) DeleteByOrganizationAndContentType(ctx context.Context, orgID string, ct domain.ContentType) error {
	if orgID == "" {
		return domain.E("rag.DeleteByOrganizationAndContentType", domain.BadRequest, "organizationId is required", nil)
	}
	f := semantic.NewFilter().
		Match(semantic.FieldOrgID, orgID).
		Match(semantic.FieldContentType, ct.String())
	if err := s.store.DeleteByFilter(ctx, f); err != nil {
		return domain.E("rag.DeleteByOrganizationAndContentType", domain.Internal, "content purge failed", err)
	}
	return nil
}

// UpdateProjectID re-points every chunk of a logical entity at a new
// project without re-embedding.
func (s *Service) UpdateProjectID(ctx context.Context, contentID string, ct domain.ContentType, newProjectID string) error {
	if contentID == "" {
		return domain.E("rag.UpdateProjectID", domain.BadRequest, "contentId is required", nil)
	}
	f := semantic.NewFilter().
		Match(semantic.FieldContentID, contentID).
		Match(semantic.FieldContentType, ct.String())
	patch := map[string]string{semantic.FieldProjectID: newProjectID}
	if err := s.store.SetPayload(ctx, patch, f); err != nil {
		return domain.E("rag.UpdateProjectID", domain.Internal, "project re-point failed", err)
	}
	return nil
}

// Stats reports point counts for a tenant, total and per content type.
// Uses counting reads, never the query-latency path.
type Stats struct {
	Total         uint64                        `json:"total"`
	ByContentType map[domain.ContentType]uint64 `json:"by_content_type"`
}

// Stats returns tenant-scoped point counts.
func (s *Service) Stats(ctx context.Context, tenant domain.Tenant) (Stats, error) {
	if err := tenant.Validate(); err != nil {
		return Stats{}, err
	}
	base := s.buildFilter(tenant, nil)
	total, err := s.store.Count(ctx, base)
	if err != nil {
		return Stats{}, domain.E("rag.Stats", domain.Internal, "count failed", err)
	}
	out := Stats{Total: total, ByContentType: make(map[domain.ContentType]uint64, len(domain.AllContentTypes))}
	for _, ct := range domain.AllContentTypes {
		f := s.buildFilter(tenant, nil).Match(semantic.FieldContentType, ct.String())
		n, err := s.store.Count(ctx, f)
		if err != nil {
			return Stats{}, domain.E("rag.Stats", domain.Internal, "count failed", err)
		}
		if n > 0 {
			out.ByContentType[ct] = n
		}
	}
	return out, nil
}
