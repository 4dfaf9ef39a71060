package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MinuteMind/minute-mvp/engine/domain"
	"github.com/MinuteMind/minute-mvp/engine/rag"
	"github.com/MinuteMind/minute-mvp/engine/semantic"
)

// Ingestor turns domain entities into chunked, embedded, upserted points.
type Ingestor interface {
	AddDocumentBatch(ctx context.Context, docs []domain.Document, tenant domain.Tenant) (rag.BatchReport, error)
	DeleteByOrganizationAndContentType(ctx context.Context, orgID string, ct domain.ContentType) error
}

// Indexer renders domain entities to plain text and feeds them through the
// chunk → embed batch → upsert pipeline, one chunk per point.
type Indexer struct {
	svc    Ingestor
	logger *slog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(svc Ingestor, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{svc: svc, logger: logger}
}

// chunkDocs chunks text at the default budget and stamps chunk_index /
// total_chunks plus the shared metadata into every chunk document.
func chunkDocs(text string, meta map[string]string) []domain.Document {
	chunks := ChunkText(text, DefaultChunkTokens)
	docs := make([]domain.Document, len(chunks))
	for i, c := range chunks {
		m := make(map[string]string, len(meta)+2)
		for k, v := range meta {
			m[k] = v
		}
		m["chunk_index"] = strconv.Itoa(i)
		m["total_chunks"] = strconv.Itoa(len(chunks))
		docs[i] = domain.Document{Content: c, Metadata: m}
	}
	return docs
}

// IndexTranscription indexes a recording transcript.
func (ix *Indexer) IndexTranscription(ctx context.Context, t Transcription, tenant domain.Tenant) (rag.BatchReport, error) {
	docs := chunkDocs(t.Text, map[string]string{
		semantic.FieldContentType: domain.ContentTranscription.String(),
		semantic.FieldContentID:   t.RecordingID,
		"recording_title":         t.RecordingTitle,
		"recording_date":          t.RecordingDate,
		"title":                   t.RecordingTitle,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// IndexSummary indexes a recording summary.
func (ix *Indexer) IndexSummary(ctx context.Context, s Summary, tenant domain.Tenant) (rag.BatchReport, error) {
	docs := chunkDocs(s.Text, map[string]string{
		semantic.FieldContentType: domain.ContentSummary.String(),
		semantic.FieldContentID:   s.RecordingID,
		"recording_title":         s.RecordingTitle,
		"recording_date":          s.RecordingDate,
		"title":                   s.RecordingTitle,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// IndexTasks renders a recording's tasks to plain text and indexes them.
func (ix *Indexer) IndexTasks(ctx context.Context, tl TaskList, tenant domain.Tenant) (rag.BatchReport, error) {
	var b strings.Builder
	for _, t := range tl.Tasks {
		fmt.Fprintf(&b, "Task: %s", t.Title)
		if t.Status != "" {
			fmt.Fprintf(&b, " [%s]", t.Status)
		}
		if t.DueDate != "" {
			fmt.Fprintf(&b, " (due %s)", t.DueDate)
		}
		if t.Description != "" {
			fmt.Fprintf(&b, "\n%s", t.Description)
		}
		b.WriteString("\n\n")
	}
	docs := chunkDocs(strings.TrimSuffix(b.String(), "\n\n"), map[string]string{
		semantic.FieldContentType: domain.ContentTask.String(),
		semantic.FieldContentID:   tl.RecordingID,
		"recording_title":         tl.RecordingTitle,
		"title":                   tl.RecordingTitle,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// IndexKnowledgeDocument indexes an uploaded reference document.
func (ix *Indexer) IndexKnowledgeDocument(ctx context.Context, kd KnowledgeDocument, tenant domain.Tenant) (rag.BatchReport, error) {
	docs := chunkDocs(kd.Text, map[string]string{
		semantic.FieldContentType: domain.ContentKnowledgeDoc.String(),
		semantic.FieldContentID:   kd.ID,
		"title":                   kd.Title,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// IndexProjectTemplate indexes a project template outline.
func (ix *Indexer) IndexProjectTemplate(ctx context.Context, pt ProjectTemplate, tenant domain.Tenant) (rag.BatchReport, error) {
	var b strings.Builder
	b.WriteString(pt.Name)
	if pt.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(pt.Description)
	}
	for _, sec := range pt.Sections {
		b.WriteString("\n\n")
		b.WriteString(sec)
	}
	docs := chunkDocs(b.String(), map[string]string{
		semantic.FieldContentType: domain.ContentProjectTemplate.String(),
		semantic.FieldContentID:   pt.ID,
		"title":                   pt.Name,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// IndexOrganizationInstructions replaces the organization's instructions:
// stale points are purged before the new text is indexed so reindexing
// never accumulates outdated chunks.
func (ix *Indexer) IndexOrganizationInstructions(ctx context.Context, oi OrgInstructions, tenant domain.Tenant) (rag.BatchReport, error) {
	if tenant.OrganizationID == "" {
		return rag.BatchReport{}, domain.E("ingest.IndexOrganizationInstructions", domain.BadRequest,
			"organizationId is required", nil)
	}
	if err := ix.svc.DeleteByOrganizationAndContentType(ctx, tenant.OrganizationID, domain.ContentOrgInstructions); err != nil {
		return rag.BatchReport{}, err
	}
	docs := chunkDocs(oi.Text, map[string]string{
		semantic.FieldContentType: domain.ContentOrgInstructions.String(),
		semantic.FieldContentID:   tenant.OrganizationID,
	})
	return ix.svc.AddDocumentBatch(ctx, docs, tenant)
}

// Index dispatches an IndexRequest to the matching indexer. The switch is
// exhaustive over the closed content-type set.
func (ix *Indexer) Index(ctx context.Context, req IndexRequest) (rag.BatchReport, error) {
	if err := req.Tenant.Validate(); err != nil {
		return rag.BatchReport{}, err
	}
	switch req.ContentType {
	case domain.ContentTranscription:
		if req.Transcription == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexTranscription(ctx, *req.Transcription, req.Tenant)
	case domain.ContentSummary:
		if req.Summary == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexSummary(ctx, *req.Summary, req.Tenant)
	case domain.ContentTask:
		if req.Tasks == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexTasks(ctx, *req.Tasks, req.Tenant)
	case domain.ContentKnowledgeDoc:
		if req.KnowledgeDoc == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexKnowledgeDocument(ctx, *req.KnowledgeDoc, req.Tenant)
	case domain.ContentProjectTemplate:
		if req.ProjectTemplate == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexProjectTemplate(ctx, *req.ProjectTemplate, req.Tenant)
	case domain.ContentOrgInstructions:
		if req.OrgInstructions == nil {
			return rag.BatchReport{}, missingEntity(req.ContentType)
		}
		return ix.IndexOrganizationInstructions(ctx, *req.OrgInstructions, req.Tenant)
	case domain.ContentRecording:
		// Recordings themselves carry no text; their transcription and
		// summary are the indexable artifacts.
		return rag.BatchReport{}, domain.E("ingest.Index", domain.BadRequest,
			"recordings are indexed via their transcription or summary", nil)
	}
	return rag.BatchReport{}, domain.E("ingest.Index", domain.BadRequest,
		"unknown content type "+string(req.ContentType), nil)
}

func missingEntity(ct domain.ContentType) error {
	return domain.E("ingest.Index", domain.BadRequest, "missing entity for content type "+ct.String(), nil)
}
