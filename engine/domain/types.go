// Package domain defines the core types, content taxonomy, and validation
// for the Minute search engine. It acts as the validation gate at pipeline
// entry points.
package domain

// ContentType classifies what kind of entity a stored passage came from.
// The set is closed: switches over ContentType must be exhaustive so that
// adding a new type is a compile-visible change.
type ContentType string

const (
	ContentRecording       ContentType = "recording"
	ContentTranscription   ContentType = "transcription"
	ContentSummary         ContentType = "summary"
	ContentTask            ContentType = "task"
	ContentKnowledgeDoc    ContentType = "knowledge_document"
	ContentProjectTemplate ContentType = "project_template"
	ContentOrgInstructions ContentType = "organization_instructions"
)

// AllContentTypes lists every recognised content type.
var AllContentTypes = []ContentType{
	ContentRecording,
	ContentTranscription,
	ContentSummary,
	ContentTask,
	ContentKnowledgeDoc,
	ContentProjectTemplate,
	ContentOrgInstructions,
}

// ParseContentType validates a raw string against the closed set.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(s)
	switch ct {
	case ContentRecording, ContentTranscription, ContentSummary, ContentTask,
		ContentKnowledgeDoc, ContentProjectTemplate, ContentOrgInstructions:
		return ct, nil
	}
	return "", E("domain.ParseContentType", BadRequest, "unknown content type "+s, nil)
}

func (c ContentType) String() string { return string(c) }

// SourceLabel renders a one-line human description of a result's origin,
// suitable for direct display to an LLM caller. meta supplies display keys
// such as title and recording_title.
func (c ContentType) SourceLabel(meta map[string]string) string {
	switch c {
	case ContentRecording:
		return labelWithTitle("Recording", meta["recording_title"], meta["title"])
	case ContentTranscription:
		return labelWithTitle("Transcription of", meta["recording_title"], meta["title"])
	case ContentSummary:
		return labelWithTitle("Summary of", meta["recording_title"], meta["title"])
	case ContentTask:
		return labelWithTitle("Tasks from", meta["recording_title"], meta["title"])
	case ContentKnowledgeDoc:
		return labelWithTitle("Knowledge document", meta["title"], "")
	case ContentProjectTemplate:
		return labelWithTitle("Project template", meta["title"], "")
	case ContentOrgInstructions:
		return "Organization instructions"
	}
	return "Unknown source"
}

func labelWithTitle(prefix, title, fallback string) string {
	if title == "" {
		title = fallback
	}
	if title == "" {
		return prefix
	}
	return prefix + " \"" + title + "\""
}

// SearchResult is the canonical unit returned by every search path.
type SearchResult struct {
	ID            string            `json:"id"`
	ContentType   ContentType       `json:"content_type"`
	ContentID     string            `json:"content_id"`
	ContentText   string            `json:"content_text"`
	Similarity    float32           `json:"similarity"`
	RerankedScore *float32          `json:"reranked_score,omitempty"`
	OriginalScore *float32          `json:"original_score,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// FinalScore returns the reranked score when present, else the similarity.
func (r SearchResult) FinalScore() float32 {
	if r.RerankedScore != nil {
		return *r.RerankedScore
	}
	return r.Similarity
}

// Tenant identifies the scope every read and write must be confined to.
// At least one of UserID or OrganizationID must be set.
type Tenant struct {
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
}

// Validate rejects unscoped tenants. An unscoped search could leak data
// across tenant boundaries, so this is a hard precondition everywhere.
func (t Tenant) Validate() error {
	if t.UserID == "" && t.OrganizationID == "" {
		return E("domain.Tenant", BadRequest,
			"either userId or organizationId must be provided", nil)
	}
	return nil
}

// Document is one unit of content handed to the ingestion path.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}
