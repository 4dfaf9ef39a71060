package ingest

import (
	"github.com/MinuteMind/minute-mvp/engine/domain"
)

// Transcription is a fetched recording transcript ready for indexing.
type Transcription struct {
	RecordingID    string `json:"recording_id"`
	RecordingTitle string `json:"recording_title"`
	RecordingDate  string `json:"recording_date"`
	Text           string `json:"text"`
}

// Summary is a fetched recording summary ready for indexing.
type Summary struct {
	RecordingID    string `json:"recording_id"`
	RecordingTitle string `json:"recording_title"`
	RecordingDate  string `json:"recording_date"`
	Text           string `json:"text"`
}

// Task is one action item extracted from a recording.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueDate     string `json:"due_date,omitempty"`
}

// TaskList carries the tasks of one recording.
type TaskList struct {
	RecordingID    string `json:"recording_id"`
	RecordingTitle string `json:"recording_title"`
	Tasks          []Task `json:"tasks"`
}

// KnowledgeDocument is an uploaded reference document.
type KnowledgeDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ProjectTemplate is a reusable project outline.
type ProjectTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sections    []string `json:"sections"`
}

// OrgInstructions are organization-wide assistant instructions.
type OrgInstructions struct {
	Text string `json:"text"`
}

// IndexRequest is the message consumed from NATS. Exactly one entity field
// matching ContentType is expected to be set.
type IndexRequest struct {
	ContentType     domain.ContentType `json:"content_type"`
	Tenant          domain.Tenant      `json:"tenant"`
	Transcription   *Transcription     `json:"transcription,omitempty"`
	Summary         *Summary           `json:"summary,omitempty"`
	Tasks           *TaskList          `json:"tasks,omitempty"`
	KnowledgeDoc    *KnowledgeDocument `json:"knowledge_document,omitempty"`
	ProjectTemplate *ProjectTemplate   `json:"project_template,omitempty"`
	OrgInstructions *OrgInstructions   `json:"organization_instructions,omitempty"`
}
