package models

import "time"

// Chat message roles. Sessions only ever contain these two.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a session. Append-only.
type ChatMessage struct {
	MessageID string            `json:"message_id" bson:"message_id"`
	SessionID string            `json:"-" bson:"session_id"`
	Role      string            `json:"role" bson:"role"`
	Content   string            `json:"content" bson:"content"`
	Timestamp time.Time         `json:"timestamp" bson:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// ChatSession is an ordered, student-scoped conversation. CourseID of 0 means
// the session is not scoped to a single course.
type ChatSession struct {
	SessionID string        `json:"session_id" bson:"session_id"`
	StudentID int           `json:"student_id" bson:"student_id"`
	CourseID  int           `json:"course_id,omitempty" bson:"course_id,omitempty"`
	Messages  []ChatMessage `json:"messages" bson:"messages,omitempty"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at"`
}

// SessionSummary is the analytics view of one session.
type SessionSummary struct {
	SessionID       string  `json:"session_id"`
	StudentID       int     `json:"student_id"`
	CourseID        int     `json:"course_id,omitempty"`
	TotalMessages   int     `json:"total_messages"`
	UserMessages    int     `json:"user_messages"`
	AssistantTurns  int     `json:"ai_responses"`
	DurationSeconds float64 `json:"session_duration"`
}

// RAGAnswer is the transient per-query result of the pipeline. Sources is
// bounded to the retriever's k (top 3 by default) and ordered best first.
type RAGAnswer struct {
	Answer         string         `json:"answer"`
	Sources        []SearchResult `json:"sources"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime float64        `json:"processing_time"`
}

// ChatRequest is the ask-question payload.
type ChatRequest struct {
	Message   string `json:"message" binding:"required,min=1,max=2000"`
	SessionID string `json:"session_id,omitempty"`
	StudentID int    `json:"student_id" binding:"required"`
	CourseID  int    `json:"course_id,omitempty"`
}

// ChatResponse mirrors the original caller contract: the UI always receives a
// well-formed answer object, even when every backend is down.
type ChatResponse struct {
	SessionID      string         `json:"session_id"`
	Message        string         `json:"message"`
	Response       string         `json:"response"`
	Sources        []SearchResult `json:"sources"`
	Confidence     float64        `json:"confidence"`
	ProcessingTime float64        `json:"processing_time"`
}

// IndexDocumentRequest is the synchronous document indexing payload.
type IndexDocumentRequest struct {
	Content     string            `json:"content" binding:"required"`
	SourceFile  string            `json:"source_file" binding:"required"`
	CourseID    int               `json:"course_id" binding:"required"`
	ChapterName string            `json:"chapter_name" binding:"required"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SearchDocumentsRequest is the direct-retrieval (diagnostics) payload.
type SearchDocumentsRequest struct {
	Query    string `json:"query" binding:"required"`
	CourseID int    `json:"course_id,omitempty"`
	K        int    `json:"k,omitempty"`
}
