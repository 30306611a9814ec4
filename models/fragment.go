package models

// Fragment is one immutable indexed slice of a source document. Fragments are
// created during ingestion and never mutated; they disappear only when their
// source document is re-ingested or explicitly deleted.
type Fragment struct {
	Content     string            `json:"content" bson:"content"`
	SourceFile  string            `json:"source_file" bson:"source_file"`
	CourseID    int               `json:"course_id" bson:"course_id"`
	ChapterName string            `json:"chapter_name" bson:"chapter_name"`
	PageNumber  int               `json:"page_number" bson:"page_number"`
	ChunkIndex  int               `json:"chunk_index" bson:"chunk_index"`
	Metadata    map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Clone returns a deep copy so callers holding search results can never
// mutate indexed content.
func (f Fragment) Clone() Fragment {
	c := f
	if f.Metadata != nil {
		c.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// ChunkDraft is a fragment-in-progress produced by the chunker, before
// course/chapter attribution is attached.
type ChunkDraft struct {
	Text       string
	PageNumber int
	ChunkIndex int
}

// SearchResult is a read-only projection of a Fragment plus its query-time
// score. Score is the raw L2 distance between the query embedding and the
// fragment embedding: smaller means closer. Results are never persisted.
type SearchResult struct {
	Content     string            `json:"content"`
	SourceFile  string            `json:"source_file"`
	CourseID    int               `json:"course_id"`
	ChapterName string            `json:"chapter_name"`
	PageNumber  int               `json:"page_number"`
	ChunkIndex  int               `json:"chunk_index"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Score       float64           `json:"score"`
}

// IngestResult reports the outcome of indexing one source document.
type IngestResult struct {
	Success    bool   `json:"success"`
	ChunkCount int    `json:"chunk_count"`
	Replaced   int    `json:"replaced,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// Ingestion error codes surfaced to callers. A document is either fully
// indexed or not indexed at all; these distinguish why it was not.
const (
	IngestErrEmptyDocument        = "empty_document"
	IngestErrEmbeddingUnavailable = "embedding_unavailable"
	IngestErrIndexWriteFailed     = "index_write_failed"
)

// IndexStats describes the current contents of the vector index.
type IndexStats struct {
	TotalFragments int         `json:"total_fragments"`
	CoursesIndexed int         `json:"courses_indexed"`
	CourseCounts   map[int]int `json:"course_distribution"`
	Dimension      int         `json:"vector_dimension"`
}
