package rag

import (
	"context"
	"errors"
	"fmt"

	"lms-assistant-backend/internal/ai"
	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/vectorindex"
	"lms-assistant-backend/models"
)

// Ingestion failures. A document is either fully indexed or not indexed at
// all; partial batches are never committed.
var (
	ErrEmptyDocument = errors.New("document produced no chunks")
	ErrIndexWrite    = errors.New("vector index write failed")
)

// Ingestor runs the offline half of the pipeline for one source document:
// chunk, embed all chunk texts in one batch, attach attribution, replace any
// prior fragments for the same (course, chapter, file) triple, append to the
// index. Each step is a hard boundary; failure aborts without committing the
// next step.
type Ingestor struct {
	chunker  *Chunker
	embedder ai.Embedder
	index    *vectorindex.Index
}

func NewIngestor(chunker *Chunker, embedder ai.Embedder, index *vectorindex.Index) *Ingestor {
	return &Ingestor{chunker: chunker, embedder: embedder, index: index}
}

func (p *Ingestor) Ingest(ctx context.Context, rawText, sourceFile string, courseID int, chapterName string, metadata map[string]string) (models.IngestResult, error) {
	drafts := p.chunker.Chunk(rawText)
	if len(drafts) == 0 {
		return models.IngestResult{ErrorCode: models.IngestErrEmptyDocument},
			fmt.Errorf("%w: %s", ErrEmptyDocument, sourceFile)
	}

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return models.IngestResult{ErrorCode: models.IngestErrEmbeddingUnavailable},
			fmt.Errorf("embedding %s: %w", sourceFile, err)
	}
	if len(vectors) != len(drafts) {
		// Mismatched batches must never reach the index.
		return models.IngestResult{ErrorCode: models.IngestErrEmbeddingUnavailable},
			fmt.Errorf("embedding %s: %w", sourceFile, ai.ErrEmbeddingUnavailable)
	}

	fragments := make([]models.Fragment, len(drafts))
	for i, d := range drafts {
		fragments[i] = models.Fragment{
			Content:     d.Text,
			SourceFile:  sourceFile,
			CourseID:    courseID,
			ChapterName: chapterName,
			PageNumber:  d.PageNumber,
			ChunkIndex:  d.ChunkIndex,
			Metadata:    metadata,
		}
	}

	// Replace semantics: a re-upload of the same chapter file supersedes its
	// earlier fragments instead of accumulating near-duplicates.
	replaced, err := p.index.DeleteBySource(courseID, chapterName, sourceFile)
	if err != nil {
		return models.IngestResult{ErrorCode: models.IngestErrIndexWriteFailed},
			fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	if err := p.index.AddBatch(fragments, vectors); err != nil {
		return models.IngestResult{ErrorCode: models.IngestErrIndexWriteFailed},
			fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}

	logger.Info("document indexed",
		"source_file", sourceFile, "course_id", courseID, "chapter", chapterName,
		"chunks", len(fragments), "replaced", replaced)

	return models.IngestResult{Success: true, ChunkCount: len(fragments), Replaced: replaced}, nil
}
