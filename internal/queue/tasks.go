package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"lms-assistant-backend/internal/extract"
	"lms-assistant-backend/internal/logger"
	"lms-assistant-backend/internal/rag"
)

const TaskIngestDocument = "document:ingest"

// IngestDocumentPayload describes one uploaded file waiting to be chunked,
// embedded and indexed.
type IngestDocumentPayload struct {
	FilePath    string `json:"file_path"`
	SourceFile  string `json:"source_file"`
	CourseID    int    `json:"course_id"`
	ChapterName string `json:"chapter_name"`
}

// NewIngestDocumentTask enqueues ingestion of one uploaded document. Retries
// cover transient embedding-backend outages; a genuinely broken document is
// rejected inside the handler without retrying.
func NewIngestDocumentTask(filePath, sourceFile string, courseID int, chapterName string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestDocumentPayload{
		FilePath:    filePath,
		SourceFile:  sourceFile,
		CourseID:    courseID,
		ChapterName: chapterName,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("ingestion"),
	), nil
}

// TaskProcessor hosts the asynq handlers for the ingestion worker.
type TaskProcessor struct {
	extractor *extract.PDFExtractor
	ingestor  *rag.Ingestor
}

func NewTaskProcessor(extractor *extract.PDFExtractor, ingestor *rag.Ingestor) *TaskProcessor {
	return &TaskProcessor{extractor: extractor, ingestor: ingestor}
}

// Register attaches the handlers to an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestDocument, p.ProcessIngestDocument)
}

// ProcessIngestDocument extracts, chunks, embeds and indexes one uploaded
// PDF, then removes the upload from disk. Empty or unreadable documents are
// permanent failures; an embedding outage is left to asynq's retry schedule.
func (p *TaskProcessor) ProcessIngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("processing document ingestion task",
		"file", payload.SourceFile, "course_id", payload.CourseID, "chapter", payload.ChapterName)

	extracted, err := p.extractor.ExtractFile(ctx, payload.FilePath)
	if err != nil {
		logger.Error("document extraction failed", "file", payload.SourceFile, "error", err)
		return fmt.Errorf("extraction failed: %v: %w", err, asynq.SkipRetry)
	}

	result, err := p.ingestor.Ingest(ctx, extracted.Text, payload.SourceFile,
		payload.CourseID, payload.ChapterName, map[string]string{
			"pages":   fmt.Sprintf("%d", extracted.Pages),
			"quality": fmt.Sprintf("%.2f", extracted.QualityScore),
		})
	if err != nil {
		if errors.Is(err, rag.ErrEmptyDocument) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		// Embedding or index failures retry on the task's schedule.
		return err
	}

	if err := os.Remove(payload.FilePath); err != nil {
		logger.Warn("failed to remove processed upload", "path", payload.FilePath, "error", err)
	}

	logger.Info("document ingestion task complete",
		"file", payload.SourceFile, "chunks", result.ChunkCount, "replaced", result.Replaced)
	return nil
}
